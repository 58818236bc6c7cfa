package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	scoringdomain "github.com/lendstack/underwriting/internal/scoring/domain"
)

// CalculateScore exposes the scoring adapters directly. The engine calls
// them in-process; this endpoint keeps the provider contract callable on
// its own.
func (s *Server) CalculateScore(c *gin.Context) {
	var req scoringdomain.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	provider := s.scoringReg.Get(c.Query("provider"))
	result, err := provider.Calculate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ListScoringProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"providers": s.scoringReg.Providers()}})
}
