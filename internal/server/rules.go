package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	ruledomain "github.com/lendstack/underwriting/internal/rule/domain"
	"gorm.io/datatypes"
)

type createRuleRequest struct {
	Name           string         `json:"name"`
	Kind           string         `json:"kind"`
	Expression     datatypes.JSON `json:"expression"`
	ProductCode    *string        `json:"productCode"`
	Channel        *string        `json:"channel"`
	Priority       int            `json:"priority"`
	Active         *bool          `json:"active"`
	EffectiveFrom  *time.Time     `json:"effectiveFrom"`
	EffectiveUntil *time.Time     `json:"effectiveUntil"`
}

type updateRuleRequest struct {
	Name           *string        `json:"name"`
	Expression     datatypes.JSON `json:"expression"`
	ProductCode    *string        `json:"productCode"`
	Channel        *string        `json:"channel"`
	Priority       *int           `json:"priority"`
	Active         *bool          `json:"active"`
	EffectiveUntil *time.Time     `json:"effectiveUntil"`
}

func (s *Server) CreateRule(c *gin.Context) {
	var req createRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ruleSvc.Create(c.Request.Context(), ruledomain.CreateRuleRequest{
		Name:           strings.TrimSpace(req.Name),
		Kind:           ruledomain.Kind(strings.ToUpper(strings.TrimSpace(req.Kind))),
		Expression:     req.Expression,
		ProductCode:    req.ProductCode,
		Channel:        req.Channel,
		Priority:       req.Priority,
		Active:         req.Active,
		EffectiveFrom:  req.EffectiveFrom,
		EffectiveUntil: req.EffectiveUntil,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) UpdateRule(c *gin.Context) {
	var req updateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ruleSvc.Update(c.Request.Context(), ruledomain.UpdateRuleRequest{
		ID:             strings.TrimSpace(c.Param("id")),
		Name:           req.Name,
		Expression:     req.Expression,
		ProductCode:    req.ProductCode,
		Channel:        req.Channel,
		Priority:       req.Priority,
		Active:         req.Active,
		EffectiveUntil: req.EffectiveUntil,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetRuleByID(c *gin.Context) {
	resp, err := s.ruleSvc.GetByID(c.Request.Context(), ruledomain.GetRuleRequest{
		ID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListRules(c *gin.Context) {
	var query struct {
		PageToken   string `form:"page_token"`
		PageSize    int32  `form:"page_size"`
		Kind        string `form:"kind"`
		ProductCode string `form:"product_code"`
		Channel     string `form:"channel"`
		Active      string `form:"active"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	activeOnly := false
	if query.Active != "" {
		parsed, err := strconv.ParseBool(strings.TrimSpace(query.Active))
		if err != nil {
			AbortWithError(c, newValidationError("active", "invalid_active", "invalid active"))
			return
		}
		activeOnly = parsed
	}

	resp, err := s.ruleSvc.List(c.Request.Context(), ruledomain.ListRuleRequest{
		PageToken:   query.PageToken,
		PageSize:    query.PageSize,
		Kind:        strings.ToUpper(strings.TrimSpace(query.Kind)),
		ProductCode: strings.TrimSpace(query.ProductCode),
		Channel:     strings.TrimSpace(query.Channel),
		ActiveOnly:  activeOnly,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
