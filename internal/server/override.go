package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	overridedomain "github.com/lendstack/underwriting/internal/override/domain"
	ruledomain "github.com/lendstack/underwriting/internal/rule/domain"
)

type requestOverrideRequest struct {
	OriginalDecision  string `json:"originalDecision"`
	RequestedDecision string `json:"requestedDecision"`
	Justification     string `json:"justification"`
	RequestedBy       string `json:"requestedBy"`
}

type reviewOverrideRequest struct {
	ReviewedBy string `json:"reviewedBy"`
	Remarks    string `json:"remarks"`
}

func (s *Server) RequestOverride(c *gin.Context) {
	var req requestOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.overrideSvc.Create(c.Request.Context(), overridedomain.CreateRequest{
		ApplicationID:     strings.TrimSpace(c.Param("id")),
		OriginalDecision:  ruledomain.Decision(strings.TrimSpace(req.OriginalDecision)),
		RequestedDecision: ruledomain.Decision(strings.TrimSpace(req.RequestedDecision)),
		Justification:     req.Justification,
		RequestedBy:       strings.TrimSpace(req.RequestedBy),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ApproveOverride(c *gin.Context) {
	var req reviewOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.overrideSvc.Approve(c.Request.Context(), overridedomain.ApproveRequest{
		ApplicationID: strings.TrimSpace(c.Param("id")),
		OverrideID:    strings.TrimSpace(c.Param("overrideId")),
		ReviewedBy:    strings.TrimSpace(req.ReviewedBy),
		Remarks:       req.Remarks,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RejectOverride(c *gin.Context) {
	var req reviewOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.overrideSvc.Reject(c.Request.Context(), overridedomain.RejectRequest{
		ApplicationID: strings.TrimSpace(c.Param("id")),
		OverrideID:    strings.TrimSpace(c.Param("overrideId")),
		ReviewedBy:    strings.TrimSpace(req.ReviewedBy),
		Remarks:       req.Remarks,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListOverrides(c *gin.Context) {
	var query struct {
		PageToken string `form:"page_token"`
		PageSize  int32  `form:"page_size"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.overrideSvc.ListByApplication(c.Request.Context(), overridedomain.ListByApplicationRequest{
		ApplicationID: strings.TrimSpace(c.Param("id")),
		PageToken:     query.PageToken,
		PageSize:      query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPendingOverrides(c *gin.Context) {
	var query struct {
		PageToken string `form:"page_token"`
		PageSize  int32  `form:"page_size"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.overrideSvc.ListPending(c.Request.Context(), overridedomain.ListPendingRequest{
		PageToken: query.PageToken,
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
