package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	decisiondomain "github.com/lendstack/underwriting/internal/decision/domain"
	ruledomain "github.com/lendstack/underwriting/internal/rule/domain"
	scoringdomain "github.com/lendstack/underwriting/internal/scoring/domain"
)

type underwriteRequest struct {
	MonthlyIncome     float64         `json:"monthlyIncome"`
	ExistingEMI       float64         `json:"existingEmi"`
	ProposedAmount    float64         `json:"proposedAmount"`
	TenureMonths      int             `json:"tenureMonths"`
	AnnualRatePct     float64         `json:"annualRate"`
	PropertyValue     *float64        `json:"propertyValue"`
	ApplicantAgeYears float64         `json:"applicantAgeYears"`
	CreditScore       *float64        `json:"creditScore"`
	Flags             map[string]bool `json:"flags"`

	ProductCode string                      `json:"productCode"`
	Channel     string                      `json:"channel"`
	Thresholds  *ruledomain.ThresholdBundle `json:"thresholds"`

	EvaluatedBy    string `json:"evaluatedBy"`
	IdempotencyKey string `json:"idempotencyKey"`

	ApplicantID         string                       `json:"applicantId"`
	EmploymentType      scoringdomain.EmploymentType `json:"employmentType"`
	EmploymentTenure    *int                         `json:"employmentTenure"`
	BankingRelationship *int                         `json:"bankingRelationship"`
	PreviousDefaults    bool                         `json:"previousDefaults"`
	BureauReport        *scoringdomain.BureauReport  `json:"bureauReport"`
	DocumentCount       *int                         `json:"documentCount"`
	KYCStatus           string                       `json:"kycStatus"`
}

func (s *Server) Underwrite(c *gin.Context) {
	var req underwriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	idempotencyKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if idempotencyKey == "" {
		idempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	}

	resp, err := s.decisionSvc.Underwrite(c.Request.Context(), decisiondomain.UnderwriteRequest{
		ApplicationID:  strings.TrimSpace(c.Param("id")),
		EvaluatedBy:    strings.TrimSpace(req.EvaluatedBy),
		IdempotencyKey: idempotencyKey,

		MonthlyIncome:     req.MonthlyIncome,
		ExistingEMI:       req.ExistingEMI,
		ProposedAmount:    req.ProposedAmount,
		TenureMonths:      req.TenureMonths,
		AnnualRatePct:     req.AnnualRatePct,
		PropertyValue:     req.PropertyValue,
		ApplicantAgeYears: req.ApplicantAgeYears,
		CreditScore:       req.CreditScore,
		Flags:             req.Flags,

		ProductCode: strings.TrimSpace(req.ProductCode),
		Channel:     strings.TrimSpace(req.Channel),
		Static:      req.Thresholds,

		ApplicantID:         strings.TrimSpace(req.ApplicantID),
		EmploymentType:      req.EmploymentType,
		EmploymentTenure:    req.EmploymentTenure,
		BankingRelationship: req.BankingRelationship,
		PreviousDefaults:    req.PreviousDefaults,
		BureauReport:        req.BureauReport,
		DocumentCount:       req.DocumentCount,
		KYCStatus:           strings.TrimSpace(req.KYCStatus),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetDecision(c *gin.Context) {
	resp, err := s.decisionSvc.Latest(c.Request.Context(), decisiondomain.GetDecisionRequest{
		ApplicationID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
