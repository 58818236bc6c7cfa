package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	ruledomain "github.com/lendstack/underwriting/internal/rule/domain"
	scoringdomain "github.com/lendstack/underwriting/internal/scoring/domain"
)

// UnderwriteRequest is the boundary-validated input for one underwriting
// run. The financial core is mandatory; the scoring signals are optional and
// only raise the score's confidence.
type UnderwriteRequest struct {
	ApplicationID  string
	EvaluatedBy    string
	IdempotencyKey string

	MonthlyIncome     float64
	ExistingEMI       float64
	ProposedAmount    float64
	TenureMonths      int
	AnnualRatePct     float64
	PropertyValue     *float64
	ApplicantAgeYears float64
	CreditScore       *float64
	Flags             map[string]bool

	// Dynamic rule scope, or the inline static bundle.
	ProductCode string
	Channel     string
	Static      *ruledomain.ThresholdBundle

	// Optional scoring signals.
	ApplicantID         string
	EmploymentType      scoringdomain.EmploymentType
	EmploymentTenure    *int
	BankingRelationship *int
	PreviousDefaults    bool
	BureauReport        *scoringdomain.BureauReport
	DocumentCount       *int
	KYCStatus           string
}

type UnderwriteResponse struct {
	DecisionID snowflake.ID        `json:"decisionId"`
	Decision   ruledomain.Decision `json:"decision"`
	Reasons    []string            `json:"reasons"`
	Metrics    MetricsSnapshot     `json:"metrics"`
	Scoring    *ScoringEnhancement `json:"scoringEnhancement,omitempty"`
	Replayed   bool                `json:"replayed,omitempty"`
}

type GetDecisionRequest struct {
	ApplicationID string
}

type Service interface {
	Underwrite(ctx context.Context, req UnderwriteRequest) (UnderwriteResponse, error)
	Latest(ctx context.Context, req GetDecisionRequest) (UnderwritingDecision, error)
}

var (
	ErrInvalidApplication = errors.New("invalid_application")
	ErrNotFound           = errors.New("not_found")
)
