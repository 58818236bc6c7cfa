// Package domain contains the persisted underwriting decision and the
// fusion logic that merges the rule verdict with the risk score.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	ruledomain "github.com/lendstack/underwriting/internal/rule/domain"
	"gorm.io/datatypes"
)

// UnderwritingDecision is append-only. The current decision for an
// application is the row with the greatest (created_at, id); rows are never
// mutated, an override approval simply appends a newer one.
type UnderwritingDecision struct {
	ID                snowflake.ID        `gorm:"primaryKey" json:"id"`
	ApplicationID     string              `gorm:"not null;index" json:"application_id"`
	Decision          ruledomain.Decision `gorm:"type:text;not null" json:"decision"`
	Reasons           datatypes.JSON      `gorm:"type:jsonb;not null" json:"reasons"`
	Metrics           datatypes.JSON      `gorm:"type:jsonb" json:"metrics"`
	EvaluatedBy       string              `gorm:"not null" json:"evaluated_by"`
	OverrideRequestID *snowflake.ID       `gorm:"index" json:"override_request_id,omitempty"`
	IdempotencyKey    *string             `gorm:"uniqueIndex" json:"idempotency_key,omitempty"`
	CreatedAt         time.Time           `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (UnderwritingDecision) TableName() string { return "underwriting_decisions" }

// ScoringEnhancement is the audit block recorded whenever scoring ran,
// whether or not it changed the outcome.
type ScoringEnhancement struct {
	Score          int     `json:"score"`
	RiskLevel      string  `json:"riskLevel"`
	Recommendation string  `json:"recommendation"`
	Confidence     float64 `json:"confidence"`
	Provider       string  `json:"provider"`
}

// MetricsSnapshot is the numeric state the decision was taken on.
type MetricsSnapshot struct {
	FOIR          float64             `json:"foir"`
	LTV           *float64            `json:"ltv"`
	AgeAtMaturity float64             `json:"ageAtMaturity"`
	ProposedEMI   float64             `json:"proposedEmi"`
	CreditScore   *float64            `json:"creditScore,omitempty"`
	Scoring       *ScoringEnhancement `json:"scoring,omitempty"`
}
