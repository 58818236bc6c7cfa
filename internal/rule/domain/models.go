// Package domain contains persistence models for rule configuration.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Kind classifies how a rule's expression is interpreted.
type Kind string

const (
	KindThreshold Kind = "THRESHOLD"
	KindRange     Kind = "RANGE"
	KindBoolean   Kind = "BOOLEAN"
	KindCustom    Kind = "CUSTOM"
)

// Metrics a THRESHOLD rule can target.
const (
	MetricFOIR          = "FOIR"
	MetricLTV           = "LTV"
	MetricAgeAtMaturity = "AGE_AT_MATURITY"
	MetricCreditScore   = "CREDIT_SCORE"
)

// Metrics a RANGE rule can target.
const (
	MetricAmount = "AMOUNT"
	MetricTenure = "TENURE"
	MetricIncome = "INCOME"
)

// RuleDefinition is a versioned, scoped rule configured by administrators.
// The engine only sees rows that are active and inside their effective
// window; a null product code or channel applies universally.
type RuleDefinition struct {
	ID             snowflake.ID   `gorm:"primaryKey" json:"id"`
	Name           string         `gorm:"not null" json:"name"`
	Kind           Kind           `gorm:"type:text;not null" json:"kind"`
	Expression     datatypes.JSON `gorm:"type:jsonb;not null" json:"expression"`
	ProductCode    *string        `gorm:"index" json:"product_code,omitempty"`
	Channel        *string        `gorm:"index" json:"channel,omitempty"`
	Priority       int            `gorm:"not null;default:0" json:"priority"`
	Active         bool           `gorm:"not null;default:true" json:"active"`
	EffectiveFrom  time.Time      `gorm:"not null" json:"effective_from"`
	EffectiveUntil *time.Time     `json:"effective_until,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (RuleDefinition) TableName() string { return "rule_definitions" }

// EvaluationRecord is the immutable audit trail of a single rule evaluation.
// Rows are inserted once and never mutated or deleted.
type EvaluationRecord struct {
	ID             snowflake.ID   `gorm:"primaryKey" json:"id"`
	ApplicationID  string         `gorm:"not null;index" json:"application_id"`
	RuleID         snowflake.ID   `gorm:"not null;index" json:"rule_id"`
	RuleName       string         `gorm:"not null" json:"rule_name"`
	Passed         bool           `gorm:"not null" json:"passed"`
	EvaluatedValue *float64       `json:"evaluated_value,omitempty"`
	ThresholdValue *float64       `json:"threshold_value,omitempty"`
	Details        datatypes.JSON `gorm:"type:jsonb" json:"details,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (EvaluationRecord) TableName() string { return "rule_evaluation_records" }

// ThresholdExpression is the structured form of a THRESHOLD rule.
type ThresholdExpression struct {
	Metric    string  `json:"metric"`
	Operator  string  `json:"operator"`
	Threshold float64 `json:"threshold"`
}

// RangeExpression is the structured form of a RANGE rule; the interval is
// closed on both ends.
type RangeExpression struct {
	Metric string  `json:"metric"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// BooleanExpression checks a named context flag against an expected value.
type BooleanExpression struct {
	Flag     string `json:"flag"`
	Expected bool   `json:"expected"`
}

// CustomExpression holds a sandboxed arithmetic/boolean expression evaluated
// over a closed set of context variables. No ambient state, no I/O.
type CustomExpression struct {
	Expression string `json:"expression"`
}
