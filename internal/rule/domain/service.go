package domain

import (
	"context"
	"errors"
	"time"

	"github.com/lendstack/underwriting/pkg/db/pagination"
	"gorm.io/datatypes"
)

// Decision is the rule-based verdict for an application.
type Decision string

const (
	DecisionAutoApprove Decision = "AUTO_APPROVE"
	DecisionRefer       Decision = "REFER"
	DecisionDecline     Decision = "DECLINE"
)

// DecisionFromViolations maps a violation count onto a verdict. The mapping
// is strict: 0 approves, exactly 1 refers, anything more declines.
func DecisionFromViolations(n int) Decision {
	switch {
	case n >= 2:
		return DecisionDecline
	case n == 1:
		return DecisionRefer
	default:
		return DecisionAutoApprove
	}
}

// ThresholdBundle is the static fallback rule set supplied inline when the
// caller has no product code. The evaluator runs the same checks without
// touching the rule store.
type ThresholdBundle struct {
	MaxFOIR          float64  `json:"maxFOIR" binding:"required,gt=0,lte=1"`
	MaxLTV           *float64 `json:"maxLTV,omitempty"`
	MaxAgeAtMaturity float64  `json:"maxAgeAtMaturity" binding:"required,gt=0"`
	MinCreditScore   *float64 `json:"minCreditScore,omitempty"`
}

// EvaluateRequest is the typed evaluation context, validated once at the
// boundary. Exactly one of (ProductCode+Channel) or Static must be set.
type EvaluateRequest struct {
	ApplicationID     string
	MonthlyIncome     float64
	ExistingEMI       float64
	ProposedAmount    float64
	TenureMonths      int
	AnnualRatePct     float64
	PropertyValue     *float64
	ApplicantAgeYears float64
	CreditScore       *float64
	Flags             map[string]bool

	ProductCode string
	Channel     string
	Static      *ThresholdBundle
}

// RuleResult reports the outcome of one rule, in priority order.
type RuleResult struct {
	RuleID         string   `json:"ruleId,omitempty"`
	RuleName       string   `json:"ruleName"`
	Passed         bool     `json:"passed"`
	EvaluatedValue *float64 `json:"evaluatedValue,omitempty"`
	ThresholdValue *float64 `json:"thresholdValue,omitempty"`
	Message        string   `json:"message,omitempty"`
}

// Metrics is the numeric snapshot computed during evaluation, persisted with
// the decision for auditability.
type Metrics struct {
	FOIR          float64  `json:"foir"`
	LTV           *float64 `json:"ltv"`
	AgeAtMaturity float64  `json:"ageAtMaturity"`
	ProposedEMI   float64  `json:"proposedEmi"`
	CreditScore   *float64 `json:"creditScore,omitempty"`
}

// Evaluation is the full rule-engine output for one application.
type Evaluation struct {
	Decision   Decision     `json:"decision"`
	Violations []string     `json:"violations"`
	Results    []RuleResult `json:"results"`
	Metrics    Metrics      `json:"metrics"`
}

type CreateRuleRequest struct {
	Name           string         `json:"name"`
	Kind           Kind           `json:"kind"`
	Expression     datatypes.JSON `json:"expression"`
	ProductCode    *string        `json:"product_code"`
	Channel        *string        `json:"channel"`
	Priority       int            `json:"priority"`
	Active         *bool          `json:"active"`
	EffectiveFrom  *time.Time     `json:"effective_from"`
	EffectiveUntil *time.Time     `json:"effective_until"`
}

// UpdateRuleRequest carries PATCH semantics: nil fields are left untouched.
type UpdateRuleRequest struct {
	ID             string         `json:"-"`
	Name           *string        `json:"name"`
	Expression     datatypes.JSON `json:"expression"`
	ProductCode    *string        `json:"product_code"`
	Channel        *string        `json:"channel"`
	Priority       *int           `json:"priority"`
	Active         *bool          `json:"active"`
	EffectiveUntil *time.Time     `json:"effective_until"`
}

type GetRuleRequest struct {
	ID string
}

type ListRuleRequest struct {
	PageToken   string
	PageSize    int32
	Kind        string
	ProductCode string
	Channel     string
	ActiveOnly  bool
}

type ListRuleFilter struct {
	Kind        string
	ProductCode string
	Channel     string
	ActiveOnly  bool
}

type ListRuleResponse struct {
	pagination.PageInfo
	Rules []RuleDefinition `json:"rules"`
}

type Service interface {
	Evaluate(ctx context.Context, req EvaluateRequest) (Evaluation, error)
	Create(ctx context.Context, req CreateRuleRequest) (RuleDefinition, error)
	Update(ctx context.Context, req UpdateRuleRequest) (RuleDefinition, error)
	GetByID(ctx context.Context, req GetRuleRequest) (RuleDefinition, error)
	List(ctx context.Context, req ListRuleRequest) (ListRuleResponse, error)
}

var (
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidKind       = errors.New("invalid_kind")
	ErrInvalidExpression = errors.New("invalid_expression")
	ErrInvalidContext    = errors.New("invalid_context")
	ErrMissingRuleScope  = errors.New("missing_rule_scope")
	ErrNotFound          = errors.New("not_found")
)
