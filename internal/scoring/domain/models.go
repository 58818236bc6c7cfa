// Package domain defines the risk scoring contract shared by all adapters.
package domain

import (
	"errors"
	"time"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskVeryHigh RiskLevel = "VERY_HIGH"
)

type Recommendation string

const (
	RecommendApprove Recommendation = "APPROVE"
	RecommendRefer   Recommendation = "REFER"
	RecommendDecline Recommendation = "DECLINE"
)

type Impact string

const (
	ImpactPositive Impact = "POSITIVE"
	ImpactNegative Impact = "NEGATIVE"
	ImpactNeutral  Impact = "NEUTRAL"
)

// BureauReport is the optional credit bureau summary attached to a request.
type BureauReport struct {
	Score              *float64 `json:"score,omitempty"`
	TotalAccounts      int      `json:"totalAccounts,omitempty"`
	ActiveAccounts     int      `json:"activeAccounts,omitempty"`
	DelinquentAccounts int      `json:"delinquentAccounts,omitempty"`
	DPD                int      `json:"dpd,omitempty"`
}

type EmploymentType string

const (
	EmploymentSalaried     EmploymentType = "SALARIED"
	EmploymentSelfEmployed EmploymentType = "SELF_EMPLOYED"
	EmploymentBusiness     EmploymentType = "BUSINESS"
)

// Request is the full scoring input. Only the financial core is mandatory;
// every optional signal that is populated raises the result's confidence.
type Request struct {
	ApplicationID     string   `json:"applicationId"`
	ApplicantID       string   `json:"applicantId,omitempty"`
	MonthlyIncome     float64  `json:"monthlyIncome"`
	ExistingEMI       float64  `json:"existingEmi"`
	ProposedAmount    float64  `json:"proposedAmount"`
	TenureMonths      int      `json:"tenureMonths"`
	AnnualRatePct     float64  `json:"annualRate"`
	PropertyValue     *float64 `json:"propertyValue,omitempty"`
	ApplicantAgeYears float64  `json:"applicantAgeYears"`

	CreditScore         *float64       `json:"creditScore,omitempty"`
	EmploymentType      EmploymentType `json:"employmentType,omitempty"`
	EmploymentTenure    *int           `json:"employmentTenure,omitempty"`    // months
	BankingRelationship *int           `json:"bankingRelationship,omitempty"` // months
	PreviousDefaults    bool           `json:"previousDefaults,omitempty"`
	Channel             string         `json:"channel,omitempty"`
	ProductCode         string         `json:"productCode,omitempty"`
	BureauReport        *BureauReport  `json:"bureauReport,omitempty"`
	DocumentCount       *int           `json:"documentCount,omitempty"`
	KYCStatus           string         `json:"kycStatus,omitempty"`
}

// Factor explains one contribution to the score.
type Factor struct {
	Factor      string  `json:"factor"`
	Impact      Impact  `json:"impact"`
	Weight      float64 `json:"weight"`
	Explanation string  `json:"explanation,omitempty"`
}

// Result is the canonical scoring output, identical across providers.
type Result struct {
	Score          int            `json:"score"` // 0-1000
	RiskLevel      RiskLevel      `json:"riskLevel"`
	Recommendation Recommendation `json:"recommendation"`
	Confidence     float64        `json:"confidence"` // 0-1
	Factors        []Factor       `json:"factors"`
	Provider       string         `json:"providerUsed"`
	ModelVersion   string         `json:"modelVersion,omitempty"`
	CalculatedAt   time.Time      `json:"calculatedAt"`
}

// RiskLevelForScore maps a 0-1000 score onto the canonical bands.
func RiskLevelForScore(score int) RiskLevel {
	switch {
	case score >= 750:
		return RiskLow
	case score >= 650:
		return RiskMedium
	case score >= 500:
		return RiskHigh
	default:
		return RiskVeryHigh
	}
}

// Weights is the immutable factor-weight configuration of the internal
// model, injected at construction so tests and tenants can override it
// without touching shared state. Negative weights mark features where lower
// values are better.
type Weights struct {
	IncomeToLoanRatio   float64
	FOIR                float64
	LTV                 float64
	AgeFactor           float64
	CreditScoreFactor   float64
	EmploymentStability float64
	BankingRelationship float64
	EmploymentType      float64
	DefaultHistory      float64
	BureauScore         float64
	Delinquency         float64
	Channel             float64
	KYCCompleteness     float64
	DocumentCompletion  float64
}

// DefaultWeights is the production weight table.
func DefaultWeights() Weights {
	return Weights{
		IncomeToLoanRatio:   -0.15,
		FOIR:                -0.20,
		LTV:                 -0.10,
		AgeFactor:           0.08,
		CreditScoreFactor:   0.25,
		EmploymentStability: 0.10,
		BankingRelationship: 0.05,
		EmploymentType:      0.08,
		DefaultHistory:      0.12,
		BureauScore:         0.15,
		Delinquency:         0.10,
		Channel:             0.02,
		KYCCompleteness:     0.05,
		DocumentCompletion:  0.05,
	}
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNotConfigured  = errors.New("provider_not_configured")
	ErrUnavailable    = errors.New("provider_unavailable")
)
