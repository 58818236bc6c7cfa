package adapter

import (
	"context"
	"math"
	"sort"

	"github.com/lendstack/underwriting/internal/clock"
	"github.com/lendstack/underwriting/internal/finmath"
	"github.com/lendstack/underwriting/internal/scoring/domain"
)

const (
	InternalProvider     = "INTERNAL"
	internalModelVersion = "1.0.0"

	baseScore = 500
)

// Internal is the in-house weighted factor model. It extracts normalized
// features from the request and combines them with the injected weight
// table around a neutral base score.
type Internal struct {
	weights domain.Weights
	clock   clock.Clock
}

func NewInternal(weights domain.Weights, clk clock.Clock) *Internal {
	return &Internal{weights: weights, clock: clk}
}

func (a *Internal) Name() string    { return InternalProvider }
func (a *Internal) Available() bool { return true }

// features is every normalized signal the model looks at, all in [0, 1]
// except the three ratio features where lower is better.
type features struct {
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

	hasCreditScore  bool
	hasBureauReport bool
}

func (a *Internal) Calculate(_ context.Context, req domain.Request) (domain.Result, error) {
	if req.MonthlyIncome < 0 || req.ProposedAmount <= 0 || req.TenureMonths < 1 {
		return domain.Result{}, domain.ErrInvalidRequest
	}

	f := extractFeatures(req)
	score := a.score(f)

	return domain.Result{
		Score:          score,
		RiskLevel:      domain.RiskLevelForScore(score),
		Recommendation: recommend(score, f),
		Confidence:     confidence(f),
		Factors:        identifyFactors(f),
		Provider:       InternalProvider,
		ModelVersion:   internalModelVersion,
		CalculatedAt:   a.clock.Now().UTC(),
	}, nil
}

func extractFeatures(req domain.Request) features {
	f := features{}

	if req.MonthlyIncome > 0 {
		f.IncomeToLoanRatio = req.ProposedAmount / (req.MonthlyIncome * 12)
	} else {
		f.IncomeToLoanRatio = 10 // no income, worst case
	}

	proposedEMI := finmath.EMI(req.ProposedAmount, req.AnnualRatePct, req.TenureMonths)
	if req.MonthlyIncome > 0 {
		f.FOIR = (req.ExistingEMI + proposedEMI) / req.MonthlyIncome
	} else {
		f.FOIR = 1
	}

	if req.PropertyValue != nil && *req.PropertyValue > 0 {
		f.LTV = req.ProposedAmount / *req.PropertyValue
	} else {
		f.LTV = 1 // unsecured
	}

	switch {
	case req.ApplicantAgeYears < 25:
		f.AgeFactor = 0.7
	case req.ApplicantAgeYears > 60:
		f.AgeFactor = math.Max(0.3, 1-(req.ApplicantAgeYears-60)*0.05)
	default:
		f.AgeFactor = 1.0
	}

	if req.CreditScore != nil {
		f.CreditScoreFactor = clamp01((*req.CreditScore - 300) / 600)
		f.hasCreditScore = true
	} else {
		f.CreditScoreFactor = 0.5
	}

	if req.EmploymentTenure != nil {
		f.EmploymentStability = math.Min(1, float64(*req.EmploymentTenure)/24)
	} else {
		f.EmploymentStability = 0.5
	}

	if req.BankingRelationship != nil {
		f.BankingRelationship = math.Min(1, float64(*req.BankingRelationship)/36)
	} else {
		f.BankingRelationship = 0.5
	}

	switch req.EmploymentType {
	case domain.EmploymentSalaried:
		f.EmploymentType = 1.0
	case domain.EmploymentSelfEmployed:
		f.EmploymentType = 0.8
	default:
		f.EmploymentType = 0.6
	}

	if req.PreviousDefaults {
		f.DefaultHistory = 0.2
	} else {
		f.DefaultHistory = 1.0
	}

	if req.BureauReport != nil {
		bureauScore := 600.0
		if req.BureauReport.Score != nil {
			bureauScore = *req.BureauReport.Score
		}
		f.BureauScore = clamp01((bureauScore - 300) / 600)
		f.hasBureauReport = true

		delinquencyRate := 0.0
		if req.BureauReport.TotalAccounts > 0 {
			delinquencyRate = float64(req.BureauReport.DelinquentAccounts) / float64(req.BureauReport.TotalAccounts)
		}
		f.Delinquency = 1 - delinquencyRate*0.5
	} else {
		f.BureauScore = 0.6
		f.Delinquency = 1.0
	}

	switch req.Channel {
	case "Branch", "BRANCH":
		f.Channel = 1.0
	case "DSA":
		f.Channel = 0.95
	default:
		f.Channel = 0.9
	}

	switch req.KYCStatus {
	case "COMPLETED":
		f.KYCCompleteness = 1.0
	case "PENDING":
		f.KYCCompleteness = 0.7
	default:
		f.KYCCompleteness = 0.5
	}

	switch {
	case req.DocumentCount != nil && *req.DocumentCount >= 5:
		f.DocumentCompletion = 1.0
	case req.DocumentCount != nil && *req.DocumentCount >= 3:
		f.DocumentCompletion = 0.8
	default:
		f.DocumentCompletion = 0.6
	}

	return f
}

// score combines the features around the neutral base. The three ratio
// features carry negative weights and go through the model's inverse
// normalization; everything else contributes proportionally.
func (a *Internal) score(f features) int {
	w := a.weights
	score := float64(baseScore)

	inverse := func(weight, value float64) float64 {
		return weight * 100 * math.Max(0, 2-value)
	}
	direct := func(weight, value float64) float64 {
		return weight * 100 * value
	}

	score += inverse(w.IncomeToLoanRatio, f.IncomeToLoanRatio)
	score += inverse(w.FOIR, f.FOIR)
	score += inverse(w.LTV, f.LTV)
	score += direct(w.AgeFactor, f.AgeFactor)
	score += direct(w.CreditScoreFactor, f.CreditScoreFactor)
	score += direct(w.EmploymentStability, f.EmploymentStability)
	score += direct(w.BankingRelationship, f.BankingRelationship)
	score += direct(w.EmploymentType, f.EmploymentType)
	score += direct(w.DefaultHistory, f.DefaultHistory)
	score += direct(w.BureauScore, f.BureauScore)
	score += direct(w.Delinquency, f.Delinquency)
	score += direct(w.Channel, f.Channel)
	score += direct(w.KYCCompleteness, f.KYCCompleteness)
	score += direct(w.DocumentCompletion, f.DocumentCompletion)

	return int(math.Round(math.Max(0, math.Min(1000, score))))
}

func recommend(score int, f features) domain.Recommendation {
	if score >= 750 && f.FOIR < 0.5 && f.CreditScoreFactor > 0.7 {
		return domain.RecommendApprove
	}
	if score < 500 || f.FOIR > 0.7 || f.DefaultHistory < 0.5 {
		return domain.RecommendDecline
	}
	return domain.RecommendRefer
}

// confidence grows with the number of populated optional signals. Data
// completeness raises confidence, never the score itself.
func confidence(f features) float64 {
	c := 0.5
	if f.hasCreditScore {
		c += 0.15
	}
	if f.hasBureauReport {
		c += 0.15
	}
	if f.EmploymentStability > 0.7 {
		c += 0.1
	}
	if f.BankingRelationship > 0.7 {
		c += 0.1
	}
	return math.Min(1.0, c)
}

func identifyFactors(f features) []domain.Factor {
	factors := make([]domain.Factor, 0, 5)

	if f.CreditScoreFactor > 0.7 {
		factors = append(factors, domain.Factor{
			Factor: "Credit Score", Impact: domain.ImpactPositive,
			Weight: f.CreditScoreFactor, Explanation: "Strong credit history",
		})
	} else if f.CreditScoreFactor < 0.5 {
		factors = append(factors, domain.Factor{
			Factor: "Credit Score", Impact: domain.ImpactNegative,
			Weight: 1 - f.CreditScoreFactor, Explanation: "Below average credit history",
		})
	}

	if f.FOIR < 0.5 {
		factors = append(factors, domain.Factor{
			Factor: "FOIR", Impact: domain.ImpactPositive,
			Weight: 0.8, Explanation: "Low fixed obligation to income ratio",
		})
	} else if f.FOIR > 0.6 {
		factors = append(factors, domain.Factor{
			Factor: "FOIR", Impact: domain.ImpactNegative,
			Weight: f.FOIR, Explanation: "High fixed obligation to income ratio",
		})
	}

	if f.EmploymentStability > 0.7 {
		factors = append(factors, domain.Factor{
			Factor: "Employment Stability", Impact: domain.ImpactPositive,
			Weight: f.EmploymentStability, Explanation: "Stable employment history",
		})
	}

	if f.DefaultHistory < 1.0 {
		factors = append(factors, domain.Factor{
			Factor: "Default History", Impact: domain.ImpactNegative,
			Weight: 1 - f.DefaultHistory, Explanation: "Previous defaults detected",
		})
	}

	if f.BureauScore > 0.7 {
		factors = append(factors, domain.Factor{
			Factor: "Bureau Report", Impact: domain.ImpactPositive,
			Weight: f.BureauScore, Explanation: "Favorable credit bureau report",
		})
	}

	sort.SliceStable(factors, func(i, j int) bool {
		return factors[i].Weight > factors[j].Weight
	})
	if len(factors) > 5 {
		factors = factors[:5]
	}
	return factors
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
