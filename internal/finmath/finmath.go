// Package finmath holds the pure lending arithmetic shared by the rule
// evaluator and the risk scorer. Every function is deterministic and rounds
// the same way regardless of caller: money to 2 decimal places, ratios to 4.
package finmath

import "math"

const (
	moneyPrecision = 2
	ratioPrecision = 4
)

// EMI computes the equated monthly installment for a reducing-balance loan.
// A zero rate degenerates to exact linear division, which also avoids the
// divide-by-zero in the annuity formula.
func EMI(principal, annualRatePct float64, months int) float64 {
	if months <= 0 {
		return 0
	}
	r := annualRatePct / 12 / 100
	if r == 0 {
		return RoundMoney(principal / float64(months))
	}
	pow := math.Pow(1+r, float64(months))
	return RoundMoney(principal * r * pow / (pow - 1))
}

// FOIR is the fixed obligation to income ratio.
func FOIR(existingEMI, proposedEMI, monthlyIncome float64) float64 {
	if monthlyIncome <= 0 {
		return math.Inf(1)
	}
	return RoundRatio((existingEMI + proposedEMI) / monthlyIncome)
}

// LTV is the loan to value ratio. The second return is false when there is
// no property value to compare against, in which case the metric is not
// evaluated at all.
func LTV(proposedAmount, propertyValue float64) (float64, bool) {
	if propertyValue <= 0 {
		return 0, false
	}
	return RoundRatio(proposedAmount / propertyValue), true
}

// AgeAtMaturity is the applicant age, in years, when the final installment
// falls due.
func AgeAtMaturity(ageYears float64, tenureMonths int) float64 {
	return RoundMoney(ageYears + float64(tenureMonths)/12)
}

func RoundMoney(v float64) float64 {
	return roundTo(v, moneyPrecision)
}

func RoundRatio(v float64) float64 {
	return roundTo(v, ratioPrecision)
}

func roundTo(v float64, places int) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	shift := math.Pow(10, float64(places))
	return math.Round(v*shift) / shift
}
