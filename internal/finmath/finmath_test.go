package finmath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEMIZeroRateIsExactDivision(t *testing.T) {
	assert.Equal(t, 10000.0, EMI(1200000, 0, 120))
	assert.Equal(t, 2500.0, EMI(30000, 0, 12))
}

func TestEMIMatchesAnnuityFormula(t *testing.T) {
	// 5,000,000 at 9.5% over 120 months.
	principal := 5000000.0
	r := 9.5 / 12 / 100
	pow := math.Pow(1+r, 120)
	want := RoundMoney(principal * r * pow / (pow - 1))

	assert.Equal(t, want, EMI(principal, 9.5, 120))
	assert.InDelta(t, 64700.0, EMI(principal, 9.5, 120), 50.0)
}

func TestEMIInvalidTenure(t *testing.T) {
	assert.Equal(t, 0.0, EMI(100000, 9.5, 0))
	assert.Equal(t, 0.0, EMI(100000, 9.5, -3))
}

func TestFOIR(t *testing.T) {
	assert.Equal(t, 0.25, FOIR(10000, 15000, 100000))
	assert.Equal(t, 0.3333, FOIR(10000, 0, 30000))
	assert.True(t, math.IsInf(FOIR(10000, 5000, 0), 1))
}

func TestLTVUndefinedWithoutPropertyValue(t *testing.T) {
	_, ok := LTV(5000000, 0)
	assert.False(t, ok)

	_, ok = LTV(5000000, -1)
	assert.False(t, ok)

	v, ok := LTV(6000000, 7000000)
	assert.True(t, ok)
	assert.Equal(t, 0.8571, v)
}

func TestAgeAtMaturity(t *testing.T) {
	assert.Equal(t, 45.0, AgeAtMaturity(35, 120))
	assert.Equal(t, 38.5, AgeAtMaturity(35, 42))
	assert.Equal(t, 85.0, AgeAtMaturity(75, 120))
}

func TestRoundingIsStable(t *testing.T) {
	assert.Equal(t, 0.1235, RoundRatio(0.12345))
	assert.Equal(t, 12.35, RoundMoney(12.345))
	assert.True(t, math.IsInf(RoundRatio(math.Inf(1)), 1))
}
