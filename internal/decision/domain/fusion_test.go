package domain

import (
	"testing"

	ruledomain "github.com/lendstack/underwriting/internal/rule/domain"
	scoringdomain "github.com/lendstack/underwriting/internal/scoring/domain"
	"github.com/stretchr/testify/assert"
)

var fusionCfg = FusionConfig{ScoreUpgradeThreshold: 750, ConfidenceFloor: 0.8}

func scoringResult(score int, rec scoringdomain.Recommendation, confidence float64) *scoringdomain.Result {
	return &scoringdomain.Result{
		Score:          score,
		RiskLevel:      scoringdomain.RiskLevelForScore(score),
		Recommendation: rec,
		Confidence:     confidence,
		Provider:       "INTERNAL",
	}
}

func TestFuseWithoutScoringKeepsRuleDecision(t *testing.T) {
	decision, reasons, enhancement := Fuse(ruledomain.DecisionRefer, []string{"FOIR 0.75 exceeds 0.5"}, nil, fusionCfg)

	assert.Equal(t, ruledomain.DecisionRefer, decision)
	assert.Equal(t, []string{"FOIR 0.75 exceeds 0.5"}, reasons)
	assert.Nil(t, enhancement)
}

func TestFuseDeclineRecommendationDowngradesOneLevel(t *testing.T) {
	decision, reasons, _ := Fuse(ruledomain.DecisionAutoApprove, nil, scoringResult(450, scoringdomain.RecommendDecline, 0.6), fusionCfg)
	assert.Equal(t, ruledomain.DecisionRefer, decision)
	assert.Contains(t, reasons, "Scoring indicates high risk")

	decision, reasons, _ = Fuse(ruledomain.DecisionRefer, []string{"one"}, scoringResult(450, scoringdomain.RecommendDecline, 0.6), fusionCfg)
	assert.Equal(t, ruledomain.DecisionDecline, decision)
	assert.Contains(t, reasons, "Both rules and scoring indicate decline")
}

func TestFuseDeclineRecommendationLeavesDeclineAlone(t *testing.T) {
	decision, reasons, enhancement := Fuse(ruledomain.DecisionDecline, []string{"a", "b"}, scoringResult(450, scoringdomain.RecommendDecline, 0.6), fusionCfg)

	assert.Equal(t, ruledomain.DecisionDecline, decision)
	assert.Len(t, reasons, 3, "rule reasons plus the ML audit line")
	assert.NotNil(t, enhancement)
}

func TestFuseApproveRecommendationUpgradesDeclineToRefer(t *testing.T) {
	decision, reasons, _ := Fuse(ruledomain.DecisionDecline, []string{"a", "b"}, scoringResult(800, scoringdomain.RecommendApprove, 0.9), fusionCfg)

	assert.Equal(t, ruledomain.DecisionRefer, decision)
	assert.Contains(t, reasons, "Scoring indicates lower risk than rules suggest")
}

func TestFuseUpgradeReferToAutoApprove(t *testing.T) {
	// Single violation, high score, confidence above the floor.
	decision, reasons, _ := Fuse(ruledomain.DecisionRefer, []string{"one"}, scoringResult(760, scoringdomain.RecommendApprove, 0.9), fusionCfg)
	assert.Equal(t, ruledomain.DecisionAutoApprove, decision)
	assert.Contains(t, reasons, "High ML score overrides minor rule failure")

	// Confidence at the floor is not enough.
	decision, _, _ = Fuse(ruledomain.DecisionRefer, []string{"one"}, scoringResult(760, scoringdomain.RecommendApprove, 0.8), fusionCfg)
	assert.Equal(t, ruledomain.DecisionRefer, decision)

	// Score below the threshold is not enough.
	decision, _, _ = Fuse(ruledomain.DecisionRefer, []string{"one"}, scoringResult(740, scoringdomain.RecommendApprove, 0.95), fusionCfg)
	assert.Equal(t, ruledomain.DecisionRefer, decision)

	// Two violations never upgrade.
	decision, _, _ = Fuse(ruledomain.DecisionRefer, []string{"one", "two"}, scoringResult(800, scoringdomain.RecommendApprove, 0.95), fusionCfg)
	assert.Equal(t, ruledomain.DecisionRefer, decision)
}

func TestFuseAlwaysAppendsScoringAuditLine(t *testing.T) {
	_, reasons, enhancement := Fuse(ruledomain.DecisionAutoApprove, nil, scoringResult(700, scoringdomain.RecommendRefer, 0.7), fusionCfg)

	assert.Contains(t, reasons[0], "ML Score: 700")
	assert.Equal(t, 700, enhancement.Score)
	assert.Equal(t, "MEDIUM", enhancement.RiskLevel)
	assert.Equal(t, "REFER", enhancement.Recommendation)
}

func TestFuseRespectsConfiguredThresholds(t *testing.T) {
	relaxed := FusionConfig{ScoreUpgradeThreshold: 600, ConfidenceFloor: 0.5}

	decision, _, _ := Fuse(ruledomain.DecisionRefer, []string{"one"}, scoringResult(620, scoringdomain.RecommendApprove, 0.6), relaxed)
	assert.Equal(t, ruledomain.DecisionAutoApprove, decision)
}
