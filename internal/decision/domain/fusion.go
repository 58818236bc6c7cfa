package domain

import (
	"fmt"

	ruledomain "github.com/lendstack/underwriting/internal/rule/domain"
	scoringdomain "github.com/lendstack/underwriting/internal/scoring/domain"
)

// FusionConfig names the two tunables gating the REFER to AUTO_APPROVE
// upgrade. The historical values are 750 and 0.8.
type FusionConfig struct {
	ScoreUpgradeThreshold int
	ConfidenceFloor       float64
}

// Fuse merges the rule verdict with a best-effort scoring result. A nil
// scoring result leaves the rule decision untouched. When scoring ran, its
// score/risk/recommendation are always appended to the reasons and returned
// as an audit block, even when the outcome does not change.
func Fuse(ruleDecision ruledomain.Decision, ruleReasons []string, scoring *scoringdomain.Result, cfg FusionConfig) (ruledomain.Decision, []string, *ScoringEnhancement) {
	if scoring == nil {
		return ruleDecision, ruleReasons, nil
	}

	final := ruleDecision
	reasons := make([]string, 0, len(ruleReasons)+2)
	reasons = append(reasons, ruleReasons...)
	reasons = append(reasons, fmt.Sprintf("ML Score: %d (%s risk, %s recommendation)",
		scoring.Score, scoring.RiskLevel, scoring.Recommendation))

	switch {
	case scoring.Recommendation == scoringdomain.RecommendDecline && ruleDecision != ruledomain.DecisionDecline:
		if ruleDecision == ruledomain.DecisionAutoApprove {
			final = ruledomain.DecisionRefer
			reasons = append(reasons, "Scoring indicates high risk")
		} else {
			final = ruledomain.DecisionDecline
			reasons = append(reasons, "Both rules and scoring indicate decline")
		}
	case scoring.Recommendation == scoringdomain.RecommendApprove && ruleDecision == ruledomain.DecisionDecline:
		final = ruledomain.DecisionRefer
		reasons = append(reasons, "Scoring indicates lower risk than rules suggest")
	case scoring.Recommendation == scoringdomain.RecommendApprove &&
		ruleDecision == ruledomain.DecisionRefer &&
		scoring.Score >= cfg.ScoreUpgradeThreshold:
		if len(ruleReasons) == 0 || (len(ruleReasons) == 1 && scoring.Confidence > cfg.ConfidenceFloor) {
			final = ruledomain.DecisionAutoApprove
			reasons = append(reasons, "High ML score overrides minor rule failure")
		}
	}

	return final, reasons, &ScoringEnhancement{
		Score:          scoring.Score,
		RiskLevel:      string(scoring.RiskLevel),
		Recommendation: string(scoring.Recommendation),
		Confidence:     scoring.Confidence,
		Provider:       scoring.Provider,
	}
}
