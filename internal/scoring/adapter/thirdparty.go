package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/lendstack/underwriting/internal/clock"
	"github.com/lendstack/underwriting/internal/scoring/domain"
	"go.uber.org/zap"
)

// ThirdPartyConfig configures one external scoring provider.
type ThirdPartyConfig struct {
	Name          string
	URL           string
	APIKey        string
	APISecret     string
	Timeout       time.Duration
	RetryAttempts int
}

func (c ThirdPartyConfig) withDefaults() ThirdPartyConfig {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RetryAttempts < 0 {
		c.RetryAttempts = 0
	}
	return c
}

// ThirdParty proxies an external scoring API. Whatever scale and vocabulary
// the provider uses is normalized into the canonical contract; any failure
// (timeout, non-2xx, malformed body) surfaces as an error for the caller's
// fallback to handle.
type ThirdParty struct {
	cfg    ThirdPartyConfig
	client *http.Client
	clock  clock.Clock
	log    *zap.Logger
}

func NewThirdParty(cfg ThirdPartyConfig, clk clock.Clock, log *zap.Logger) *ThirdParty {
	cfg = cfg.withDefaults()
	return &ThirdParty{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		clock:  clk,
		log:    log.Named("scoring.thirdparty"),
	}
}

func (a *ThirdParty) Name() string { return a.cfg.Name }

func (a *ThirdParty) Available() bool {
	return a.cfg.URL != "" && a.cfg.APIKey != ""
}

// providerResponse is the loosely specified wire shape external providers
// answer with. Alternate field names seen in the wild are accepted.
type providerResponse struct {
	Score           *float64         `json:"score"`
	CreditScore     *float64         `json:"creditScore"`
	TotalScore      *float64         `json:"totalScore"`
	RiskLevel       string           `json:"riskLevel"`
	RiskCategory    string           `json:"riskCategory"`
	Recommendation  string           `json:"recommendation"`
	Decision        string           `json:"decision"`
	Confidence      *float64         `json:"confidence"`
	ConfidenceScore *float64         `json:"confidenceScore"`
	Factors         []providerFactor `json:"factors"`
}

type providerFactor struct {
	Factor      string   `json:"factor"`
	Name        string   `json:"name"`
	Impact      string   `json:"impact"`
	Weight      *float64 `json:"weight"`
	Explanation string   `json:"explanation"`
	Description string   `json:"description"`
}

func (a *ThirdParty) Calculate(ctx context.Context, req domain.Request) (domain.Result, error) {
	if !a.Available() {
		return domain.Result{}, domain.ErrNotConfigured
	}

	body, err := json.Marshal(req)
	if err != nil {
		return domain.Result{}, err
	}

	var lastErr error
	for attempt := 0; attempt <= a.cfg.RetryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.Result{}, err
		}

		result, err := a.call(ctx, body)
		if err == nil {
			return result, nil
		}
		lastErr = err
		a.log.Warn("third-party scoring call failed",
			zap.String("provider", a.cfg.Name),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	return domain.Result{}, fmt.Errorf("%s: %w", a.cfg.Name, lastErr)
}

func (a *ThirdParty) call(ctx context.Context, body []byte) (domain.Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return domain.Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", a.cfg.APIKey)
	if a.cfg.APISecret != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APISecret)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return domain.Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return domain.Result{}, fmt.Errorf("provider returned %d", resp.StatusCode)
	}

	var raw providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return domain.Result{}, fmt.Errorf("malformed provider response: %w", err)
	}

	return a.transform(raw), nil
}

func (a *ThirdParty) transform(raw providerResponse) domain.Result {
	score := 600.0
	switch {
	case raw.Score != nil:
		score = *raw.Score
	case raw.CreditScore != nil:
		score = *raw.CreditScore
	case raw.TotalScore != nil:
		score = *raw.TotalScore
	}
	normalized := normalizeScore(score)

	confidence := 0.7
	switch {
	case raw.Confidence != nil:
		confidence = *raw.Confidence
	case raw.ConfidenceScore != nil:
		confidence = *raw.ConfidenceScore
	}

	risk := raw.RiskLevel
	if risk == "" {
		risk = raw.RiskCategory
	}
	recommendation := raw.Recommendation
	if recommendation == "" {
		recommendation = raw.Decision
	}

	factors := make([]domain.Factor, 0, len(raw.Factors))
	for _, f := range raw.Factors {
		name := f.Factor
		if name == "" {
			name = f.Name
		}
		if name == "" {
			name = "Unknown"
		}
		weight := 0.5
		if f.Weight != nil {
			weight = *f.Weight
		}
		explanation := f.Explanation
		if explanation == "" {
			explanation = f.Description
		}
		factors = append(factors, domain.Factor{
			Factor:      name,
			Impact:      mapImpact(f.Impact),
			Weight:      weight,
			Explanation: explanation,
		})
	}
	if len(factors) == 0 {
		factors = defaultFactors(normalized)
	}

	return domain.Result{
		Score:          normalized,
		RiskLevel:      mapRiskLevel(risk),
		Recommendation: mapRecommendation(recommendation),
		Confidence:     confidence,
		Factors:        factors,
		Provider:       a.cfg.Name,
		CalculatedAt:   a.clock.Now().UTC(),
	}
}

// normalizeScore maps provider scales (0-100, 300-900, or native 0-1000)
// into the canonical 0-1000 range.
func normalizeScore(score float64) int {
	switch {
	case score <= 100:
		return int(math.Round(score * 10))
	case score >= 300 && score <= 900:
		return int(math.Round((score - 300) / 600 * 1000))
	default:
		return int(math.Round(math.Max(0, math.Min(1000, score))))
	}
}

func mapRiskLevel(risk string) domain.RiskLevel {
	r := strings.ToLower(risk)
	switch {
	case strings.Contains(r, "low") || r == "a" || r == "1":
		return domain.RiskLow
	case strings.Contains(r, "medium") || strings.Contains(r, "moderate") || r == "b" || r == "2":
		return domain.RiskMedium
	case strings.Contains(r, "high") || r == "c" || r == "3":
		return domain.RiskHigh
	default:
		return domain.RiskVeryHigh
	}
}

func mapRecommendation(rec string) domain.Recommendation {
	r := strings.ToLower(rec)
	switch {
	case strings.Contains(r, "approve") || strings.Contains(r, "accept"):
		return domain.RecommendApprove
	case strings.Contains(r, "decline") || strings.Contains(r, "reject"):
		return domain.RecommendDecline
	default:
		return domain.RecommendRefer
	}
}

func mapImpact(impact string) domain.Impact {
	i := strings.ToLower(impact)
	switch {
	case strings.Contains(i, "positive") || strings.Contains(i, "good") || i == "+":
		return domain.ImpactPositive
	case strings.Contains(i, "negative") || strings.Contains(i, "bad") || i == "-":
		return domain.ImpactNegative
	default:
		return domain.ImpactNeutral
	}
}

func defaultFactors(score int) []domain.Factor {
	switch {
	case score >= 750:
		return []domain.Factor{{
			Factor: "Overall Creditworthiness", Impact: domain.ImpactPositive,
			Weight: 0.8, Explanation: "Strong credit profile",
		}}
	case score < 500:
		return []domain.Factor{{
			Factor: "Overall Creditworthiness", Impact: domain.ImpactNegative,
			Weight: 0.8, Explanation: "Weak credit profile",
		}}
	default:
		return nil
	}
}
