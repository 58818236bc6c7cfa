package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/lendstack/underwriting/internal/clock"
	"github.com/lendstack/underwriting/internal/config"
	"github.com/lendstack/underwriting/internal/decision/domain"
	decisionrepo "github.com/lendstack/underwriting/internal/decision/repository"
	outboxdomain "github.com/lendstack/underwriting/internal/outbox/domain"
	outboxrepo "github.com/lendstack/underwriting/internal/outbox/repository"
	ruledomain "github.com/lendstack/underwriting/internal/rule/domain"
	rulerepo "github.com/lendstack/underwriting/internal/rule/repository"
	ruleservice "github.com/lendstack/underwriting/internal/rule/service"
	"github.com/lendstack/underwriting/internal/scoring/adapter"
	scoringdomain "github.com/lendstack/underwriting/internal/scoring/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func ptr[T any](v T) *T { return &v }

type fixedAdapter struct {
	name   string
	result scoringdomain.Result
	err    error
	delay  time.Duration
}

func (a *fixedAdapter) Name() string    { return a.name }
func (a *fixedAdapter) Available() bool { return true }

func (a *fixedAdapter) Calculate(ctx context.Context, _ scoringdomain.Request) (scoringdomain.Result, error) {
	if a.delay > 0 {
		select {
		case <-ctx.Done():
			return scoringdomain.Result{}, ctx.Err()
		case <-time.After(a.delay):
		}
	}
	if a.err != nil {
		return scoringdomain.Result{}, a.err
	}
	return a.result, nil
}

type fixture struct {
	db  *gorm.DB
	svc domain.Service
	clk *clock.Fake
}

func newFixture(t *testing.T, scorer *adapter.Fallback) fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.UnderwritingDecision{},
		&outboxdomain.Event{},
		&ruledomain.RuleDefinition{},
		&ruledomain.EvaluationRecord{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFake(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))

	rules := ruleservice.New(ruleservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  rulerepo.Provide(),
		Clock: clk,
	})

	svc := New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Repo:   decisionrepo.Provide(),
		Rules:  rules,
		Scorer: scorer,
		Outbox: outboxrepo.Provide(),
		Clock:  clk,
		Engine: config.EngineConfig{
			ScoreUpgradeThreshold: 750,
			ConfidenceFloor:       0.8,
			ScoringTimeoutMs:      200,
		},
	})

	return fixture{db: db, svc: svc, clk: clk}
}

func scorerWith(result scoringdomain.Result) *adapter.Fallback {
	primary := &fixedAdapter{name: "TEST", result: result}
	return adapter.NewFallback(primary, primary, zap.NewNop())
}

func failingScorer() *adapter.Fallback {
	primary := &fixedAdapter{name: "TEST", err: errors.New("provider down")}
	return adapter.NewFallback(primary, primary, zap.NewNop())
}

func slowScorer(delay time.Duration) *adapter.Fallback {
	primary := &fixedAdapter{name: "TEST", delay: delay, err: errors.New("unreachable")}
	return adapter.NewFallback(primary, primary, zap.NewNop())
}

func underwriteRequest() domain.UnderwriteRequest {
	return domain.UnderwriteRequest{
		ApplicationID:     "app-1",
		EvaluatedBy:       "officer-7",
		MonthlyIncome:     200000,
		ExistingEMI:       10000,
		ProposedAmount:    5000000,
		TenureMonths:      120,
		AnnualRatePct:     9.5,
		PropertyValue:     ptr(7000000.0),
		ApplicantAgeYears: 35,
		Static: &ruledomain.ThresholdBundle{
			MaxFOIR:          0.5,
			MaxLTV:           ptr(0.8),
			MaxAgeAtMaturity: 70,
		},
	}
}

func TestUnderwritePersistsDecisionAndOutboxEventAtomically(t *testing.T) {
	f := newFixture(t, scorerWith(scoringdomain.Result{
		Score:          700,
		RiskLevel:      scoringdomain.RiskMedium,
		Recommendation: scoringdomain.RecommendRefer,
		Confidence:     0.7,
		Provider:       "TEST",
	}))

	resp, err := f.svc.Underwrite(context.Background(), underwriteRequest())
	require.NoError(t, err)

	assert.Equal(t, ruledomain.DecisionAutoApprove, resp.Decision)
	require.NotNil(t, resp.Scoring)
	assert.Equal(t, 700, resp.Scoring.Score)
	assert.Contains(t, resp.Reasons[len(resp.Reasons)-1], "ML Score: 700")

	var rows []domain.UnderwritingDecision
	require.NoError(t, f.db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, resp.DecisionID, rows[0].ID)
	assert.Equal(t, "officer-7", rows[0].EvaluatedBy)

	var events []outboxdomain.Event
	require.NoError(t, f.db.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, outboxdomain.EventTypeDecisionMade, events[0].EventType)
	assert.Equal(t, "app-1", events[0].AggregateID)
	assert.Nil(t, events[0].PublishedAt)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, "AUTO_APPROVE", payload["decision"])
}

func TestUnderwriteDegradesToRuleOnlyWhenScoringFails(t *testing.T) {
	f := newFixture(t, failingScorer())

	resp, err := f.svc.Underwrite(context.Background(), underwriteRequest())
	require.NoError(t, err)

	assert.Equal(t, ruledomain.DecisionAutoApprove, resp.Decision)
	assert.Nil(t, resp.Scoring)
	for _, reason := range resp.Reasons {
		assert.NotContains(t, reason, "ML Score")
	}
}

func TestUnderwriteScoringTimeoutNeverBlocksTheRequest(t *testing.T) {
	f := newFixture(t, slowScorer(5*time.Second))

	start := time.Now()
	resp, err := f.svc.Underwrite(context.Background(), underwriteRequest())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Nil(t, resp.Scoring)
	assert.Equal(t, ruledomain.DecisionAutoApprove, resp.Decision)
}

func TestUnderwriteAppliesFusionUpgrade(t *testing.T) {
	f := newFixture(t, scorerWith(scoringdomain.Result{
		Score:          800,
		RiskLevel:      scoringdomain.RiskLow,
		Recommendation: scoringdomain.RecommendApprove,
		Confidence:     0.9,
		Provider:       "TEST",
	}))

	// One FOIR violation gives the rules a REFER; the strong score and
	// confidence upgrade it.
	req := underwriteRequest()
	req.MonthlyIncome = 100000

	resp, err := f.svc.Underwrite(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, ruledomain.DecisionAutoApprove, resp.Decision)
	assert.Contains(t, resp.Reasons, "High ML score overrides minor rule failure")
}

func TestUnderwriteAppliesFusionDowngrade(t *testing.T) {
	f := newFixture(t, scorerWith(scoringdomain.Result{
		Score:          420,
		RiskLevel:      scoringdomain.RiskVeryHigh,
		Recommendation: scoringdomain.RecommendDecline,
		Confidence:     0.6,
		Provider:       "TEST",
	}))

	resp, err := f.svc.Underwrite(context.Background(), underwriteRequest())
	require.NoError(t, err)

	assert.Equal(t, ruledomain.DecisionRefer, resp.Decision)
	assert.Contains(t, resp.Reasons, "Scoring indicates high risk")
}

func TestUnderwriteIdempotencyKeyReplaysExistingDecision(t *testing.T) {
	f := newFixture(t, failingScorer())

	req := underwriteRequest()
	req.IdempotencyKey = "key-1"

	first, err := f.svc.Underwrite(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := f.svc.Underwrite(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.DecisionID, second.DecisionID)
	assert.Equal(t, first.Decision, second.Decision)

	var count int64
	f.db.Model(&domain.UnderwritingDecision{}).Count(&count)
	assert.Equal(t, int64(1), count)

	var events int64
	f.db.Model(&outboxdomain.Event{}).Count(&events)
	assert.Equal(t, int64(1), events, "replay emits no second event")
}

func TestUnderwriteWithoutKeyAppendsDuplicateRows(t *testing.T) {
	f := newFixture(t, failingScorer())

	_, err := f.svc.Underwrite(context.Background(), underwriteRequest())
	require.NoError(t, err)
	f.clk.Advance(time.Second)
	_, err = f.svc.Underwrite(context.Background(), underwriteRequest())
	require.NoError(t, err)

	var count int64
	f.db.Model(&domain.UnderwritingDecision{}).Count(&count)
	assert.Equal(t, int64(2), count)
}

func TestLatestReturnsNewestDecision(t *testing.T) {
	f := newFixture(t, failingScorer())

	first, err := f.svc.Underwrite(context.Background(), underwriteRequest())
	require.NoError(t, err)

	f.clk.Advance(time.Minute)
	req := underwriteRequest()
	req.MonthlyIncome = 100000 // one violation, REFER
	second, err := f.svc.Underwrite(context.Background(), req)
	require.NoError(t, err)
	require.NotEqual(t, first.DecisionID, second.DecisionID)

	latest, err := f.svc.Latest(context.Background(), domain.GetDecisionRequest{ApplicationID: "app-1"})
	require.NoError(t, err)
	assert.Equal(t, second.DecisionID, latest.ID)
	assert.Equal(t, ruledomain.DecisionRefer, latest.Decision)
}

func TestLatestBreaksCreatedAtTiesById(t *testing.T) {
	f := newFixture(t, failingScorer())

	// Same clock reading for both rows; the monotonic id decides.
	first, err := f.svc.Underwrite(context.Background(), underwriteRequest())
	require.NoError(t, err)
	second, err := f.svc.Underwrite(context.Background(), underwriteRequest())
	require.NoError(t, err)
	require.Greater(t, int64(second.DecisionID), int64(first.DecisionID))

	latest, err := f.svc.Latest(context.Background(), domain.GetDecisionRequest{ApplicationID: "app-1"})
	require.NoError(t, err)
	assert.Equal(t, second.DecisionID, latest.ID)
}

func TestLatestNotFound(t *testing.T) {
	f := newFixture(t, failingScorer())

	_, err := f.svc.Latest(context.Background(), domain.GetDecisionRequest{ApplicationID: "missing"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUnderwritePropagatesRuleValidationErrors(t *testing.T) {
	f := newFixture(t, failingScorer())

	req := underwriteRequest()
	req.Static = nil

	_, err := f.svc.Underwrite(context.Background(), req)
	assert.ErrorIs(t, err, ruledomain.ErrMissingRuleScope)
}
