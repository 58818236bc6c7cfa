package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/lendstack/underwriting/internal/clock"
	"github.com/lendstack/underwriting/internal/rule/domain"
	"github.com/lendstack/underwriting/internal/rule/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.RuleDefinition{}, &domain.EvaluationRecord{}))
	return db
}

func newTestService(t *testing.T, db *gorm.DB, clk clock.Clock) domain.Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: clk,
	})
}

func ptr[T any](v T) *T { return &v }

func staticRequest() domain.EvaluateRequest {
	return domain.EvaluateRequest{
		ApplicationID:     "app-1",
		MonthlyIncome:     200000,
		ExistingEMI:       10000,
		ProposedAmount:    5000000,
		TenureMonths:      120,
		AnnualRatePct:     9.5,
		PropertyValue:     ptr(7000000.0),
		ApplicantAgeYears: 35,
		Static: &domain.ThresholdBundle{
			MaxFOIR:          0.5,
			MaxLTV:           ptr(0.8),
			MaxAgeAtMaturity: 70,
		},
	}
}

func TestStaticEvaluationAutoApprovesWhenAllChecksPass(t *testing.T) {
	svc := newTestService(t, newTestDB(t), clock.NewFake(time.Now()))

	eval, err := svc.Evaluate(context.Background(), staticRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.DecisionAutoApprove, eval.Decision)
	assert.Empty(t, eval.Violations)
	assert.NotNil(t, eval.Metrics.LTV)
	assert.InDelta(t, 0.7143, *eval.Metrics.LTV, 0.0001)
	assert.InDelta(t, 45.0, eval.Metrics.AgeAtMaturity, 0.01)
	assert.Greater(t, eval.Metrics.ProposedEMI, 0.0)
}

func TestStaticEvaluationRefersOnSingleFOIRViolation(t *testing.T) {
	svc := newTestService(t, newTestDB(t), clock.NewFake(time.Now()))

	req := staticRequest()
	req.MonthlyIncome = 100000

	eval, err := svc.Evaluate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, domain.DecisionRefer, eval.Decision)
	require.Len(t, eval.Violations, 1)
	assert.Contains(t, eval.Violations[0], "FOIR")
}

func TestStaticEvaluationRefersOnSingleLTVViolation(t *testing.T) {
	svc := newTestService(t, newTestDB(t), clock.NewFake(time.Now()))

	req := staticRequest()
	req.ProposedAmount = 6000000

	eval, err := svc.Evaluate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, domain.DecisionRefer, eval.Decision)
	require.Len(t, eval.Violations, 1)
	assert.Contains(t, eval.Violations[0], "LTV")
	require.NotNil(t, eval.Metrics.LTV)
	assert.InDelta(t, 0.8571, *eval.Metrics.LTV, 0.0001)
}

func TestStaticEvaluationDeclinesOnTwoViolations(t *testing.T) {
	svc := newTestService(t, newTestDB(t), clock.NewFake(time.Now()))

	req := staticRequest()
	req.MonthlyIncome = 100000
	req.ApplicantAgeYears = 75

	eval, err := svc.Evaluate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, domain.DecisionDecline, eval.Decision)
	assert.GreaterOrEqual(t, len(eval.Violations), 2)
}

func TestStaticEvaluationLTVNotApplicableWithoutPropertyValue(t *testing.T) {
	svc := newTestService(t, newTestDB(t), clock.NewFake(time.Now()))

	req := staticRequest()
	req.PropertyValue = nil

	eval, err := svc.Evaluate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, domain.DecisionAutoApprove, eval.Decision)
	assert.Nil(t, eval.Metrics.LTV)

	var ltvResult *domain.RuleResult
	for i := range eval.Results {
		if eval.Results[i].RuleName == domain.MetricLTV {
			ltvResult = &eval.Results[i]
		}
	}
	require.NotNil(t, ltvResult)
	assert.True(t, ltvResult.Passed)
	assert.Contains(t, ltvResult.Message, "not applicable")
}

func TestStaticEvaluationMissingCreditScoreFails(t *testing.T) {
	svc := newTestService(t, newTestDB(t), clock.NewFake(time.Now()))

	req := staticRequest()
	req.Static.MinCreditScore = ptr(700.0)

	eval, err := svc.Evaluate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, domain.DecisionRefer, eval.Decision)
	require.Len(t, eval.Violations, 1)
	assert.Contains(t, eval.Violations[0], "Credit score not provided")
}

func TestEvaluateRejectsMissingScope(t *testing.T) {
	svc := newTestService(t, newTestDB(t), clock.NewFake(time.Now()))

	req := staticRequest()
	req.Static = nil

	_, err := svc.Evaluate(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrMissingRuleScope)
}

func TestEvaluateRejectsInvalidContext(t *testing.T) {
	svc := newTestService(t, newTestDB(t), clock.NewFake(time.Now()))

	req := staticRequest()
	req.MonthlyIncome = 0

	_, err := svc.Evaluate(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidContext)
}

func seedRule(t *testing.T, svc domain.Service, name string, kind domain.Kind, expression string, priority int) domain.RuleDefinition {
	t.Helper()
	rule, err := svc.Create(context.Background(), domain.CreateRuleRequest{
		Name:       name,
		Kind:       kind,
		Expression: datatypes.JSON(expression),
		Priority:   priority,
	})
	require.NoError(t, err)
	return rule
}

func dynamicRequest() domain.EvaluateRequest {
	req := staticRequest()
	req.Static = nil
	req.ProductCode = "HOME_LOAN"
	req.Channel = "BRANCH"
	return req
}

func TestDynamicEvaluationRunsConfiguredRulesInPriorityOrder(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db, clock.NewFake(time.Now()))

	seedRule(t, svc, "foir cap", domain.KindThreshold, `{"metric":"FOIR","operator":"<=","threshold":0.5}`, 10)
	seedRule(t, svc, "amount band", domain.KindRange, `{"metric":"AMOUNT","min":100000,"max":10000000}`, 30)
	seedRule(t, svc, "ltv cap", domain.KindThreshold, `{"metric":"LTV","operator":"<=","threshold":0.8}`, 20)

	eval, err := svc.Evaluate(context.Background(), dynamicRequest())
	require.NoError(t, err)

	require.Len(t, eval.Results, 3)
	assert.Equal(t, "amount band", eval.Results[0].RuleName)
	assert.Equal(t, "ltv cap", eval.Results[1].RuleName)
	assert.Equal(t, "foir cap", eval.Results[2].RuleName)
	assert.Equal(t, domain.DecisionAutoApprove, eval.Decision)

	var records int64
	db.Model(&domain.EvaluationRecord{}).Where("application_id = ?", "app-1").Count(&records)
	assert.Equal(t, int64(3), records)
}

func TestDynamicEvaluationSkipsRulesOutsideScopeAndWindow(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFake(time.Now())
	svc := newTestService(t, db, clk)

	seedRule(t, svc, "universal", domain.KindThreshold, `{"metric":"FOIR","operator":"<=","threshold":0.5}`, 0)

	_, err := svc.Create(context.Background(), domain.CreateRuleRequest{
		Name:        "personal loans only",
		Kind:        domain.KindThreshold,
		Expression:  datatypes.JSON(`{"metric":"FOIR","operator":"<=","threshold":0.4}`),
		ProductCode: ptr("PERSONAL_LOAN"),
	})
	require.NoError(t, err)

	expired, err := svc.Create(context.Background(), domain.CreateRuleRequest{
		Name:       "expired",
		Kind:       domain.KindThreshold,
		Expression: datatypes.JSON(`{"metric":"LTV","operator":"<=","threshold":0.7}`),
	})
	require.NoError(t, err)
	until := clk.Now().Add(-time.Hour)
	_, err = svc.Update(context.Background(), domain.UpdateRuleRequest{
		ID:             expired.ID.String(),
		Active:         ptr(true),
		EffectiveUntil: &until,
	})
	require.NoError(t, err)

	eval, err := svc.Evaluate(context.Background(), dynamicRequest())
	require.NoError(t, err)

	require.Len(t, eval.Results, 1)
	assert.Equal(t, "universal", eval.Results[0].RuleName)
}

func TestDynamicEvaluationCreditScoreRule(t *testing.T) {
	svc := newTestService(t, newTestDB(t), clock.NewFake(time.Now()))

	seedRule(t, svc, "bureau floor", domain.KindThreshold, `{"metric":"CREDIT_SCORE","operator":">=","threshold":700}`, 0)

	req := dynamicRequest()
	eval, err := svc.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionRefer, eval.Decision)
	assert.Contains(t, eval.Violations[0], "Credit score not provided")

	req.CreditScore = ptr(720.0)
	eval, err = svc.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionAutoApprove, eval.Decision)
}

func TestDynamicEvaluationBooleanRule(t *testing.T) {
	svc := newTestService(t, newTestDB(t), clock.NewFake(time.Now()))

	seedRule(t, svc, "needs co-applicant", domain.KindBoolean, `{"flag":"hasCoApplicant","expected":true}`, 0)

	req := dynamicRequest()
	eval, err := svc.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionAutoApprove, eval.Decision, "missing flag passes with a message")

	req.Flags = map[string]bool{"hasCoApplicant": false}
	eval, err = svc.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionRefer, eval.Decision)
}

func TestDynamicEvaluationCustomRule(t *testing.T) {
	svc := newTestService(t, newTestDB(t), clock.NewFake(time.Now()))

	seedRule(t, svc, "income multiple", domain.KindCustom, `{"expression":"proposedAmount <= monthlyIncome * 30"}`, 0)

	req := dynamicRequest()
	eval, err := svc.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionAutoApprove, eval.Decision)

	req.ProposedAmount = 9000000
	eval, err = svc.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionRefer, eval.Decision)
}

func TestDynamicEvaluationCustomRuleErrorIsCaughtPerRule(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db, clock.NewFake(time.Now()))

	broken, err := svc.Create(context.Background(), domain.CreateRuleRequest{
		Name:       "broken",
		Kind:       domain.KindCustom,
		Expression: datatypes.JSON(`{"expression":"foir <= 1"}`),
	})
	require.NoError(t, err)
	// Corrupt the stored expression to reference an unknown variable.
	require.NoError(t, db.Model(&domain.RuleDefinition{}).
		Where("id = ?", broken.ID).
		Update("expression", `{"expression":"unknownVariable > 1"}`).Error)

	seedRule(t, svc, "healthy", domain.KindThreshold, `{"metric":"FOIR","operator":"<=","threshold":0.5}`, 0)

	eval, err := svc.Evaluate(context.Background(), dynamicRequest())
	require.NoError(t, err)

	require.Len(t, eval.Results, 2)
	assert.Equal(t, domain.DecisionRefer, eval.Decision, "broken rule counts as a single violation")

	var brokenResult domain.RuleResult
	for _, result := range eval.Results {
		if result.RuleName == "broken" {
			brokenResult = result
		}
	}
	assert.False(t, brokenResult.Passed)
	assert.Contains(t, brokenResult.Message, "Custom rule error")
}

func TestRuleCRUD(t *testing.T) {
	svc := newTestService(t, newTestDB(t), clock.NewFake(time.Now()))

	created := seedRule(t, svc, "foir cap", domain.KindThreshold, `{"metric":"FOIR","operator":"<=","threshold":0.5}`, 5)
	assert.True(t, created.Active)

	got, err := svc.GetByID(context.Background(), domain.GetRuleRequest{ID: created.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, "foir cap", got.Name)

	updated, err := svc.Update(context.Background(), domain.UpdateRuleRequest{
		ID:       created.ID.String(),
		Name:     ptr("foir ceiling"),
		Priority: ptr(9),
		Active:   ptr(false),
	})
	require.NoError(t, err)
	assert.Equal(t, "foir ceiling", updated.Name)
	assert.Equal(t, 9, updated.Priority)
	assert.False(t, updated.Active)

	list, err := svc.List(context.Background(), domain.ListRuleRequest{})
	require.NoError(t, err)
	require.Len(t, list.Rules, 1)

	list, err = svc.List(context.Background(), domain.ListRuleRequest{ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, list.Rules)

	_, err = svc.GetByID(context.Background(), domain.GetRuleRequest{ID: "999999999"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetByID(context.Background(), domain.GetRuleRequest{ID: "not-a-number"})
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestCreateValidatesExpressions(t *testing.T) {
	svc := newTestService(t, newTestDB(t), clock.NewFake(time.Now()))

	cases := []struct {
		name       string
		kind       domain.Kind
		expression string
	}{
		{"unknown threshold metric", domain.KindThreshold, `{"metric":"NOPE","operator":"<=","threshold":1}`},
		{"unknown operator", domain.KindThreshold, `{"metric":"FOIR","operator":"!=","threshold":1}`},
		{"inverted range", domain.KindRange, `{"metric":"AMOUNT","min":10,"max":1}`},
		{"empty flag", domain.KindBoolean, `{"expected":true}`},
		{"unparseable custom", domain.KindCustom, `{"expression":"foir <=> 1"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), domain.CreateRuleRequest{
				Name:       "r",
				Kind:       tc.kind,
				Expression: datatypes.JSON(tc.expression),
			})
			assert.ErrorIs(t, err, domain.ErrInvalidExpression)
		})
	}
}

func TestDecisionFromViolations(t *testing.T) {
	assert.Equal(t, domain.DecisionAutoApprove, domain.DecisionFromViolations(0))
	assert.Equal(t, domain.DecisionRefer, domain.DecisionFromViolations(1))
	assert.Equal(t, domain.DecisionDecline, domain.DecisionFromViolations(2))
	assert.Equal(t, domain.DecisionDecline, domain.DecisionFromViolations(7))
}
