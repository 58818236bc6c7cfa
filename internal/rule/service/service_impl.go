package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/govaluate"
	"github.com/lendstack/underwriting/internal/clock"
	"github.com/lendstack/underwriting/internal/finmath"
	"github.com/lendstack/underwriting/internal/rule/domain"
	"github.com/lendstack/underwriting/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("rule.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
	}
}

// metricSet is everything a rule can look at, computed once per evaluation.
type metricSet struct {
	ProposedEMI   float64
	FOIR          float64
	LTV           float64
	HasLTV        bool
	AgeAtMaturity float64
}

func computeMetrics(req domain.EvaluateRequest) metricSet {
	emi := finmath.EMI(req.ProposedAmount, req.AnnualRatePct, req.TenureMonths)
	propertyValue := 0.0
	if req.PropertyValue != nil {
		propertyValue = *req.PropertyValue
	}
	ltv, hasLTV := finmath.LTV(req.ProposedAmount, propertyValue)
	return metricSet{
		ProposedEMI:   emi,
		FOIR:          finmath.FOIR(req.ExistingEMI, emi, req.MonthlyIncome),
		LTV:           ltv,
		HasLTV:        hasLTV,
		AgeAtMaturity: finmath.AgeAtMaturity(req.ApplicantAgeYears, req.TenureMonths),
	}
}

func (s *Service) Evaluate(ctx context.Context, req domain.EvaluateRequest) (domain.Evaluation, error) {
	if err := validateContext(req); err != nil {
		return domain.Evaluation{}, err
	}

	dynamic := req.ProductCode != "" && req.Channel != ""
	if !dynamic && req.Static == nil {
		return domain.Evaluation{}, domain.ErrMissingRuleScope
	}

	m := computeMetrics(req)

	var (
		results []domain.RuleResult
		err     error
	)
	if dynamic {
		results, err = s.evaluateDynamic(ctx, req, m)
		if err != nil {
			return domain.Evaluation{}, err
		}
	} else {
		results = evaluateStatic(req, *req.Static, m)
	}

	violations := make([]string, 0)
	for _, result := range results {
		if !result.Passed {
			violations = append(violations, result.Message)
		}
	}

	eval := domain.Evaluation{
		Decision:   domain.DecisionFromViolations(len(violations)),
		Violations: violations,
		Results:    results,
		Metrics: domain.Metrics{
			FOIR:          m.FOIR,
			AgeAtMaturity: m.AgeAtMaturity,
			ProposedEMI:   m.ProposedEMI,
			CreditScore:   req.CreditScore,
		},
	}
	if m.HasLTV {
		ltv := m.LTV
		eval.Metrics.LTV = &ltv
	}

	return eval, nil
}

func validateContext(req domain.EvaluateRequest) error {
	if strings.TrimSpace(req.ApplicationID) == "" {
		return domain.ErrInvalidContext
	}
	if req.MonthlyIncome <= 0 || req.ProposedAmount <= 0 || req.TenureMonths < 1 {
		return domain.ErrInvalidContext
	}
	if req.AnnualRatePct < 0 || req.ApplicantAgeYears < 18 {
		return domain.ErrInvalidContext
	}
	return nil
}

// evaluateDynamic runs the configured rule set for the request's scope. The
// repository already returns rules in priority order; each outcome is
// recorded as an immutable audit row, and a failed history write never fails
// the evaluation itself.
func (s *Service) evaluateDynamic(ctx context.Context, req domain.EvaluateRequest, m metricSet) ([]domain.RuleResult, error) {
	rules, err := s.repo.FindApplicable(ctx, s.db, req.ProductCode, req.Channel, s.clock.Now())
	if err != nil {
		return nil, err
	}

	results := make([]domain.RuleResult, 0, len(rules))
	for _, rule := range rules {
		result := evaluateRule(rule, req, m)
		results = append(results, result)

		record := &domain.EvaluationRecord{
			ID:             s.genID.Generate(),
			ApplicationID:  req.ApplicationID,
			RuleID:         rule.ID,
			RuleName:       rule.Name,
			Passed:         result.Passed,
			EvaluatedValue: result.EvaluatedValue,
			ThresholdValue: result.ThresholdValue,
			CreatedAt:      s.clock.Now().UTC(),
		}
		if details, err := json.Marshal(result); err == nil {
			record.Details = datatypes.JSON(details)
		}
		if err := s.repo.RecordEvaluation(ctx, s.db, record); err != nil {
			s.log.Warn("failed to record rule evaluation",
				zap.String("application_id", req.ApplicationID),
				zap.String("rule_id", rule.ID.String()),
				zap.Error(err),
			)
		}
	}

	return results, nil
}

func evaluateRule(rule *domain.RuleDefinition, req domain.EvaluateRequest, m metricSet) domain.RuleResult {
	base := domain.RuleResult{
		RuleID:   rule.ID.String(),
		RuleName: rule.Name,
	}

	switch rule.Kind {
	case domain.KindThreshold:
		return evaluateThreshold(base, rule.Expression, req, m)
	case domain.KindRange:
		return evaluateRange(base, rule.Expression, req)
	case domain.KindBoolean:
		return evaluateBoolean(base, rule.Expression, req)
	case domain.KindCustom:
		return evaluateCustom(base, rule.Expression, req, m)
	default:
		base.Message = fmt.Sprintf("Unknown rule kind: %s", rule.Kind)
		return base
	}
}

func evaluateThreshold(base domain.RuleResult, raw datatypes.JSON, req domain.EvaluateRequest, m metricSet) domain.RuleResult {
	var expr domain.ThresholdExpression
	if err := json.Unmarshal(raw, &expr); err != nil {
		base.Message = fmt.Sprintf("Rule evaluation error: %v", err)
		return base
	}

	var value float64
	switch expr.Metric {
	case domain.MetricFOIR:
		value = m.FOIR
	case domain.MetricLTV:
		if !m.HasLTV {
			base.Passed = true
			base.Message = "LTV not applicable (no property value)"
			return base
		}
		value = m.LTV
	case domain.MetricAgeAtMaturity:
		value = m.AgeAtMaturity
	case domain.MetricCreditScore:
		if req.CreditScore == nil {
			base.Message = "Credit score not provided"
			return base
		}
		value = *req.CreditScore
	default:
		base.Message = fmt.Sprintf("Unknown metric: %s", expr.Metric)
		return base
	}

	var passed bool
	switch expr.Operator {
	case "<=":
		passed = value <= expr.Threshold
	case ">=":
		passed = value >= expr.Threshold
	case "<":
		passed = value < expr.Threshold
	case ">":
		passed = value > expr.Threshold
	case "==":
		passed = value == expr.Threshold
	default:
		passed = false
	}

	base.Passed = passed
	base.EvaluatedValue = &value
	base.ThresholdValue = &expr.Threshold
	if passed {
		base.Message = fmt.Sprintf("%s %.4f %s %s", expr.Metric, value, expr.Operator, formatNumber(expr.Threshold))
	} else {
		base.Message = fmt.Sprintf("%s %.4f violates %s %s", expr.Metric, value, expr.Operator, formatNumber(expr.Threshold))
	}
	return base
}

func evaluateRange(base domain.RuleResult, raw datatypes.JSON, req domain.EvaluateRequest) domain.RuleResult {
	var expr domain.RangeExpression
	if err := json.Unmarshal(raw, &expr); err != nil {
		base.Message = fmt.Sprintf("Rule evaluation error: %v", err)
		return base
	}

	var value float64
	switch expr.Metric {
	case domain.MetricAmount:
		value = req.ProposedAmount
	case domain.MetricTenure:
		value = float64(req.TenureMonths)
	case domain.MetricIncome:
		value = req.MonthlyIncome
	default:
		base.Message = fmt.Sprintf("Unknown metric: %s", expr.Metric)
		return base
	}

	passed := value >= expr.Min && value <= expr.Max
	base.Passed = passed
	base.EvaluatedValue = &value
	base.ThresholdValue = &expr.Max
	if passed {
		base.Message = fmt.Sprintf("%s %s is within range [%s, %s]", expr.Metric, formatNumber(value), formatNumber(expr.Min), formatNumber(expr.Max))
	} else {
		base.Message = fmt.Sprintf("%s %s is outside range [%s, %s]", expr.Metric, formatNumber(value), formatNumber(expr.Min), formatNumber(expr.Max))
	}
	return base
}

// evaluateBoolean checks a named context flag. A flag the caller never
// supplied passes with an explanatory message rather than failing, so
// partially populated contexts do not trip flag rules.
func evaluateBoolean(base domain.RuleResult, raw datatypes.JSON, req domain.EvaluateRequest) domain.RuleResult {
	var expr domain.BooleanExpression
	if err := json.Unmarshal(raw, &expr); err != nil {
		base.Message = fmt.Sprintf("Rule evaluation error: %v", err)
		return base
	}

	value, ok := req.Flags[expr.Flag]
	if expr.Flag == "" || !ok {
		base.Passed = true
		base.Message = fmt.Sprintf("Flag %q not provided", expr.Flag)
		return base
	}

	base.Passed = value == expr.Expected
	if base.Passed {
		base.Message = fmt.Sprintf("Flag %q = %t", expr.Flag, value)
	} else {
		base.Message = fmt.Sprintf("Flag %q = %t, expected %t", expr.Flag, value, expr.Expected)
	}
	return base
}

// evaluateCustom interprets the expression with a sandboxed evaluator over a
// closed variable set. There is no access to ambient state or I/O; any parse
// or evaluation error marks this one rule failed and evaluation of the
// remaining rules continues.
func evaluateCustom(base domain.RuleResult, raw datatypes.JSON, req domain.EvaluateRequest, m metricSet) domain.RuleResult {
	var expr domain.CustomExpression
	if err := json.Unmarshal(raw, &expr); err != nil {
		base.Message = fmt.Sprintf("Rule evaluation error: %v", err)
		return base
	}

	parsed, err := govaluate.NewEvaluableExpression(expr.Expression)
	if err != nil {
		base.Message = fmt.Sprintf("Custom rule error: %v", err)
		return base
	}

	out, err := parsed.Evaluate(customParameters(req, m))
	if err != nil {
		base.Message = fmt.Sprintf("Custom rule error: %v", err)
		return base
	}

	switch v := out.(type) {
	case bool:
		base.Passed = v
	case float64:
		base.Passed = v != 0
	default:
		base.Message = fmt.Sprintf("Custom rule error: non-boolean result %v", out)
		return base
	}

	base.Message = fmt.Sprintf("Custom rule: %v", out)
	return base
}

func customParameters(req domain.EvaluateRequest, m metricSet) map[string]interface{} {
	propertyValue := 0.0
	if req.PropertyValue != nil {
		propertyValue = *req.PropertyValue
	}
	creditScore := 0.0
	if req.CreditScore != nil {
		creditScore = *req.CreditScore
	}
	return map[string]interface{}{
		"monthlyIncome":     req.MonthlyIncome,
		"existingEmi":       req.ExistingEMI,
		"proposedAmount":    req.ProposedAmount,
		"tenureMonths":      float64(req.TenureMonths),
		"annualRate":        req.AnnualRatePct,
		"propertyValue":     propertyValue,
		"applicantAgeYears": req.ApplicantAgeYears,
		"creditScore":       creditScore,
		"proposedEmi":       m.ProposedEMI,
		"foir":              m.FOIR,
		"ltv":               m.LTV,
		"ageAtMaturity":     m.AgeAtMaturity,
	}
}

// evaluateStatic is the backward-compatible path: the caller supplies the
// thresholds inline and the rule store is never touched.
func evaluateStatic(req domain.EvaluateRequest, bundle domain.ThresholdBundle, m metricSet) []domain.RuleResult {
	results := make([]domain.RuleResult, 0, 4)

	foir := m.FOIR
	maxFOIR := bundle.MaxFOIR
	foirResult := domain.RuleResult{
		RuleName:       domain.MetricFOIR,
		Passed:         foir <= maxFOIR,
		EvaluatedValue: &foir,
		ThresholdValue: &maxFOIR,
	}
	if !foirResult.Passed {
		foirResult.Message = fmt.Sprintf("FOIR %.2f exceeds %s", foir, formatNumber(maxFOIR))
	}
	results = append(results, foirResult)

	if bundle.MaxLTV != nil {
		maxLTV := *bundle.MaxLTV
		ltvResult := domain.RuleResult{
			RuleName:       domain.MetricLTV,
			ThresholdValue: &maxLTV,
		}
		if !m.HasLTV {
			ltvResult.Passed = true
			ltvResult.Message = "LTV not applicable (no property value)"
		} else {
			ltv := m.LTV
			ltvResult.Passed = ltv <= maxLTV
			ltvResult.EvaluatedValue = &ltv
			if !ltvResult.Passed {
				ltvResult.Message = fmt.Sprintf("LTV %.2f%% exceeds %.2f%%", ltv*100, maxLTV*100)
			}
		}
		results = append(results, ltvResult)
	}

	age := m.AgeAtMaturity
	maxAge := bundle.MaxAgeAtMaturity
	ageResult := domain.RuleResult{
		RuleName:       domain.MetricAgeAtMaturity,
		Passed:         age <= maxAge,
		EvaluatedValue: &age,
		ThresholdValue: &maxAge,
	}
	if !ageResult.Passed {
		ageResult.Message = fmt.Sprintf("Age at maturity %.1f exceeds %s", age, formatNumber(maxAge))
	}
	results = append(results, ageResult)

	if bundle.MinCreditScore != nil {
		minScore := *bundle.MinCreditScore
		scoreResult := domain.RuleResult{
			RuleName:       domain.MetricCreditScore,
			ThresholdValue: &minScore,
		}
		if req.CreditScore == nil {
			scoreResult.Message = "Credit score not provided"
		} else {
			score := *req.CreditScore
			scoreResult.Passed = score >= minScore
			scoreResult.EvaluatedValue = &score
			if !scoreResult.Passed {
				scoreResult.Message = fmt.Sprintf("Credit score %s below %s", formatNumber(score), formatNumber(minScore))
			}
		}
		results = append(results, scoreResult)
	}

	return results
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (s *Service) Create(ctx context.Context, req domain.CreateRuleRequest) (domain.RuleDefinition, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.RuleDefinition{}, domain.ErrInvalidName
	}
	if err := validateExpression(req.Kind, req.Expression); err != nil {
		return domain.RuleDefinition{}, err
	}

	now := s.clock.Now().UTC()
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	effectiveFrom := now
	if req.EffectiveFrom != nil {
		effectiveFrom = req.EffectiveFrom.UTC()
	}

	rule := domain.RuleDefinition{
		ID:             s.genID.Generate(),
		Name:           name,
		Kind:           req.Kind,
		Expression:     req.Expression,
		ProductCode:    req.ProductCode,
		Channel:        req.Channel,
		Priority:       req.Priority,
		Active:         active,
		EffectiveFrom:  effectiveFrom,
		EffectiveUntil: req.EffectiveUntil,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Insert(ctx, s.db, &rule); err != nil {
		return domain.RuleDefinition{}, err
	}

	return rule, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateRuleRequest) (domain.RuleDefinition, error) {
	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.RuleDefinition{}, err
	}

	rule, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.RuleDefinition{}, err
	}
	if rule == nil {
		return domain.RuleDefinition{}, domain.ErrNotFound
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.RuleDefinition{}, domain.ErrInvalidName
		}
		rule.Name = name
	}
	if req.Expression != nil {
		if err := validateExpression(rule.Kind, req.Expression); err != nil {
			return domain.RuleDefinition{}, err
		}
		rule.Expression = req.Expression
	}
	if req.ProductCode != nil {
		rule.ProductCode = req.ProductCode
	}
	if req.Channel != nil {
		rule.Channel = req.Channel
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}
	if req.EffectiveUntil != nil {
		rule.EffectiveUntil = req.EffectiveUntil
	}
	rule.UpdatedAt = s.clock.Now().UTC()

	if err := s.repo.Update(ctx, s.db, rule); err != nil {
		return domain.RuleDefinition{}, err
	}

	return *rule, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetRuleRequest) (domain.RuleDefinition, error) {
	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.RuleDefinition{}, err
	}

	rule, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.RuleDefinition{}, err
	}
	if rule == nil {
		return domain.RuleDefinition{}, domain.ErrNotFound
	}

	return *rule, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRuleRequest) (domain.ListRuleResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	filter := domain.ListRuleFilter{
		Kind:        strings.TrimSpace(req.Kind),
		ProductCode: strings.TrimSpace(req.ProductCode),
		Channel:     strings.TrimSpace(req.Channel),
		ActiveOnly:  req.ActiveOnly,
	}

	items, err := s.repo.List(ctx, s.db, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListRuleResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int(pageSize), func(rule *domain.RuleDefinition) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        rule.ID.String(),
			CreatedAt: rule.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	items = pagination.TrimPage(items, pageInfo, int(pageSize))

	rules := make([]domain.RuleDefinition, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		rules = append(rules, *item)
	}

	resp := domain.ListRuleResponse{Rules: rules}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

func (s *Service) parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func validateExpression(kind domain.Kind, raw datatypes.JSON) error {
	if len(raw) == 0 {
		return domain.ErrInvalidExpression
	}

	switch kind {
	case domain.KindThreshold:
		var expr domain.ThresholdExpression
		if err := json.Unmarshal(raw, &expr); err != nil {
			return domain.ErrInvalidExpression
		}
		switch expr.Metric {
		case domain.MetricFOIR, domain.MetricLTV, domain.MetricAgeAtMaturity, domain.MetricCreditScore:
		default:
			return domain.ErrInvalidExpression
		}
		switch expr.Operator {
		case "<=", ">=", "<", ">", "==":
		default:
			return domain.ErrInvalidExpression
		}
	case domain.KindRange:
		var expr domain.RangeExpression
		if err := json.Unmarshal(raw, &expr); err != nil {
			return domain.ErrInvalidExpression
		}
		switch expr.Metric {
		case domain.MetricAmount, domain.MetricTenure, domain.MetricIncome:
		default:
			return domain.ErrInvalidExpression
		}
		if expr.Min > expr.Max {
			return domain.ErrInvalidExpression
		}
	case domain.KindBoolean:
		var expr domain.BooleanExpression
		if err := json.Unmarshal(raw, &expr); err != nil {
			return domain.ErrInvalidExpression
		}
		if expr.Flag == "" {
			return domain.ErrInvalidExpression
		}
	case domain.KindCustom:
		var expr domain.CustomExpression
		if err := json.Unmarshal(raw, &expr); err != nil {
			return domain.ErrInvalidExpression
		}
		if _, err := govaluate.NewEvaluableExpression(expr.Expression); err != nil {
			return domain.ErrInvalidExpression
		}
	default:
		return domain.ErrInvalidKind
	}

	return nil
}
