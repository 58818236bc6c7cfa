package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lendstack/underwriting/internal/clock"
	"github.com/lendstack/underwriting/internal/config"
	"github.com/lendstack/underwriting/internal/decision/domain"
	obsmetrics "github.com/lendstack/underwriting/internal/observability/metrics"
	outboxdomain "github.com/lendstack/underwriting/internal/outbox/domain"
	ruledomain "github.com/lendstack/underwriting/internal/rule/domain"
	"github.com/lendstack/underwriting/internal/scoring/adapter"
	scoringdomain "github.com/lendstack/underwriting/internal/scoring/domain"
	"github.com/lendstack/underwriting/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Rules   ruledomain.Service
	Scorer  *adapter.Fallback
	Outbox  outboxdomain.Repository
	Clock   clock.Clock
	Engine  config.EngineConfig
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	rules   ruledomain.Service
	scorer  *adapter.Fallback
	outbox  outboxdomain.Repository
	clock   clock.Clock
	engine  config.EngineConfig
	metrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("decision.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		rules:   p.Rules,
		scorer:  p.Scorer,
		outbox:  p.Outbox,
		clock:   p.Clock,
		engine:  p.Engine,
		metrics: p.Metrics,
	}
}

// decisionMadePayload is the DecisionMade event body consumers receive.
type decisionMadePayload struct {
	DecisionID    snowflake.ID        `json:"decisionId"`
	ApplicationID string              `json:"applicationId"`
	Decision      ruledomain.Decision `json:"decision"`
	Reasons       []string            `json:"reasons"`
	EvaluatedBy   string              `json:"evaluatedBy"`
	DecidedAt     time.Time           `json:"decidedAt"`
}

func (s *Service) Underwrite(ctx context.Context, req domain.UnderwriteRequest) (domain.UnderwriteResponse, error) {
	applicationID := strings.TrimSpace(req.ApplicationID)
	if applicationID == "" {
		return domain.UnderwriteResponse{}, domain.ErrInvalidApplication
	}
	evaluatedBy := strings.TrimSpace(req.EvaluatedBy)
	if evaluatedBy == "" {
		evaluatedBy = "system"
	}

	// Replay: an existing decision with the same idempotency key is returned
	// without a new write. An empty key keeps the legacy behavior where
	// retries append duplicate rows.
	idempotencyKey := strings.TrimSpace(req.IdempotencyKey)
	if idempotencyKey != "" {
		existing, err := s.repo.FindByIdempotencyKey(ctx, s.db, idempotencyKey)
		if err != nil {
			return domain.UnderwriteResponse{}, err
		}
		if existing != nil {
			resp, err := responseFromRow(existing)
			if err != nil {
				return domain.UnderwriteResponse{}, err
			}
			resp.Replayed = true
			return resp, nil
		}
	}

	// Rule evaluation and risk scoring are independent; run them
	// concurrently and join at fusion. Scoring is best-effort: it has its
	// own deadline and any failure degrades to a rule-only decision.
	var (
		ruleEval ruledomain.Evaluation
		scoring  *scoringdomain.Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ruleEval, err = s.rules.Evaluate(gctx, ruleRequest(applicationID, req))
		return err
	})
	g.Go(func() error {
		timeout := time.Duration(s.engine.ScoringTimeoutMs) * time.Millisecond
		scoringCtx, cancel := context.WithTimeout(gctx, timeout)
		defer cancel()

		result, err := s.scorer.Calculate(scoringCtx, scoringRequest(applicationID, req))
		if err != nil {
			s.log.Warn("scoring unavailable, continuing with rule-only decision",
				zap.String("application_id", applicationID),
				zap.Error(err),
			)
			if s.metrics != nil {
				s.metrics.RecordScoringFallback()
			}
			return nil
		}
		scoring = &result
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.UnderwriteResponse{}, err
	}

	final, reasons, enhancement := domain.Fuse(ruleEval.Decision, ruleEval.Violations, scoring, domain.FusionConfig{
		ScoreUpgradeThreshold: s.engine.ScoreUpgradeThreshold,
		ConfidenceFloor:       s.engine.ConfidenceFloor,
	})

	snapshot := domain.MetricsSnapshot{
		FOIR:          ruleEval.Metrics.FOIR,
		LTV:           ruleEval.Metrics.LTV,
		AgeAtMaturity: ruleEval.Metrics.AgeAtMaturity,
		ProposedEMI:   ruleEval.Metrics.ProposedEMI,
		CreditScore:   ruleEval.Metrics.CreditScore,
		Scoring:       enhancement,
	}

	reasonsJSON, err := json.Marshal(reasons)
	if err != nil {
		return domain.UnderwriteResponse{}, err
	}
	metricsJSON, err := json.Marshal(snapshot)
	if err != nil {
		return domain.UnderwriteResponse{}, err
	}

	now := s.clock.Now().UTC()
	row := domain.UnderwritingDecision{
		ID:            s.genID.Generate(),
		ApplicationID: applicationID,
		Decision:      final,
		Reasons:       datatypes.JSON(reasonsJSON),
		Metrics:       datatypes.JSON(metricsJSON),
		EvaluatedBy:   evaluatedBy,
		CreatedAt:     now,
	}
	if idempotencyKey != "" {
		row.IdempotencyKey = &idempotencyKey
	}

	payload, err := json.Marshal(decisionMadePayload{
		DecisionID:    row.ID,
		ApplicationID: applicationID,
		Decision:      final,
		Reasons:       reasons,
		EvaluatedBy:   evaluatedBy,
		DecidedAt:     now,
	})
	if err != nil {
		return domain.UnderwriteResponse{}, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &row); err != nil {
			return err
		}
		return s.outbox.Append(ctx, tx, &outboxdomain.Event{
			ID:          s.genID.Generate(),
			AggregateID: applicationID,
			Topic:       outboxdomain.TopicUnderwriting,
			EventType:   outboxdomain.EventTypeDecisionMade,
			Payload:     datatypes.JSON(payload),
			Headers:     datatypes.JSONMap{"aggregateId": applicationID},
			OccurredAt:  now,
		})
	})
	if err != nil {
		// A concurrent request with the same key won the insert race; serve
		// its decision instead of surfacing the constraint violation.
		if idempotencyKey != "" && db.IsDuplicateKeyErr(err) {
			existing, ferr := s.repo.FindByIdempotencyKey(ctx, s.db, idempotencyKey)
			if ferr == nil && existing != nil {
				resp, rerr := responseFromRow(existing)
				if rerr == nil {
					resp.Replayed = true
					return resp, nil
				}
			}
		}
		return domain.UnderwriteResponse{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordDecision(string(final))
	}
	s.log.Info("decision recorded",
		zap.String("application_id", applicationID),
		zap.String("decision", string(final)),
		zap.Int("violations", len(ruleEval.Violations)),
		zap.Bool("scoring_used", scoring != nil),
	)

	return domain.UnderwriteResponse{
		DecisionID: row.ID,
		Decision:   final,
		Reasons:    reasons,
		Metrics:    snapshot,
		Scoring:    enhancement,
	}, nil
}

func (s *Service) Latest(ctx context.Context, req domain.GetDecisionRequest) (domain.UnderwritingDecision, error) {
	applicationID := strings.TrimSpace(req.ApplicationID)
	if applicationID == "" {
		return domain.UnderwritingDecision{}, domain.ErrInvalidApplication
	}

	row, err := s.repo.FindLatest(ctx, s.db, applicationID)
	if err != nil {
		return domain.UnderwritingDecision{}, err
	}
	if row == nil {
		return domain.UnderwritingDecision{}, domain.ErrNotFound
	}
	return *row, nil
}

func ruleRequest(applicationID string, req domain.UnderwriteRequest) ruledomain.EvaluateRequest {
	return ruledomain.EvaluateRequest{
		ApplicationID:     applicationID,
		MonthlyIncome:     req.MonthlyIncome,
		ExistingEMI:       req.ExistingEMI,
		ProposedAmount:    req.ProposedAmount,
		TenureMonths:      req.TenureMonths,
		AnnualRatePct:     req.AnnualRatePct,
		PropertyValue:     req.PropertyValue,
		ApplicantAgeYears: req.ApplicantAgeYears,
		CreditScore:       req.CreditScore,
		Flags:             req.Flags,
		ProductCode:       req.ProductCode,
		Channel:           req.Channel,
		Static:            req.Static,
	}
}

func scoringRequest(applicationID string, req domain.UnderwriteRequest) scoringdomain.Request {
	return scoringdomain.Request{
		ApplicationID:       applicationID,
		ApplicantID:         req.ApplicantID,
		MonthlyIncome:       req.MonthlyIncome,
		ExistingEMI:         req.ExistingEMI,
		ProposedAmount:      req.ProposedAmount,
		TenureMonths:        req.TenureMonths,
		AnnualRatePct:       req.AnnualRatePct,
		PropertyValue:       req.PropertyValue,
		ApplicantAgeYears:   req.ApplicantAgeYears,
		CreditScore:         req.CreditScore,
		EmploymentType:      req.EmploymentType,
		EmploymentTenure:    req.EmploymentTenure,
		BankingRelationship: req.BankingRelationship,
		PreviousDefaults:    req.PreviousDefaults,
		Channel:             req.Channel,
		ProductCode:         req.ProductCode,
		BureauReport:        req.BureauReport,
		DocumentCount:       req.DocumentCount,
		KYCStatus:           req.KYCStatus,
	}
}

// responseFromRow rebuilds the API response from a persisted decision.
func responseFromRow(row *domain.UnderwritingDecision) (domain.UnderwriteResponse, error) {
	var reasons []string
	if len(row.Reasons) > 0 {
		if err := json.Unmarshal(row.Reasons, &reasons); err != nil {
			return domain.UnderwriteResponse{}, err
		}
	}
	var snapshot domain.MetricsSnapshot
	if len(row.Metrics) > 0 {
		if err := json.Unmarshal(row.Metrics, &snapshot); err != nil {
			return domain.UnderwriteResponse{}, err
		}
	}
	return domain.UnderwriteResponse{
		DecisionID: row.ID,
		Decision:   row.Decision,
		Reasons:    reasons,
		Metrics:    snapshot,
		Scoring:    snapshot.Scoring,
	}, nil
}
