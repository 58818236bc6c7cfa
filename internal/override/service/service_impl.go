package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lendstack/underwriting/internal/clock"
	decisiondomain "github.com/lendstack/underwriting/internal/decision/domain"
	"github.com/lendstack/underwriting/internal/override/domain"
	outboxdomain "github.com/lendstack/underwriting/internal/outbox/domain"
	"github.com/lendstack/underwriting/pkg/db"
	"github.com/lendstack/underwriting/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	Decisions decisiondomain.Repository
	Outbox    outboxdomain.Repository
	Clock     clock.Clock
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	decisions decisiondomain.Repository
	outbox    outboxdomain.Repository
	clock     clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("override.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		decisions: p.Decisions,
		outbox:    p.Outbox,
		clock:     p.Clock,
	}
}

type overrideEventPayload struct {
	OverrideID        snowflake.ID  `json:"overrideId"`
	ApplicationID     string        `json:"applicationId"`
	OriginalDecision  string        `json:"originalDecision"`
	RequestedDecision string        `json:"requestedDecision"`
	Status            domain.Status `json:"status"`
	Actor             string        `json:"actor"`
	OccurredAt        time.Time     `json:"occurredAt"`
	DecisionID        *snowflake.ID `json:"decisionId,omitempty"`
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.OverrideRequest, error) {
	applicationID := strings.TrimSpace(req.ApplicationID)
	if applicationID == "" {
		return domain.OverrideRequest{}, domain.ErrInvalidApplication
	}
	requestedBy := strings.TrimSpace(req.RequestedBy)
	if requestedBy == "" {
		return domain.OverrideRequest{}, domain.ErrInvalidActor
	}
	if !domain.ValidDecision(req.OriginalDecision) || !domain.ValidDecision(req.RequestedDecision) ||
		req.OriginalDecision == req.RequestedDecision {
		return domain.OverrideRequest{}, domain.ErrInvalidDecision
	}
	justification := strings.TrimSpace(req.Justification)
	if len(justification) < domain.MinNarrativeLen {
		return domain.OverrideRequest{}, domain.ErrInvalidJustification
	}

	now := s.clock.Now().UTC()
	row := domain.OverrideRequest{
		ID:                s.genID.Generate(),
		ApplicationID:     applicationID,
		OriginalDecision:  req.OriginalDecision,
		RequestedDecision: req.RequestedDecision,
		Justification:     justification,
		RequestedBy:       requestedBy,
		Status:            domain.StatusPending,
		RequestedAt:       now,
	}

	// Preconditions run inside the insert transaction. The read-then-insert
	// check alone is racy under READ COMMITTED; the partial unique index on
	// pending rows rejects the losing writer.
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.decisions.FindLatest(ctx, tx, applicationID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNoDecision
		}
		if current.Decision != req.OriginalDecision {
			return domain.ErrStaleDecision
		}

		pending, err := s.repo.FindPendingByApplication(ctx, tx, applicationID)
		if err != nil {
			return err
		}
		if pending != nil {
			return domain.ErrPendingExists
		}

		if err := s.repo.Insert(ctx, tx, &row); err != nil {
			return err
		}
		return s.appendEvent(ctx, tx, outboxdomain.EventTypeOverrideRequested, &row, requestedBy, nil, now)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.OverrideRequest{}, domain.ErrPendingExists
		}
		return domain.OverrideRequest{}, err
	}

	s.log.Info("override requested",
		zap.String("application_id", applicationID),
		zap.String("original", string(req.OriginalDecision)),
		zap.String("requested", string(req.RequestedDecision)),
	)
	return row, nil
}

func (s *Service) Approve(ctx context.Context, req domain.ApproveRequest) (domain.OverrideRequest, error) {
	reviewedBy := strings.TrimSpace(req.ReviewedBy)
	if reviewedBy == "" {
		return domain.OverrideRequest{}, domain.ErrInvalidActor
	}
	id, err := parseID(req.OverrideID)
	if err != nil {
		return domain.OverrideRequest{}, err
	}

	var row domain.OverrideRequest
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.loadForReview(ctx, tx, id, req.ApplicationID)
		if err != nil {
			return err
		}
		if found.RequestedBy == reviewedBy {
			return domain.ErrSelfReview
		}

		now := s.clock.Now().UTC()
		remarks := strings.TrimSpace(req.Remarks)

		found.Status = domain.StatusApproved
		found.ReviewedBy = &reviewedBy
		found.ReviewedAt = &now
		if remarks != "" {
			found.ReviewRemarks = &remarks
		}
		if err := s.repo.Update(ctx, tx, found); err != nil {
			return err
		}

		decision, err := s.appendDecision(ctx, tx, found, remarks, now)
		if err != nil {
			return err
		}
		if err := s.appendEvent(ctx, tx, outboxdomain.EventTypeOverrideApproved, found, reviewedBy, &decision.ID, now); err != nil {
			return err
		}
		if err := s.appendDecisionMade(ctx, tx, decision, now); err != nil {
			return err
		}

		row = *found
		return nil
	})
	if err != nil {
		return domain.OverrideRequest{}, err
	}

	s.log.Info("override approved",
		zap.String("application_id", row.ApplicationID),
		zap.String("decision", string(row.RequestedDecision)),
		zap.String("reviewed_by", reviewedBy),
	)
	return row, nil
}

func (s *Service) Reject(ctx context.Context, req domain.RejectRequest) (domain.OverrideRequest, error) {
	reviewedBy := strings.TrimSpace(req.ReviewedBy)
	if reviewedBy == "" {
		return domain.OverrideRequest{}, domain.ErrInvalidActor
	}
	remarks := strings.TrimSpace(req.Remarks)
	if len(remarks) < domain.MinNarrativeLen {
		return domain.OverrideRequest{}, domain.ErrInvalidRemarks
	}
	id, err := parseID(req.OverrideID)
	if err != nil {
		return domain.OverrideRequest{}, err
	}

	var row domain.OverrideRequest
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.loadForReview(ctx, tx, id, req.ApplicationID)
		if err != nil {
			return err
		}
		if found.RequestedBy == reviewedBy {
			return domain.ErrSelfReview
		}

		now := s.clock.Now().UTC()
		found.Status = domain.StatusRejected
		found.ReviewedBy = &reviewedBy
		found.ReviewRemarks = &remarks
		found.ReviewedAt = &now
		if err := s.repo.Update(ctx, tx, found); err != nil {
			return err
		}
		if err := s.appendEvent(ctx, tx, outboxdomain.EventTypeOverrideRejected, found, reviewedBy, nil, now); err != nil {
			return err
		}

		row = *found
		return nil
	})
	if err != nil {
		return domain.OverrideRequest{}, err
	}

	s.log.Info("override rejected",
		zap.String("application_id", row.ApplicationID),
		zap.String("reviewed_by", reviewedBy),
	)
	return row, nil
}

func (s *Service) ListByApplication(ctx context.Context, req domain.ListByApplicationRequest) (domain.ListResponse, error) {
	applicationID := strings.TrimSpace(req.ApplicationID)
	if applicationID == "" {
		return domain.ListResponse{}, domain.ErrInvalidApplication
	}
	pageSize := normalizePageSize(req.PageSize)

	items, err := s.repo.ListByApplication(ctx, s.db, applicationID, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return domain.ListResponse{}, err
	}
	return buildListResponse(items, pageSize), nil
}

func (s *Service) ListPending(ctx context.Context, req domain.ListPendingRequest) (domain.ListResponse, error) {
	pageSize := normalizePageSize(req.PageSize)

	items, err := s.repo.ListPending(ctx, s.db, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return domain.ListResponse{}, err
	}
	return buildListResponse(items, pageSize), nil
}

// loadForReview fetches a PENDING request scoped to the application in the
// route. A request that exists under another application is still not found.
func (s *Service) loadForReview(ctx context.Context, tx *gorm.DB, id snowflake.ID, applicationID string) (*domain.OverrideRequest, error) {
	found, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if found == nil || found.ApplicationID != strings.TrimSpace(applicationID) {
		return nil, domain.ErrNotFound
	}
	if found.Status != domain.StatusPending {
		return nil, domain.ErrNotPending
	}
	return found, nil
}

// appendDecision writes the post-approval decision row. The override link and
// reasons make the manual intervention auditable next to automated rows.
func (s *Service) appendDecision(ctx context.Context, tx *gorm.DB, req *domain.OverrideRequest, remarks string, now time.Time) (*decisiondomain.UnderwritingDecision, error) {
	reasons := []string{
		fmt.Sprintf("Decision overridden from %s to %s", req.OriginalDecision, req.RequestedDecision),
		fmt.Sprintf("Justification: %s", req.Justification),
	}
	if remarks != "" {
		reasons = append(reasons, fmt.Sprintf("Reviewer remarks: %s", remarks))
	}
	reasonsJSON, err := json.Marshal(reasons)
	if err != nil {
		return nil, err
	}

	// The override does not re-run the engine, so the numeric snapshot of
	// the overridden decision is carried forward.
	latest, err := s.decisions.FindLatest(ctx, tx, req.ApplicationID)
	if err != nil {
		return nil, err
	}
	var metrics datatypes.JSON
	if latest != nil {
		metrics = latest.Metrics
	}

	overrideID := req.ID
	decision := decisiondomain.UnderwritingDecision{
		ID:                s.genID.Generate(),
		ApplicationID:     req.ApplicationID,
		Decision:          req.RequestedDecision,
		Reasons:           datatypes.JSON(reasonsJSON),
		Metrics:           metrics,
		EvaluatedBy:       *req.ReviewedBy,
		OverrideRequestID: &overrideID,
		CreatedAt:         now,
	}
	if err := s.decisions.Insert(ctx, tx, &decision); err != nil {
		return nil, err
	}
	return &decision, nil
}

func (s *Service) appendEvent(ctx context.Context, tx *gorm.DB, eventType string, req *domain.OverrideRequest, actor string, decisionID *snowflake.ID, now time.Time) error {
	payload, err := json.Marshal(overrideEventPayload{
		OverrideID:        req.ID,
		ApplicationID:     req.ApplicationID,
		OriginalDecision:  string(req.OriginalDecision),
		RequestedDecision: string(req.RequestedDecision),
		Status:            req.Status,
		Actor:             actor,
		OccurredAt:        now,
		DecisionID:        decisionID,
	})
	if err != nil {
		return err
	}
	return s.outbox.Append(ctx, tx, &outboxdomain.Event{
		ID:          s.genID.Generate(),
		AggregateID: req.ApplicationID,
		Topic:       outboxdomain.TopicUnderwriting,
		EventType:   eventType,
		Payload:     datatypes.JSON(payload),
		Headers:     datatypes.JSONMap{"aggregateId": req.ApplicationID},
		OccurredAt:  now,
	})
}

func (s *Service) appendDecisionMade(ctx context.Context, tx *gorm.DB, decision *decisiondomain.UnderwritingDecision, now time.Time) error {
	var reasons []string
	if len(decision.Reasons) > 0 {
		if err := json.Unmarshal(decision.Reasons, &reasons); err != nil {
			return err
		}
	}
	payload, err := json.Marshal(map[string]any{
		"decisionId":    decision.ID,
		"applicationId": decision.ApplicationID,
		"decision":      decision.Decision,
		"reasons":       reasons,
		"evaluatedBy":   decision.EvaluatedBy,
		"decidedAt":     now,
	})
	if err != nil {
		return err
	}
	return s.outbox.Append(ctx, tx, &outboxdomain.Event{
		ID:          s.genID.Generate(),
		AggregateID: decision.ApplicationID,
		Topic:       outboxdomain.TopicUnderwriting,
		EventType:   outboxdomain.EventTypeDecisionMade,
		Payload:     datatypes.JSON(payload),
		Headers:     datatypes.JSONMap{"aggregateId": decision.ApplicationID},
		OccurredAt:  now,
	})
}

func buildListResponse(items []*domain.OverrideRequest, pageSize int) domain.ListResponse {
	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(req *domain.OverrideRequest) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        req.ID.String(),
			CreatedAt: req.RequestedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	items = pagination.TrimPage(items, pageInfo, pageSize)

	requests := make([]domain.OverrideRequest, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		requests = append(requests, *item)
	}

	resp := domain.ListResponse{Requests: requests}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp
}

func normalizePageSize(size int32) int {
	if size <= 0 {
		return 50
	}
	return int(size)
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
