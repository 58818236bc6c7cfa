package domain

import (
	"context"
	"errors"

	ruledomain "github.com/lendstack/underwriting/internal/rule/domain"
	"github.com/lendstack/underwriting/pkg/db/pagination"
)

// MinNarrativeLen is the shortest acceptable justification or rejection
// remark. Overrides are audited, a one-word reason is not reviewable.
const MinNarrativeLen = 10

type CreateRequest struct {
	ApplicationID     string              `json:"-"`
	OriginalDecision  ruledomain.Decision `json:"original_decision"`
	RequestedDecision ruledomain.Decision `json:"requested_decision"`
	Justification     string              `json:"justification"`
	RequestedBy       string              `json:"requested_by"`
}

type ApproveRequest struct {
	ApplicationID string `json:"-"`
	OverrideID    string `json:"-"`
	ReviewedBy    string `json:"reviewed_by"`
	Remarks       string `json:"remarks"`
}

type RejectRequest struct {
	ApplicationID string `json:"-"`
	OverrideID    string `json:"-"`
	ReviewedBy    string `json:"reviewed_by"`
	Remarks       string `json:"remarks"`
}

type ListByApplicationRequest struct {
	ApplicationID string
	PageToken     string
	PageSize      int32
}

type ListPendingRequest struct {
	PageToken string
	PageSize  int32
}

type ListResponse struct {
	pagination.PageInfo
	Requests []OverrideRequest `json:"requests"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (OverrideRequest, error)
	Approve(ctx context.Context, req ApproveRequest) (OverrideRequest, error)
	Reject(ctx context.Context, req RejectRequest) (OverrideRequest, error)
	ListByApplication(ctx context.Context, req ListByApplicationRequest) (ListResponse, error)
	ListPending(ctx context.Context, req ListPendingRequest) (ListResponse, error)
}

var (
	ErrInvalidID            = errors.New("invalid_id")
	ErrInvalidApplication   = errors.New("invalid_application")
	ErrInvalidDecision      = errors.New("invalid_decision")
	ErrInvalidJustification = errors.New("invalid_justification")
	ErrInvalidRemarks       = errors.New("invalid_remarks")
	ErrInvalidActor         = errors.New("invalid_actor")
	ErrNoDecision           = errors.New("no_decision")
	ErrStaleDecision        = errors.New("stale_decision")
	ErrPendingExists        = errors.New("pending_exists")
	ErrNotPending           = errors.New("not_pending")
	ErrSelfReview           = errors.New("self_review")
	ErrNotFound             = errors.New("not_found")
)

// ValidDecision reports whether d is one of the three verdicts.
func ValidDecision(d ruledomain.Decision) bool {
	switch d {
	case ruledomain.DecisionAutoApprove, ruledomain.DecisionRefer, ruledomain.DecisionDecline:
		return true
	}
	return false
}
