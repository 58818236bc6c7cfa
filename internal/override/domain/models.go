// Package domain contains the override request aggregate. Overrides follow
// maker-checker: the requester records why the automated decision should
// change, a different reviewer approves or rejects it.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	ruledomain "github.com/lendstack/underwriting/internal/rule/domain"
)

// Status is the review state of an override request.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// OverrideRequest records a request to replace the current automated decision
// with a manual one. At most one PENDING request may exist per application;
// a partial unique index enforces it against concurrent writers.
type OverrideRequest struct {
	ID                snowflake.ID        `gorm:"primaryKey" json:"id"`
	ApplicationID     string              `gorm:"not null;index;index:ux_override_requests_pending,unique,where:status = 'PENDING'" json:"application_id"`
	OriginalDecision  ruledomain.Decision `gorm:"type:text;not null" json:"original_decision"`
	RequestedDecision ruledomain.Decision `gorm:"type:text;not null" json:"requested_decision"`
	Justification     string              `gorm:"not null" json:"justification"`
	RequestedBy       string              `gorm:"not null" json:"requested_by"`
	Status            Status              `gorm:"type:text;not null;index" json:"status"`
	ReviewedBy        *string             `json:"reviewed_by,omitempty"`
	ReviewRemarks     *string             `json:"review_remarks,omitempty"`
	RequestedAt       time.Time           `gorm:"not null;index" json:"requested_at"`
	ReviewedAt        *time.Time          `json:"reviewed_at,omitempty"`
}

// TableName sets the database table name.
func (OverrideRequest) TableName() string { return "override_requests" }
