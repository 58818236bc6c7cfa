package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Event is one outbox row. It is appended in the same transaction as the
// domain write it describes and touched afterwards only by the publisher.
type Event struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	AggregateID string            `gorm:"not null;index" json:"aggregate_id"`
	Topic       string            `gorm:"not null" json:"topic"`
	EventType   string            `gorm:"not null" json:"event_type"`
	Payload     datatypes.JSON    `gorm:"type:jsonb;not null" json:"payload"`
	Headers     datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"headers"`
	OccurredAt  time.Time         `gorm:"not null;index" json:"occurred_at"`
	PublishedAt *time.Time        `json:"published_at,omitempty"`
	Attempts    int               `gorm:"not null;default:0" json:"attempts"`
}

func (Event) TableName() string { return "outbox_events" }

// Topics and event types emitted by the decision engine.
const (
	TopicUnderwriting = "underwriting"

	EventTypeDecisionMade      = "DecisionMade"
	EventTypeOverrideRequested = "OverrideRequested"
	EventTypeOverrideApproved  = "OverrideApproved"
	EventTypeOverrideRejected  = "OverrideRejected"
)
