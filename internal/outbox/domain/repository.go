package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Append writes the event inside the caller's transaction. Callers must
	// pass the same tx handle as the domain write the event describes.
	Append(ctx context.Context, tx *gorm.DB, event *Event) error

	// LockUnpublished selects up to limit undelivered rows in occurrence
	// order, skipping rows locked by a concurrent publisher. maxAttempts of
	// zero means no ceiling.
	LockUnpublished(ctx context.Context, tx *gorm.DB, limit, maxAttempts int) ([]*Event, error)

	// MarkPublished stamps the rows and increments their attempt counters.
	MarkPublished(ctx context.Context, tx *gorm.DB, ids []snowflake.ID, at time.Time) error

	// MarkFailed increments the attempt counters of still-unpublished rows.
	// Callers run it outside the batch transaction so the count survives the
	// rollback a sink failure triggers; the MaxAttempts ceiling reads it.
	MarkFailed(ctx context.Context, db *gorm.DB, ids []snowflake.ID) error
}
