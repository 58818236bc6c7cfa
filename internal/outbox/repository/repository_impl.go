package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lendstack/underwriting/internal/outbox/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Append(ctx context.Context, tx *gorm.DB, event *domain.Event) error {
	return tx.WithContext(ctx).Create(event).Error
}

func (r *repo) LockUnpublished(ctx context.Context, tx *gorm.DB, limit, maxAttempts int) ([]*domain.Event, error) {
	var events []*domain.Event
	err := unpublishedQuery(tx.WithContext(ctx), maxAttempts).
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// unpublishedQuery selects undelivered rows in occurrence order, honoring an
// optional attempts ceiling.
func unpublishedQuery(tx *gorm.DB, maxAttempts int) *gorm.DB {
	stmt := tx.Model(&domain.Event{}).Where("published_at IS NULL")

	if maxAttempts > 0 {
		stmt = stmt.Where("attempts < ?", maxAttempts)
	}

	// SKIP LOCKED lets concurrent publisher replicas share the table
	// without double-delivery. SQLite has no row locks; tests run there
	// single-writer.
	switch tx.Dialector.Name() {
	case "postgres", "mysql":
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}

	return stmt.Order("occurred_at ASC, id ASC")
}

func (r *repo) MarkPublished(ctx context.Context, tx *gorm.DB, ids []snowflake.ID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Exec(
		`UPDATE outbox_events SET published_at = ?, attempts = attempts + 1 WHERE id IN ?`,
		at,
		ids,
	).Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, ids []snowflake.ID) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`UPDATE outbox_events SET attempts = attempts + 1 WHERE id IN ? AND published_at IS NULL`,
		ids,
	).Error
}
