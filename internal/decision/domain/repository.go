package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, decision *UnderwritingDecision) error
	// FindLatest returns the current decision: greatest (created_at, id).
	FindLatest(ctx context.Context, db *gorm.DB, applicationID string) (*UnderwritingDecision, error)
	FindByIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*UnderwritingDecision, error)
}
