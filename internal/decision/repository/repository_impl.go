package repository

import (
	"context"

	"github.com/lendstack/underwriting/internal/decision/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, decision *domain.UnderwritingDecision) error {
	return db.WithContext(ctx).Create(decision).Error
}

func (r *repo) FindLatest(ctx context.Context, db *gorm.DB, applicationID string) (*domain.UnderwritingDecision, error) {
	var decision domain.UnderwritingDecision
	err := db.WithContext(ctx).
		Where("application_id = ?", applicationID).
		Order("created_at DESC, id DESC").
		First(&decision).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &decision, nil
}

func (r *repo) FindByIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*domain.UnderwritingDecision, error) {
	var decision domain.UnderwritingDecision
	err := db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&decision).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &decision, nil
}
