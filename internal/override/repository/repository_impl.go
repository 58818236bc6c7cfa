package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lendstack/underwriting/internal/override/domain"
	"github.com/lendstack/underwriting/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, req *domain.OverrideRequest) error {
	return tx.WithContext(ctx).Create(req).Error
}

func (r *repo) Update(ctx context.Context, tx *gorm.DB, req *domain.OverrideRequest) error {
	return tx.WithContext(ctx).Save(req).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.OverrideRequest, error) {
	var req domain.OverrideRequest
	err := db.WithContext(ctx).Where("id = ?", id).First(&req).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (r *repo) FindPendingByApplication(ctx context.Context, db *gorm.DB, applicationID string) (*domain.OverrideRequest, error) {
	var req domain.OverrideRequest
	err := db.WithContext(ctx).
		Where("application_id = ?", applicationID).
		Where("status = ?", domain.StatusPending).
		First(&req).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (r *repo) ListByApplication(ctx context.Context, db *gorm.DB, applicationID string, page pagination.Pagination) ([]*domain.OverrideRequest, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.OverrideRequest{}).
		Where("application_id = ?", applicationID)
	return listPage(stmt, page)
}

func (r *repo) ListPending(ctx context.Context, db *gorm.DB, page pagination.Pagination) ([]*domain.OverrideRequest, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.OverrideRequest{}).
		Where("status = ?", domain.StatusPending)
	return listPage(stmt, page)
}

// listPage pages on requested_at, newest first. The shared cursor helper
// assumes a created_at column, so the cursor is applied here instead.
func listPage(stmt *gorm.DB, page pagination.Pagination) ([]*domain.OverrideRequest, error) {
	size := page.PageSize
	if size <= 0 {
		size = 10
	}
	if size > 250 {
		size = 250
	}
	stmt = stmt.Limit(size + 1)

	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err == nil && cursor.CreatedAt != "" {
			if ts, perr := time.Parse(time.RFC3339Nano, cursor.CreatedAt); perr == nil {
				stmt = stmt.Where("requested_at < ?", ts)
			}
		}
	}

	var rows []*domain.OverrideRequest
	if err := stmt.Order("requested_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
