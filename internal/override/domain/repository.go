package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/lendstack/underwriting/pkg/db/pagination"
	"gorm.io/gorm"
)

// Repository is the persistence port for override requests. Write methods
// take the caller's transaction handle so preconditions and event appends
// commit atomically with the row.
type Repository interface {
	Insert(ctx context.Context, tx *gorm.DB, req *OverrideRequest) error
	Update(ctx context.Context, tx *gorm.DB, req *OverrideRequest) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*OverrideRequest, error)
	FindPendingByApplication(ctx context.Context, db *gorm.DB, applicationID string) (*OverrideRequest, error)
	ListByApplication(ctx context.Context, db *gorm.DB, applicationID string, page pagination.Pagination) ([]*OverrideRequest, error)
	ListPending(ctx context.Context, db *gorm.DB, page pagination.Pagination) ([]*OverrideRequest, error)
}
