package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lendstack/underwriting/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rule *RuleDefinition) error
	Update(ctx context.Context, db *gorm.DB, rule *RuleDefinition) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*RuleDefinition, error)
	FindApplicable(ctx context.Context, db *gorm.DB, productCode, channel string, at time.Time) ([]*RuleDefinition, error)
	List(ctx context.Context, db *gorm.DB, filter ListRuleFilter, page pagination.Pagination) ([]*RuleDefinition, error)
	RecordEvaluation(ctx context.Context, db *gorm.DB, record *EvaluationRecord) error
}
