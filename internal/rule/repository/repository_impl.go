package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lendstack/underwriting/internal/rule/domain"
	"github.com/lendstack/underwriting/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rule *domain.RuleDefinition) error {
	return db.WithContext(ctx).Create(rule).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, rule *domain.RuleDefinition) error {
	return db.WithContext(ctx).Save(rule).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.RuleDefinition, error) {
	var rule domain.RuleDefinition
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&rule).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

// FindApplicable returns the rule set visible to one evaluation: active rows
// inside their effective window whose scope is either null or matches the
// request. Ordering fixes the reporting order for results.
func (r *repo) FindApplicable(ctx context.Context, db *gorm.DB, productCode, channel string, at time.Time) ([]*domain.RuleDefinition, error) {
	var rules []*domain.RuleDefinition
	err := db.WithContext(ctx).
		Model(&domain.RuleDefinition{}).
		Where("active = ?", true).
		Where("(product_code IS NULL OR product_code = ?)", productCode).
		Where("(channel IS NULL OR channel = ?)", channel).
		Where("effective_from <= ?", at).
		Where("(effective_until IS NULL OR effective_until >= ?)", at).
		Order("priority DESC, name ASC").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListRuleFilter, page pagination.Pagination) ([]*domain.RuleDefinition, error) {
	var rules []*domain.RuleDefinition
	stmt := db.WithContext(ctx).Model(&domain.RuleDefinition{})
	if filter.Kind != "" {
		stmt = stmt.Where("kind = ?", filter.Kind)
	}
	if filter.ProductCode != "" {
		stmt = stmt.Where("product_code = ?", filter.ProductCode)
	}
	if filter.Channel != "" {
		stmt = stmt.Where("channel = ?", filter.Channel)
	}
	if filter.ActiveOnly {
		stmt = stmt.Where("active = ?", true)
	}
	stmt = pagination.Apply(stmt, page)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repo) RecordEvaluation(ctx context.Context, db *gorm.DB, record *domain.EvaluationRecord) error {
	return db.WithContext(ctx).Create(record).Error
}
