package repository

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/lendstack/underwriting/internal/outbox/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func dryRunDB(t *testing.T, dialector gorm.Dialector) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(dialector, &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	return db
}

func selectionSQL(db *gorm.DB, maxAttempts int) string {
	return db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var events []*domain.Event
		return unpublishedQuery(tx, maxAttempts).Limit(10).Find(&events)
	})
}

func TestUnpublishedQueryLocksRowsOnPostgres(t *testing.T) {
	db := dryRunDB(t, postgres.Open("host=localhost user=underwriting dbname=underwriting"))

	sql := selectionSQL(db, 3)
	assert.Contains(t, sql, "FOR UPDATE SKIP LOCKED")
	assert.Contains(t, sql, "published_at IS NULL")
	assert.Contains(t, sql, "attempts < 3")
	assert.Contains(t, sql, "ORDER BY occurred_at ASC, id ASC")
}

func TestUnpublishedQueryOmitsCeilingWhenUnset(t *testing.T) {
	db := dryRunDB(t, postgres.Open("host=localhost user=underwriting dbname=underwriting"))

	sql := selectionSQL(db, 0)
	assert.Contains(t, sql, "FOR UPDATE SKIP LOCKED")
	assert.NotContains(t, sql, "attempts <")
}

func TestUnpublishedQuerySkipsLockingOnSQLite(t *testing.T) {
	db := dryRunDB(t, sqlite.Open("file::memory:"))

	sql := selectionSQL(db, 3)
	assert.NotContains(t, sql, "FOR UPDATE")
	assert.Contains(t, sql, "published_at IS NULL")
	assert.Contains(t, sql, "attempts < 3")
}
