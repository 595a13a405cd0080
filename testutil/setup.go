// Package testutil provides shared test fixtures.
package testutil

import (
	"testing"

	"github.com/groupquest/server/cache"
	"github.com/groupquest/server/config"
	"github.com/groupquest/server/db/sqlite"
	"github.com/groupquest/server/model"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SetupTestDB creates a fresh in-memory SQLite database with all tables
// migrated.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := sqlite.OpenMemory()
	require.NoError(t, err)
	// A single connection serializes writes, so concurrent-update tests hit
	// version conflicts instead of SQLite busy errors.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, model.AutoMigrate(db))
	return db
}

// SetupTestCache creates an in-process cache.
func SetupTestCache(t *testing.T) cache.Cache {
	t.Helper()
	c, err := cache.NewCache(config.CacheConfig{})
	require.NoError(t, err)
	return c
}

// SetupTestPubSub creates an in-process pub/sub bus.
func SetupTestPubSub(t *testing.T) cache.PubSub {
	t.Helper()
	ps, err := cache.NewPubSub(config.CacheConfig{LocalPubSubBuf: 64})
	require.NoError(t, err)
	return ps
}

// Logger returns a no-op logger for tests.
func Logger() *zap.Logger {
	return zap.NewNop()
}
