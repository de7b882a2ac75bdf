// Package dbtest opens isolated in-memory SQLite databases carrying the service schema.
package dbtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/qrseal/qrseal-backend/pkg/db"
	"github.com/qrseal/qrseal-backend/pkg/migrate"
)

// Open returns a fresh database per test. The pool is pinned to one connection so
// concurrent callers queue on it the way row locks queue writers in Postgres.
//
// Tests built on it check the logic of the concurrent ledger, allocator and reconcile
// paths, not Postgres itself: SELECT ... FOR UPDATE is skipped on SQLite, and calls are
// serialised by the single connection before any conditional UPDATE or ON CONFLICT
// clause can race. Postgres locking is exercised only against a real database.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migrate.ApplySQLite(context.Background(), conn))
	return conn
}

// Client wraps Open in a db.Client for services that need a transaction runner.
func Client(t *testing.T) (*db.Client, *gorm.DB) {
	t.Helper()
	conn := Open(t)
	return db.Wrap(conn), conn
}
