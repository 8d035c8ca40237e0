// internal/testutil/sqlite.go
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"encore-ledger/pkg/db"
)

// NewSQLiteDB opens a migrated SQLite database in a per-test temp directory.
// The pool is limited to one connection, so tests must not query the handle
// while a transaction is open.
func NewSQLiteDB(t testing.TB) *sqlx.DB {
	t.Helper()

	conn, err := db.NewDB(db.Config{
		Driver: db.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "ledger.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, db.Migrate(context.Background(), conn))
	return conn
}
