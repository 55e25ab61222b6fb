package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

// newTestDB opens a fresh on-disk SQLite database under t.TempDir() and
// applies every migration, giving each test an isolated, fully-migrated
// store per the pack's habit of exercising the real driver rather than a
// mock.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "tms.db")
	db, err := Connect(context.Background(), "sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(context.Background(), db))
	return db
}
