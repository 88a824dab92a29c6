package ledger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T, dbPath string) *SQLiteStore {
	t.Helper()
	migrations, err := filepath.Abs("migrations")
	require.NoError(t, err)
	s, err := OpenSQLiteStore(dbPath, migrations)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	s := openTestSQLite(t, dbPath)

	require.False(t, s.Contains("p1"))
	require.NoError(t, s.Append("p1"))
	require.NoError(t, s.Append("p2"))
	require.True(t, s.Contains("p1"))
	require.True(t, s.Contains("p2"))
	require.NoError(t, s.Close())

	// Reopen: migrations are a no-op, ids are reloaded.
	s2 := openTestSQLite(t, dbPath)
	require.True(t, s2.Contains("p1"))
	require.True(t, s2.Contains("p2"))
	require.False(t, s2.Contains("p3"))
}

func TestSQLiteStoreAppendIsIdempotent(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	s := openTestSQLite(t, dbPath)

	require.NoError(t, s.Append("p1"))
	require.NoError(t, s.Append("p1"))

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM processed_payments`).Scan(&count))
	require.Equal(t, 1, count)
}
