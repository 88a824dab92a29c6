package ledger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "processed_ids.txt")

	s, err := OpenFileStore(path)
	require.NoError(t, err)
	require.Equal(t, 0, s.Len())
	require.False(t, s.Contains("p1"))

	require.NoError(t, s.Append("p1"))
	require.NoError(t, s.Append("p2"))
	require.True(t, s.Contains("p1"))
	require.True(t, s.Contains("p2"))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "p1\np2\n", string(data))

	// Persists across opens; the ledger is how runs stay idempotent.
	s2, err := OpenFileStore(path)
	require.NoError(t, err)
	defer s2.Close()
	require.Equal(t, 2, s2.Len())
	require.True(t, s2.Contains("p1"))
}

func TestFileStoreAppendIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ids.txt")
	s, err := OpenFileStore(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append("p1"))
	require.NoError(t, s.Append("p1"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "p1\n", string(data))
}

func TestFileStoreCreatesDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "dir", "ids.txt")
	s, err := OpenFileStore(path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Append("p1"))
}

func TestFileStoreSkipsBlankLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ids.txt")
	require.NoError(t, os.WriteFile(path, []byte("p1\n\n  \np2\n"), 0o644))

	s, err := OpenFileStore(path)
	require.NoError(t, err)
	defer s.Close()
	require.Equal(t, 2, s.Len())
}

func TestAuditLogAppend(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "audit.jsonl")
	a, err := OpenAuditLog(path)
	require.NoError(t, err)

	require.NoError(t, a.Append(AuditEvent{Index: 1, PaymentID: "p1", OK: false, Status: 503, Attempt: 1, Response: "busy"}))
	require.NoError(t, a.Append(AuditEvent{Index: 1, PaymentID: "p1", OK: true, Status: 200, Attempt: 2, Response: `{"ok":true}`}))
	require.NoError(t, a.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	require.JSONEq(t, `{"idx":1,"payment_id":"p1","ok":false,"status":503,"attempt":1,"response":"busy"}`, lines[0])
	require.JSONEq(t, `{"idx":1,"payment_id":"p1","ok":true,"status":200,"attempt":2,"response":"{\"ok\":true}"}`, lines[1])
}

func TestAuditLogTruncatesResponse(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "audit.jsonl")
	a, err := OpenAuditLog(path)
	require.NoError(t, err)
	defer a.Close()

	long := strings.Repeat("ф", 1500) // rune count, not bytes
	require.NoError(t, a.Append(AuditEvent{Index: 1, PaymentID: "p1", Status: 500, Attempt: 1, Response: long}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got AuditEvent
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &got))
	require.Equal(t, 1000, len([]rune(got.Response)))
}
