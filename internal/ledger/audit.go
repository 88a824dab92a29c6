package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// maxResponseLen caps the stored response body excerpt.
const maxResponseLen = 1000

// AuditEvent is one submission attempt, written once and never edited.
// A retried record produces multiple events.
type AuditEvent struct {
	Index     int    `json:"idx"`
	PaymentID string `json:"payment_id"`
	OK        bool   `json:"ok"`
	Status    int    `json:"status"`
	Attempt   int    `json:"attempt"`
	Response  string `json:"response"`
}

// AuditAppender receives one event per submission attempt.
type AuditAppender interface {
	Append(e AuditEvent) error
}

// AuditLog appends events to a newline-delimited JSON file. Separate from
// the processed-id store: audit failures must not block ledger updates.
type AuditLog struct {
	f *os.File
}

// OpenAuditLog opens (or creates) the NDJSON log at path.
func OpenAuditLog(path string) (*AuditLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("audit dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &AuditLog{f: f}, nil
}

// Append serializes one event as a single line. The response body is
// truncated to 1000 characters.
func (a *AuditLog) Append(e AuditEvent) error {
	if runes := []rune(e.Response); len(runes) > maxResponseLen {
		e.Response = string(runes[:maxResponseLen])
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	if _, err := a.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}

func (a *AuditLog) Close() error { return a.f.Close() }
