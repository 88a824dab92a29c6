package ledger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps processed ids in a plain text file, one id per line,
// append-only, UTF-8. The in-memory set mirrors the file for O(1) lookups.
type FileStore struct {
	f   *os.File
	ids map[string]struct{}
}

// OpenFileStore loads the ledger at path, creating it (and its directory)
// when absent.
func OpenFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ledger dir: %w", err)
		}
	}

	ids := map[string]struct{}{}
	if data, err := os.ReadFile(path); err == nil {
		sc := bufio.NewScanner(strings.NewReader(string(data)))
		for sc.Scan() {
			if id := strings.TrimSpace(sc.Text()); id != "" {
				ids[id] = struct{}{}
			}
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return &FileStore{f: f, ids: ids}, nil
}

func (s *FileStore) Contains(paymentID string) bool {
	_, ok := s.ids[paymentID]
	return ok
}

// Append writes the id as a single line and syncs before returning, so the
// entry is durable before the next record is processed. One O_APPEND write
// keeps the line intact even if the process dies mid-run.
func (s *FileStore) Append(paymentID string) error {
	if _, ok := s.ids[paymentID]; ok {
		return nil
	}
	if _, err := s.f.WriteString(paymentID + "\n"); err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("sync ledger: %w", err)
	}
	s.ids[paymentID] = struct{}{}
	return nil
}

func (s *FileStore) Close() error { return s.f.Close() }

// Len reports how many ids the ledger holds.
func (s *FileStore) Len() int { return len(s.ids) }
