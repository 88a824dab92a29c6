package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore backs the processed-id set with an embedded database. Useful
// when the ledger is shared with other local tooling; interchangeable with
// FileStore behind the Store interface.
type SQLiteStore struct {
	db  *sql.DB
	ids map[string]struct{}
}

// OpenSQLiteStore migrates the schema at dbPath and loads all processed ids.
func OpenSQLiteStore(dbPath, migrationsPath string) (*SQLiteStore, error) {
	if err := runMigrations(dbPath, migrationsPath); err != nil {
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // sqlite

	rows, err := db.Query(`SELECT payment_id FROM processed_payments`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	defer rows.Close()

	ids := map[string]struct{}{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			db.Close()
			return nil, err
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, ids: ids}, nil
}

func (s *SQLiteStore) Contains(paymentID string) bool {
	_, ok := s.ids[paymentID]
	return ok
}

// Append inserts the id; the single-statement insert is durable once it
// returns. Re-appending an existing id is a no-op.
func (s *SQLiteStore) Append(paymentID string) error {
	_, err := s.db.ExecContext(context.Background(),
		`INSERT OR IGNORE INTO processed_payments(payment_id, created_at) VALUES(?, CURRENT_TIMESTAMP)`,
		paymentID)
	if err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	s.ids[paymentID] = struct{}{}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// runMigrations applies all up migrations found at path.
func runMigrations(dbPath, migrationsPath string) error {
	m, err := migrate.New(
		fmt.Sprintf("file://%s", migrationsPath),
		fmt.Sprintf("sqlite3://%s?_busy_timeout=5000", dbPath),
	)
	if err != nil {
		return err
	}
	defer m.Close()

	err = m.Up()
	if err == migrate.ErrNoChange {
		return nil
	}
	return err
}
