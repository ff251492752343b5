// Package store is the embedded relational persistence layer (spec.md
// §4.3): a modernc.org/sqlite-backed store with WAL, foreign keys, a
// migration runner, and the FTS5 virtual table backing keyword memory
// search. Grounded on nevindra-oasis's store/sqlite/sqlite.go (WAL pragma
// DSN, SetMaxOpenConns(1), Init() DDL list, FTS5 virtual table pattern).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/janus-run/janus/internal/logger"
)

// Store wraps the single shared SQLite connection. All writes are
// serialized onto one connection (SetMaxOpenConns(1)) to avoid SQLITE_BUSY
// from concurrent writers opening independent connections.
type Store struct {
	DB *sql.DB
}

// Open creates the parent directory, opens the database with WAL and
// foreign keys enabled, and applies outstanding migrations. On any failure
// here Open returns an error rather than panicking; cmd/janus treats that
// error as fatal and has no file-based fallback.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{DB: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.InfoCF("store", "persistence layer opened", map[string]interface{}{"path": path})
	return s, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// migration is one monotonically numbered schema step.
type migration struct {
	version int
	ddl     []string
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := map[int]bool{}
	rows, err := s.DB.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		tx, err := s.DB.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		for _, stmt := range m.ddl {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration %d: %w", m.version, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES (?, datetime('now'))`, m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
		logger.InfoCF("store", "applied migration", map[string]interface{}{"version": m.version})
	}

	return nil
}

// AppliedMigrationCount returns the store-level counter of applied
// migrations (spec.md §4.3 "the applied count is tracked in a store-level
// counter").
func (s *Store) AppliedMigrationCount(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&n)
	return n, err
}
