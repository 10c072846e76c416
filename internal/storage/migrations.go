package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
const ExpectedSchemaVersion = 2

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial rules schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					family_id TEXT NOT NULL,
					category TEXT NOT NULL,
					account_id TEXT,
					pattern TEXT NOT NULL,
					pattern_hash TEXT,
					match_type TEXT NOT NULL,
					source TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'candidate',
					scope TEXT NOT NULL DEFAULT 'global',
					confidence REAL NOT NULL DEFAULT 0,
					priority INTEGER NOT NULL DEFAULT 0,
					probationary BOOLEAN NOT NULL DEFAULT 0,
					user_confirmed BOOLEAN NOT NULL DEFAULT 0,
					times_matched INTEGER NOT NULL DEFAULT 0,
					times_overridden INTEGER NOT NULL DEFAULT 0,
					last_overridden_at DATETIME,
					quarantined_at DATETIME,
					quarantine_reason TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				// Pattern ownership is unique per family and scope,
				// case-insensitively.
				`CREATE UNIQUE INDEX idx_rules_family_scope_pattern
					ON rules(family_id, scope, lower(pattern))`,
				// Matching path: family + status + scope narrowed, then
				// priority ordering.
				`CREATE INDEX idx_rules_match
					ON rules(family_id, status, scope, priority)`,
				// Exact-rule fast path.
				`CREATE INDEX idx_rules_hash ON rules(family_id, pattern_hash)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Index quarantine cleanup path",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_rules_quarantined
				ON rules(family_id, status, quarantined_at)`)
			return err
		},
	},
}

// Migrate brings the database schema up to the expected version.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		err := s.withTx(ctx, func(tx *sql.Tx) error {
			if err := m.Up(tx); err != nil {
				return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
			}
			if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, m.Version); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}

		slog.Info("applied migration", "version", m.Version, "description", m.Description)
	}

	return nil
}
