package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the schema version this binary reads and writes.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS transactions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					property_id INTEGER NOT NULL,
					name TEXT NOT NULL,
					amount TEXT NOT NULL,
					date DATE NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_property_date ON transactions(property_id, date)`,

				`CREATE TABLE IF NOT EXISTS classifications (
					transaction_id INTEGER PRIMARY KEY,
					level_1 TEXT,
					level_2 TEXT,
					level_3 TEXT,
					year INTEGER NOT NULL,
					month INTEGER NOT NULL,
					classified_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (transaction_id) REFERENCES transactions(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_classifications_levels ON classifications(level_1, level_2)`,

				`CREATE TABLE IF NOT EXISTS mapping_rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					property_id INTEGER NOT NULL,
					name TEXT NOT NULL,
					level_1 TEXT NOT NULL,
					level_2 TEXT NOT NULL,
					level_3 TEXT,
					is_prefix_match BOOLEAN NOT NULL DEFAULT 1,
					priority INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (property_id, name)
				)`,

				`CREATE TABLE IF NOT EXISTS allowed_combinations (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					property_id INTEGER NOT NULL,
					level_1 TEXT NOT NULL,
					level_2 TEXT NOT NULL,
					level_3 TEXT,
					is_hardcoded BOOLEAN NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				// A plain UNIQUE constraint would let two NULL level_3 rows coexist.
				`CREATE UNIQUE INDEX idx_allowed_combinations_triple
					ON allowed_combinations(property_id, level_1, level_2, COALESCE(level_3, ''))`,
			)
		},
	},
	{
		Version:     2,
		Description: "Add amortization types and results",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS amortization_types (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					property_id INTEGER NOT NULL,
					name TEXT NOT NULL,
					level_2_value TEXT NOT NULL,
					level_1_values TEXT NOT NULL DEFAULT '[]',
					duration REAL NOT NULL DEFAULT 0,
					start_date DATE,
					annual_amount TEXT,
					UNIQUE (property_id, name)
				)`,
				`CREATE INDEX idx_amortization_types_level2 ON amortization_types(property_id, level_2_value)`,

				`CREATE TABLE IF NOT EXISTS amortization_results (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					transaction_id INTEGER NOT NULL,
					year INTEGER NOT NULL,
					category TEXT NOT NULL,
					amount TEXT NOT NULL,
					FOREIGN KEY (transaction_id) REFERENCES transactions(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_amortization_results_transaction ON amortization_results(transaction_id)`,
			)
		},
	},
	{
		Version:     3,
		Description: "Index transaction labels for rule cascades",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE INDEX IF NOT EXISTS idx_transactions_property_name ON transactions(property_id, name)`,
			)
		},
	},
}

func execAll(tx *sql.Tx, queries ...string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

// pending returns the migrations newer than version, in order.
func pending(version int) []Migration {
	var out []Migration
	for _, m := range migrations {
		if m.Version > version {
			out = append(out, m)
		}
	}
	return out
}

// apply runs one migration and records its version in the same transaction.
func (s *SQLiteStorage) apply(ctx context.Context, m Migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := m.Up(tx); err != nil {
		return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
	}
	// PRAGMA does not take bound parameters.
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("failed to record schema version %d: %w", m.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
	}
	return nil
}

// Migrate brings the schema to ExpectedSchemaVersion. A database newer than
// the binary is an error.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	version, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	todo := pending(version)
	for _, m := range todo {
		if err := s.apply(ctx, m); err != nil {
			return err
		}
		slog.Info("Applied migration",
			"version", m.Version,
			"description", m.Description)
	}
	if len(todo) == 0 {
		slog.Debug("Schema up to date", "version", version)
	}

	if version, err = s.SchemaVersion(ctx); err != nil {
		return err
	}
	if version != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, version)
	}
	return nil
}

// SchemaVersion returns the schema version recorded in the database.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
