// Package testutil provides test utilities for the rent-must-flow project:
// isolated in-memory databases and fixture seeding.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/Veraticus/the-rent-must-flow/internal/service"
	"github.com/Veraticus/the-rent-must-flow/internal/storage"
	"github.com/Veraticus/the-rent-must-flow/internal/testutil/fixtures"
)

// DefaultProperty is the property most tests seed into.
const DefaultProperty int64 = 1

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage  service.Storage
	Fixtures *fixtures.Set
	t        *testing.T
}

// SetupTestDB creates a new migrated in-memory test database.
// It automatically handles cleanup.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{})
}

// SetupTestDBWithBuilder creates a test database and seeds the default property
// through a fixture builder.
//
// Example:
//
//	db := testutil.SetupTestDBWithBuilder(t, func(b fixtures.Builder) fixtures.Builder {
//		return b.WithBasicCombinations().WithRule("VIR STRIPE", fixtures.Rent)
//	})
func SetupTestDBWithBuilder(t *testing.T, configure func(fixtures.Builder) fixtures.Builder) *TestDB {
	t.Helper()

	builder := fixtures.NewBuilder(t, DefaultProperty)
	if configure != nil {
		builder = configure(builder)
	}
	return SetupTestDBWithOptions(t, TestDBOptions{Builder: builder})
}

// WithTransaction executes the given function within a database transaction.
// The transaction is automatically rolled back after the function completes.
func (db *TestDB) WithTransaction(fn func(tx service.Transaction) error) error {
	ctx := context.Background()
	tx, err := db.Storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	return fn(tx)
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup    func(context.Context, service.Storage) error
	Builder        fixtures.Builder
	SkipMigrations bool
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	db := &TestDB{Storage: store, t: t}

	if opts.Builder != nil {
		db.Fixtures = opts.Builder.MustBuild(ctx, store)
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return db
}
