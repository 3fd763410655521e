// Package testutil provides test utilities for the spice-must-balance project.
// It offers an in-memory database with fluent seeding of sessions, ledger
// rows and rules.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/Veraticus/the-spice-must-balance/internal/service"
	"github.com/Veraticus/the-spice-must-balance/internal/storage"
)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage service.Storage
	t       *testing.T
}

// SetupTestDB creates a new migrated in-memory database and seeds it with
// the given fixtures. Cleanup is registered on t.
//
// Example:
//
//	db := testutil.SetupTestDB(t,
//		testutil.NewFixtures().
//			WithSession(testutil.Session("sess-1", "chk", "2025-01-01", "2025-01-31")).
//			WithBook(testutil.Book("b1", "chk", "100.00", "Amazon", "2025-01-15")),
//	)
func SetupTestDB(t *testing.T, fixtures *Fixtures) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	if fixtures != nil {
		if err := fixtures.Apply(ctx, store); err != nil {
			t.Fatalf("failed to seed fixtures: %v", err)
		}
	}

	return &TestDB{
		Storage: store,
		t:       t,
	}
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
