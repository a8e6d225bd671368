// Package testutil provides shared fixtures for tests that span packages:
// an isolated run ledger and builders for record store rows.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/transitfix/internal/model"
	"github.com/Veraticus/transitfix/internal/storage"
)

// TestLedger is a migrated in-memory run ledger.
type TestLedger struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// SetupTestLedger creates a new in-memory ledger. It automatically handles
// migrations and cleanup.
func SetupTestLedger(t *testing.T) *TestLedger {
	t.Helper()
	return setupLedger(t, ":memory:")
}

// SetupTestLedgerAt creates a migrated ledger file at path, for tests that
// reopen it through another code path.
func SetupTestLedgerAt(t *testing.T, path string) *TestLedger {
	t.Helper()
	return setupLedger(t, path)
}

func setupLedger(t *testing.T, path string) *TestLedger {
	t.Helper()

	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		t.Fatalf("failed to create test ledger: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestLedger{Storage: store, t: t}
}

// MustSave stores report or fails the test.
func (l *TestLedger) MustSave(report *model.RunReport) {
	l.t.Helper()
	if err := l.Storage.SaveRun(context.Background(), report, nil); err != nil {
		l.t.Fatalf("failed to save run %s: %v", report.ID, err)
	}
}

// MustItems returns the stored items of a run or fails the test.
func (l *TestLedger) MustItems(runID string) []model.RunItem {
	l.t.Helper()
	items, err := l.Storage.GetRunItems(context.Background(), runID)
	if err != nil {
		l.t.Fatalf("failed to load items of run %s: %v", runID, err)
	}
	return items
}

// Close releases the ledger early, e.g. before another handle opens the file.
func (l *TestLedger) Close() {
	_ = l.Storage.Close()
}
