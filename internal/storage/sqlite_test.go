package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/transitfix/internal/common"
	"github.com/Veraticus/transitfix/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to create test storage.
func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nested", "ledger.db")

	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	return store, func() { _ = store.Close() }
}

func testReport(id string, started time.Time) *model.RunReport {
	corrected := model.CorrectionResult{Barcode: "31234000000001", Status: model.CorrectionSucceeded, Duration: 120 * time.Millisecond}
	failed := model.CorrectionResult{Barcode: "31234000000002", Status: model.CorrectionFailed, Reason: "404 Not Found"}
	return &model.RunReport{
		ID:         id,
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Policy:     "continue",
		Detected:   2,
		Audited:    2,
		Corrected:  1,
		Results:    []model.CorrectionResult{corrected, failed},
		Failures:   []model.CorrectionResult{failed},
		Exclusions: []model.Exclusion{
			{Barcode: "31234000000003", Reason: model.ExcludedUnparseable, Detail: "no timestamp"},
		},
	}
}

func TestNewSQLiteStorage_EmptyPath(t *testing.T) {
	_, err := NewSQLiteStorage("  ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyString))
}

func TestMigrate_Idempotent(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Migrate(ctx))

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)

	var indexCount int
	err = store.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='index' AND name='idx_run_items_barcode'
	`).Scan(&indexCount)
	require.NoError(t, err)
	assert.Equal(t, 1, indexCount)
}

func TestSQLiteStorage_SaveAndGetRun(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	started := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveRun(ctx, testReport("run-1", started), nil))

	run, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "continue", run.Policy)
	assert.Equal(t, 2, run.Detected)
	assert.Equal(t, 2, run.Audited)
	assert.Equal(t, 1, run.Corrected)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, 0, run.Skipped)
	assert.Equal(t, 1, run.Excluded)
	assert.Empty(t, run.Error)
	assert.True(t, run.StartedAt.Equal(started))
	assert.False(t, run.DryRun)

	items, err := store.GetRunItems(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, model.OutcomeCorrected, items[0].Outcome)
	assert.Equal(t, 120*time.Millisecond, items[0].Duration)
	assert.Equal(t, model.OutcomeFailed, items[1].Outcome)
	assert.Equal(t, "404 Not Found", items[1].Reason)
	assert.Equal(t, model.OutcomeExcluded, items[2].Outcome)
	assert.Equal(t, "unparseable_message: no timestamp", items[2].Reason)
}

func TestSQLiteStorage_SaveRunWithError(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	started := time.Now().UTC()
	report := &model.RunReport{ID: "fatal", StartedAt: started, FinishedAt: started, Policy: "abort"}
	require.NoError(t, store.SaveRun(ctx, report, fmt.Errorf("%w: boom", common.ErrAuditFailed)))

	run, err := store.GetRun(ctx, "fatal")
	require.NoError(t, err)
	assert.Contains(t, run.Error, "audit append failed")

	items, err := store.GetRunItems(ctx, "fatal")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSQLiteStorage_SaveRunValidation(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now()

	tests := []struct {
		report *model.RunReport
		name   string
	}{
		{name: "nil report", report: nil},
		{name: "missing id", report: &model.RunReport{StartedAt: now, FinishedAt: now}},
		{name: "missing start", report: &model.RunReport{ID: "x"}},
		{name: "finish before start", report: &model.RunReport{ID: "x", StartedAt: now, FinishedAt: now.Add(-time.Second)}},
		{name: "result without barcode", report: &model.RunReport{
			ID: "x", StartedAt: now, FinishedAt: now,
			Results: []model.CorrectionResult{{Status: model.CorrectionSucceeded}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.SaveRun(ctx, tt.report, nil)
			require.Error(t, err)
		})
	}

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestSQLiteStorage_DuplicateRunRollsBack(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	started := time.Now().UTC()
	require.NoError(t, store.SaveRun(ctx, testReport("dup", started), nil))
	require.Error(t, store.SaveRun(ctx, testReport("dup", started), nil))

	items, err := store.GetRunItems(ctx, "dup")
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestSQLiteStorage_ListRuns(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("run-%d", i)
		require.NoError(t, store.SaveRun(ctx, testReport(id, base.Add(time.Duration(i)*time.Hour)), nil))
	}

	runs, err := store.ListRuns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-4", runs[0].ID)
	assert.Equal(t, "run-3", runs[1].ID)
	assert.Equal(t, "run-2", runs[2].ID)
}

func TestSQLiteStorage_GetRunNotFound(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	_, err := store.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestSQLiteStorage_GetItemHistory(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveRun(ctx, testReport("older", base), nil))
	require.NoError(t, store.SaveRun(ctx, testReport("newer", base.Add(24*time.Hour)), nil))

	history, err := store.GetItemHistory(ctx, "31234000000002")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "newer", history[0].RunID)
	assert.Equal(t, "older", history[1].RunID)
	assert.True(t, history[1].RunStartedAt.Equal(base))

	_, err = store.GetItemHistory(ctx, "")
	assert.True(t, errors.Is(err, ErrEmptyString))
}
