package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/transitfix/internal/common"
	"github.com/Veraticus/transitfix/internal/model"
	"github.com/Veraticus/transitfix/internal/testutil"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the CLI with a clean viper and config directory.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	cfgFile = ""
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "transitfix dev")
}

func TestParseCmd(t *testing.T) {
	out, err := execute(t, "parse", "--timezone", "UTC",
		"Fri Mar 01 2024 10:15AM: IN TRANSIT from mainstaff to Branch B")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-03-01T10:15:00Z")
	assert.Contains(t, out, "mainstaff")
	assert.Contains(t, out, "Branch B")
}

func TestParseCmd_DefaultTimezone(t *testing.T) {
	out, err := execute(t, "parse", "Fri Mar 01 2024 10:15AM: IN TRANSIT from mainstaff to Branch B")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-03-01T10:15:00-05:00")
}

func TestParseCmd_Unparseable(t *testing.T) {
	_, err := execute(t, "parse", "--timezone", "UTC", "ON HOLDSHELF")
	require.Error(t, err)
}

func TestMigrateCmd(t *testing.T) {
	ledger := filepath.Join(t.TempDir(), "ledger.db")
	t.Setenv("TRANSITFIX_LEDGER_PATH", ledger)

	out, err := execute(t, "migrate", "--status")
	require.NoError(t, err)
	assert.Contains(t, out, "Current version: 0")
	assert.Contains(t, out, "Migrations pending")

	out, err = execute(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "completed successfully")

	out, err = execute(t, "migrate", "--status")
	require.NoError(t, err)
	assert.NotContains(t, out, "Migrations pending")
}

func TestHistoryCmd(t *testing.T) {
	ledger := filepath.Join(t.TempDir(), "ledger.db")
	t.Setenv("TRANSITFIX_LEDGER_PATH", ledger)

	out, err := execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded yet")

	store := testutil.SetupTestLedgerAt(t, ledger)
	start := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	failed := model.CorrectionResult{Barcode: "31234000000002", Status: model.CorrectionFailed, Reason: "404 Record not found"}
	store.MustSave(&model.RunReport{
		ID:         "run-abc",
		Policy:     "continue",
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
		Detected:   1,
		Results:    []model.CorrectionResult{failed},
		Failures:   []model.CorrectionResult{failed},
	})
	store.Close()

	out, err = execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "run-abc")
	assert.Contains(t, out, "partial")

	out, err = execute(t, "history", "--run", "run-abc")
	require.NoError(t, err)
	assert.Contains(t, out, "404 Record not found")

	out, err = execute(t, "history", "--barcode", "31234000000002")
	require.NoError(t, err)
	assert.Contains(t, out, "run-abc")

	_, err = execute(t, "history", "--run", "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRunCmd_MissingConfig(t *testing.T) {
	_, err := execute(t, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing configuration")
	var userErr *common.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.UserMessage, "TRANSITFIX_")

	_, err = execute(t, "run", "--dry-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog database DSN is required")
}

func TestRunCmd_InvalidPolicy(t *testing.T) {
	_, err := execute(t, "run", "--policy", "retry")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown batch policy")
}

func TestRunCmd_UnreachableStoreIsRecorded(t *testing.T) {
	ledger := filepath.Join(t.TempDir(), "ledger.db")
	t.Setenv("TRANSITFIX_LEDGER_PATH", ledger)
	t.Setenv("TRANSITFIX_CATALOG_DB_DSN", "postgres://nobody@127.0.0.1:1/none?connect_timeout=1")
	t.Setenv("TRANSITFIX_SIERRA_BASE_URL", "http://127.0.0.1:1/iii/sierra-api/v6")
	t.Setenv("TRANSITFIX_SIERRA_CLIENT_KEY", "key")
	t.Setenv("TRANSITFIX_SIERRA_CLIENT_SECRET", "secret")
	t.Setenv("TRANSITFIX_SHEETS_SPREADSHEET_ID", "sheet-1")
	t.Setenv("TRANSITFIX_SHEETS_CLIENT_ID", "client")
	t.Setenv("TRANSITFIX_SHEETS_CLIENT_SECRET", "client-secret")
	t.Setenv("TRANSITFIX_SHEETS_REFRESH_TOKEN", "refresh")
	t.Setenv("GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH", "")

	_, err := execute(t, "run")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
	var userErr *common.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.UserMessage, "catalog_db.dsn")

	store := testutil.SetupTestLedgerAt(t, ledger)
	runs, err := store.Storage.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].Error, "record store unavailable")
	assert.Equal(t, 0, runs[0].Corrected)
}
