package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/transitfix/internal/common"
	"github.com/Veraticus/transitfix/internal/model"
)

// DefaultListLimit caps ListRuns when no limit is given.
const DefaultListLimit = 20

// SaveRun stores a run report and its per-item outcomes. runErr is the
// fatal error that ended the run, if any.
func (s *SQLiteStorage) SaveRun(ctx context.Context, report *model.RunReport, runErr error) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRun(report); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var errText sql.NullString
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, started_at, finished_at, policy, dry_run, aborted,
			detected, audited, corrected, failed, skipped, excluded, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID,
		report.StartedAt.UTC(),
		report.FinishedAt.UTC(),
		report.Policy,
		report.DryRun,
		report.Aborted,
		report.Detected,
		report.Audited,
		report.Corrected,
		len(report.Failures),
		len(report.Skipped),
		len(report.Exclusions),
		errText,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_items (run_id, barcode, outcome, reason, duration_ms)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare item insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range report.Results {
		if _, err = stmt.ExecContext(ctx, report.ID, r.Barcode, string(r.Status), r.Reason, r.Duration.Milliseconds()); err != nil {
			return fmt.Errorf("failed to insert result for %s: %w", r.Barcode, err)
		}
	}

	for _, ex := range report.Exclusions {
		reason := string(ex.Reason)
		if ex.Detail != "" {
			reason += ": " + ex.Detail
		}
		if _, err = stmt.ExecContext(ctx, report.ID, ex.Barcode, string(model.OutcomeExcluded), reason, 0); err != nil {
			return fmt.Errorf("failed to insert exclusion for %s: %w", ex.Barcode, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

const runColumns = `id, started_at, finished_at, policy, dry_run, aborted,
	detected, audited, corrected, failed, skipped, excluded, error`

func scanRun(row interface{ Scan(...any) error }) (model.RunRecord, error) {
	var (
		r       model.RunRecord
		errText sql.NullString
	)
	err := row.Scan(
		&r.ID,
		&r.StartedAt,
		&r.FinishedAt,
		&r.Policy,
		&r.DryRun,
		&r.Aborted,
		&r.Detected,
		&r.Audited,
		&r.Corrected,
		&r.Failed,
		&r.Skipped,
		&r.Excluded,
		&errText,
	)
	r.Error = errText.String
	return r, err
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []model.RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns a single run by ID.
func (s *SQLiteStorage) GetRun(ctx context.Context, runID string) (*model.RunRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(runID, "runID"); err != nil {
		return nil, err
	}

	r, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &r, nil
}

// GetRunItems returns the stored outcomes of one run in insertion order.
func (s *SQLiteStorage) GetRunItems(ctx context.Context, runID string) ([]model.RunItem, error) {
	if err := validateString(runID, "runID"); err != nil {
		return nil, err
	}
	return s.queryItems(ctx, `WHERE i.run_id = ? ORDER BY i.id`, runID)
}

// GetItemHistory returns every stored outcome for a barcode, newest run first.
func (s *SQLiteStorage) GetItemHistory(ctx context.Context, barcode string) ([]model.RunItem, error) {
	if err := validateString(barcode, "barcode"); err != nil {
		return nil, err
	}
	return s.queryItems(ctx, `WHERE i.barcode = ? ORDER BY r.started_at DESC, i.id`, barcode)
}

func (s *SQLiteStorage) queryItems(ctx context.Context, where string, arg any) ([]model.RunItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT i.run_id, r.started_at, i.barcode, i.outcome, COALESCE(i.reason, ''), i.duration_ms
		FROM run_items i
		JOIN runs r ON r.id = i.run_id
		`+where, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query run items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []model.RunItem
	for rows.Next() {
		var (
			item       model.RunItem
			outcome    string
			durationMS int64
		)
		if err := rows.Scan(&item.RunID, &item.RunStartedAt, &item.Barcode, &outcome, &item.Reason, &durationMS); err != nil {
			return nil, fmt.Errorf("failed to scan run item: %w", err)
		}
		item.Outcome = model.ItemOutcome(outcome)
		item.Duration = time.Duration(durationMS) * time.Millisecond
		items = append(items, item)
	}
	return items, rows.Err()
}
