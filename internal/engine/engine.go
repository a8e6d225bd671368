// Package engine runs one reconciliation sweep: detect the anomalies, audit
// them, then correct them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/transitfix/internal/common"
	"github.com/Veraticus/transitfix/internal/model"
	"github.com/google/uuid"
)

// Deps are the collaborators of a run. Catalog and Sink may be nil only for
// dry runs; Store, Ledger and Metrics are optional.
type Deps struct {
	Detector  Detector
	Store     Pinger
	Auditor   Auditor
	Corrector Corrector
	Catalog   Authenticator
	Sink      Pinger
	Ledger    Ledger
	Metrics   MetricsRecorder
}

// Config holds configuration options for a run.
type Config struct {
	Policy string
	DryRun bool
}

// Engine orchestrates a reconciliation run.
type Engine struct {
	deps         Deps
	logger       *slog.Logger
	now          func() time.Time
	newID        func() string
	onCorrecting func(total int)
	config       Config
}

// New creates a new engine with the given dependencies.
func New(deps Deps, config Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		deps:   deps,
		config: config,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// OnCorrecting registers a callback invoked once the audit has succeeded,
// just before the first correction is issued.
func (e *Engine) OnCorrecting(fn func(total int)) {
	e.onCorrecting = fn
}

// Run executes one sweep. Setup, detection and audit failures are fatal and
// leave the catalog untouched; per-item correction failures are not errors
// and are reported in the returned report instead. The report is returned
// even when err is non-nil.
func (e *Engine) Run(ctx context.Context) (report *model.RunReport, err error) {
	report = &model.RunReport{
		ID:        e.newID(),
		StartedAt: e.now(),
		Policy:    e.config.Policy,
		DryRun:    e.config.DryRun,
	}
	logger := e.logger.With("run_id", report.ID)
	logger.Info("Starting reconciliation run", "policy", report.Policy, "dry_run", report.DryRun)

	defer func() {
		report.FinishedAt = e.now()
		e.finish(ctx, logger, report, err)
	}()

	if !e.config.DryRun {
		if err = e.setup(ctx); err != nil {
			return report, err
		}
	}

	detection, err := e.deps.Detector.Detect(ctx)
	if err != nil {
		return report, fmt.Errorf("detection failed: %w", err)
	}
	report.Detected = len(detection.Anomalies)
	report.Exclusions = detection.Exclusions

	logger.Info("Detection complete",
		"anomalies", report.Detected,
		"excluded", len(report.Exclusions))

	if e.config.DryRun {
		return report, nil
	}

	if report.Detected == 0 {
		logger.Info("No anomalies to correct")
		return report, nil
	}

	audited, err := e.deps.Auditor.Record(ctx, detection.Anomalies)
	if err != nil {
		return report, err
	}
	report.Audited = audited

	if e.onCorrecting != nil {
		e.onCorrecting(len(detection.Anomalies))
	}
	batch := e.deps.Corrector.Apply(ctx, detection.Anomalies)
	report.Results = batch.Results
	report.Corrected = batch.Corrected()
	report.Failures = batch.Failures()
	report.Skipped = batch.Skipped()
	report.Aborted = batch.Aborted

	if e.deps.Metrics != nil {
		for _, r := range batch.Results {
			e.deps.Metrics.ObserveCorrection(r)
		}
	}

	if ctx.Err() != nil {
		return report, ctx.Err()
	}
	return report, nil
}

// setup checks every external capability before any data is read, so a
// misconfigured run fails before it can leave anything half done.
func (e *Engine) setup(ctx context.Context) error {
	if e.deps.Catalog == nil || e.deps.Sink == nil {
		return fmt.Errorf("%w: catalog and audit sink are required", common.ErrMissingConfig)
	}
	if e.deps.Store != nil {
		if err := e.deps.Store.Ping(ctx); err != nil {
			if !errors.Is(err, common.ErrStoreUnavailable) {
				err = fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
			}
			return err
		}
	}
	if err := e.deps.Catalog.Authenticate(ctx); err != nil {
		if !errors.Is(err, common.ErrCatalogAuth) {
			err = fmt.Errorf("%w: %w", common.ErrCatalogAuth, err)
		}
		return err
	}
	if err := e.deps.Sink.Ping(ctx); err != nil {
		return fmt.Errorf("%w: audit sink unreachable: %w", common.ErrAuditFailed, err)
	}
	return nil
}

func (e *Engine) finish(ctx context.Context, logger *slog.Logger, report *model.RunReport, runErr error) {
	// The ledger and metrics outlive a canceled run.
	ctx = context.WithoutCancel(ctx)

	if runErr != nil {
		logger.Error("Run failed", "error", runErr, "duration", report.Duration())
	} else {
		logger.Info("Run complete",
			"detected", report.Detected,
			"corrected", report.Corrected,
			"failed", len(report.Failures),
			"skipped", len(report.Skipped),
			"duration", report.Duration())
	}

	if e.deps.Ledger != nil {
		if err := e.deps.Ledger.SaveRun(ctx, report, runErr); err != nil {
			logger.Warn("Failed to save run to ledger", "error", err)
		}
	}

	if e.deps.Metrics != nil {
		e.deps.Metrics.ObserveRun(report, runErr)
		pushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := e.deps.Metrics.Push(pushCtx); err != nil {
			logger.Warn("Failed to push metrics", "error", err)
		}
	}
}
