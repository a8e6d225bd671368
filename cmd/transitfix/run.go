package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Veraticus/transitfix/internal/audit"
	"github.com/Veraticus/transitfix/internal/catalogdb"
	"github.com/Veraticus/transitfix/internal/cli"
	"github.com/Veraticus/transitfix/internal/common"
	"github.com/Veraticus/transitfix/internal/config"
	"github.com/Veraticus/transitfix/internal/correct"
	"github.com/Veraticus/transitfix/internal/detect"
	"github.com/Veraticus/transitfix/internal/engine"
	"github.com/Veraticus/transitfix/internal/metrics"
	"github.com/Veraticus/transitfix/internal/model"
	"github.com/Veraticus/transitfix/internal/sheets"
	"github.com/Veraticus/transitfix/internal/sierra"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Detect, audit and correct checked-out in-transit items",
		Long: `Run one reconciliation sweep.

The sweep:
1. Checks that the catalog database, the Sierra API and the audit sheet are reachable
2. Reads every item that is checked out and in transit
3. Appends one audit row per item to the sheet
4. Re-issues each failed check-in on behalf of its originating branch

Nothing is corrected unless the audit rows were written. The command exits
non-zero when the run fails or any correction fails.`,
		RunE: runReconcile,
	}

	cmd.Flags().Bool("dry-run", false, "Detect and report only; no audit rows, no corrections")
	cmd.Flags().String("policy", "", "Batch policy after a failed correction (continue, abort)")
	cmd.Flags().Int("concurrency", 0, "Corrections issued in parallel")
	cmd.Flags().Float64("rate-limit", 0, "Maximum corrections per second (0 = unlimited)")
	cmd.Flags().Bool("progress", false, "Show a progress bar while correcting")

	_ = viper.BindPFlag("reconcile.policy", cmd.Flags().Lookup("policy"))
	_ = viper.BindPFlag("reconcile.concurrency", cmd.Flags().Lookup("concurrency"))
	_ = viper.BindPFlag("reconcile.rate_limit", cmd.Flags().Lookup("rate-limit"))

	return cmd
}

func runReconcile(cmd *cobra.Command, args []string) error {
	return operatorError(reconcile(cmd, args))
}

func reconcile(cmd *cobra.Command, _ []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	showProgress, _ := cmd.Flags().GetBool("progress")

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if dryRun {
		err = cfg.ValidateDetect()
	} else {
		err = cfg.Validate()
	}
	if err != nil {
		return err
	}

	interrupts := cli.NewInterruptHandler(cmd.ErrOrStderr())
	ctx := interrupts.HandleInterrupts(cmd.Context())
	logger := slog.Default()

	// The pool connects lazily so an unreachable database fails inside the
	// run and is recorded like any other fatal run.
	store, err := catalogdb.New(cfg.CatalogDB, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	deps := engine.Deps{
		Detector: detect.New(store, cfg.Detect, logger),
		Store:    store,
		Metrics:  metrics.New(cfg.Metrics, logger),
	}

	var progress *cli.CorrectionProgress
	if !dryRun {
		orchestrator, err := wireCorrections(ctx, cfg, logger, &deps)
		if err != nil {
			return err
		}
		orchestrator.OnResult(func(res model.CorrectionResult) {
			if progress != nil {
				progress.Observe(res)
			}
		})
	}

	if ledger, err := openLedger(ctx, cfg.LedgerPath); err != nil {
		slog.Warn("Run ledger unavailable; this run will not be recorded", "path", cfg.LedgerPath, "error", err)
	} else {
		defer func() { _ = ledger.Close() }()
		deps.Ledger = ledger
	}

	eng := engine.New(deps, engine.Config{
		Policy: string(cfg.Correct.Policy),
		DryRun: dryRun,
	}, logger)
	eng.OnCorrecting(func(total int) {
		interrupts.SetCorrecting(true)
		if showProgress {
			progress = cli.NewCorrectionProgress(os.Stderr, total)
		}
	})

	report, runErr := eng.Run(ctx)
	if progress != nil {
		progress.Finish()
	}

	if report != nil {
		fmt.Fprintln(cmd.OutOrStdout(), cli.RenderRunSummary(report))
	}
	if runErr != nil {
		return runErr
	}
	if report.Failed() {
		return fmt.Errorf("%d correction(s) failed and %d were skipped; see run %s",
			len(report.Failures), len(report.Skipped), report.ID)
	}
	return nil
}

// operatorError attaches a remediation hint to errors that abort a run.
func operatorError(err error) error {
	if err == nil || !common.IsFatal(err) {
		return err
	}
	var userErr *common.UserError
	if errors.As(err, &userErr) {
		return err
	}

	switch {
	case errors.Is(err, common.ErrMissingConfig), errors.Is(err, common.ErrInvalidConfig):
		return common.NewUserError("fix the config file or the TRANSITFIX_* environment", err)
	case errors.Is(err, common.ErrStoreUnavailable):
		return common.NewUserError("cannot read the catalog database, check catalog_db.dsn; nothing was corrected", err)
	case errors.Is(err, common.ErrCatalogAuth):
		return common.NewUserError("Sierra rejected the API key, check sierra.client_key and sierra.client_secret; nothing was corrected", err)
	default:
		return common.NewUserError("cannot write the audit sheet, check sheets.spreadsheet_id and its sharing; nothing was corrected", err)
	}
}

// wireCorrections builds the write side of a run: the Sierra client, the
// audit sheet writer and the correction orchestrator.
func wireCorrections(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps *engine.Deps) (*correct.Orchestrator, error) {
	client, err := sierra.NewClient(ctx, cfg.Sierra, logger)
	if err != nil {
		return nil, err
	}

	writer, err := sheets.NewWriter(ctx, cfg.Sheets, logger)
	if err != nil {
		return nil, err
	}

	orchestrator := correct.New(client, cfg.Correct, logger)

	deps.Catalog = client
	deps.Sink = writer
	deps.Auditor = audit.NewRecorder(writer, logger)
	deps.Corrector = orchestrator
	return orchestrator, nil
}
