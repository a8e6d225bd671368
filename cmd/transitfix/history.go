package main

import (
	"fmt"

	"github.com/Veraticus/transitfix/internal/cli"
	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past reconciliation runs",
		Long: `List recent runs from the local run ledger.

With --run, show every failed, skipped and excluded item of one run.
With --barcode, show every run that touched an item.`,
		RunE: runHistory,
	}

	cmd.Flags().Int("limit", 20, "Number of runs to list")
	cmd.Flags().String("run", "", "Show the items of a single run")
	cmd.Flags().String("barcode", "", "Show the history of a single item")

	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	limit, _ := cmd.Flags().GetInt("limit")
	runID, _ := cmd.Flags().GetString("run")
	barcode, _ := cmd.Flags().GetString("barcode")

	store, err := openLedger(ctx, ledgerPath())
	if err != nil {
		return fmt.Errorf("failed to open run ledger: %w", err)
	}
	defer func() { _ = store.Close() }()

	out := cmd.OutOrStdout()

	switch {
	case runID != "":
		run, err := store.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		items, err := store.GetRunItems(ctx, runID)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, cli.RenderRunDetail(run, items))

	case barcode != "":
		items, err := store.GetItemHistory(ctx, barcode)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Fprintln(out, cli.FormatInfo("No runs recorded for "+barcode))
			return nil
		}
		fmt.Fprintln(out, cli.RenderItems(items, true))

	default:
		runs, err := store.ListRuns(ctx, limit)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, cli.RenderRuns(runs))
	}

	return nil
}
