package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/transitfix/internal/model"
	"github.com/Veraticus/transitfix/internal/transit"
)

const timeLayout = "2006-01-02 15:04:05"

// RenderRunSummary renders the end-of-run report.
func RenderRunSummary(report *model.RunReport) string {
	var b strings.Builder

	title := "Reconciliation complete"
	if report.DryRun {
		title = "Dry run complete"
	}

	fmt.Fprintf(&b, "%s %s\n", SubtleStyle.Render("Run:"), report.ID)
	fmt.Fprintf(&b, "%s %s\n", SubtleStyle.Render("Policy:"), report.Policy)
	fmt.Fprintf(&b, "%s %s\n\n", SubtleStyle.Render("Duration:"), report.Duration().Round(time.Millisecond))

	fmt.Fprintf(&b, "%s %d\n", BoldStyle.Render("Detected: "), report.Detected)
	fmt.Fprintf(&b, "%s %d\n", BoldStyle.Render("Excluded: "), len(report.Exclusions))
	if !report.DryRun {
		fmt.Fprintf(&b, "%s %d\n", BoldStyle.Render("Audited:  "), report.Audited)
		fmt.Fprintf(&b, "%s %s\n", BoldStyle.Render("Corrected:"), SuccessStyle.Render(strconv.Itoa(report.Corrected)))
		fmt.Fprintf(&b, "%s %s\n", BoldStyle.Render("Failed:   "), countStyle(len(report.Failures), ErrorStyle.Render))
		fmt.Fprintf(&b, "%s %s", BoldStyle.Render("Skipped:  "), countStyle(len(report.Skipped), WarningStyle.Render))
	}

	out := RenderBox(title, strings.TrimRight(b.String(), "\n"))

	if report.Aborted {
		out += "\n" + FormatWarning("Batch aborted after the first failure (policy abort).")
	}
	if len(report.Failures) > 0 || len(report.Skipped) > 0 {
		out += "\n\n" + RenderOutcomes(append(append([]model.CorrectionResult{}, report.Failures...), report.Skipped...))
	}
	if len(report.Exclusions) > 0 {
		out += "\n\n" + RenderExclusions(report.Exclusions)
	}
	return out
}

func countStyle(n int, render func(...string) string) string {
	if n == 0 {
		return "0"
	}
	return render(strconv.Itoa(n))
}

// RenderOutcomes lists failed and skipped items.
func RenderOutcomes(results []model.CorrectionResult) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := ErrorStyle.Render(string(r.Status))
		if r.Status == model.CorrectionSkipped {
			status = WarningStyle.Render(string(r.Status))
		}
		rows = append(rows, []string{r.Barcode, status, r.Reason})
	}
	return RenderTable([]string{"Barcode", "Status", "Reason"}, rows)
}

// RenderExclusions lists candidate rows that were left out of the batch.
func RenderExclusions(exclusions []model.Exclusion) string {
	rows := make([][]string, 0, len(exclusions))
	for _, e := range exclusions {
		barcode := e.Barcode
		if barcode == "" {
			barcode = SubtleStyle.Render("(none)")
		}
		rows = append(rows, []string{barcode, string(e.Reason), e.Detail})
	}
	return RenderTable([]string{"Barcode", "Excluded", "Detail"}, rows)
}

// RenderRuns lists stored runs, newest first.
func RenderRuns(runs []model.RunRecord) string {
	if len(runs) == 0 {
		return FormatInfo("No runs recorded yet.")
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		status := SuccessStyle.Render("ok")
		switch {
		case r.Error != "":
			status = ErrorStyle.Render("fatal")
		case r.Failed > 0 || r.Skipped > 0:
			status = WarningStyle.Render("partial")
		case r.DryRun:
			status = SubtleStyle.Render("dry run")
		}
		rows = append(rows, []string{
			r.ID,
			r.StartedAt.Local().Format(timeLayout),
			status,
			strconv.Itoa(r.Detected),
			strconv.Itoa(r.Corrected),
			strconv.Itoa(r.Failed),
			strconv.Itoa(r.Skipped),
			strconv.Itoa(r.Excluded),
		})
	}
	return RenderTable(
		[]string{"Run", "Started", "Status", "Detected", "Corrected", "Failed", "Skipped", "Excluded"},
		rows,
	)
}

// RenderRunDetail renders one stored run and its item outcomes.
func RenderRunDetail(run *model.RunRecord, items []model.RunItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", SubtleStyle.Render("Started: "), run.StartedAt.Local().Format(timeLayout))
	fmt.Fprintf(&b, "%s %s\n", SubtleStyle.Render("Finished:"), run.FinishedAt.Local().Format(timeLayout))
	fmt.Fprintf(&b, "%s %s", SubtleStyle.Render("Policy:  "), run.Policy)
	if run.Error != "" {
		fmt.Fprintf(&b, "\n%s %s", ErrorStyle.Render("Error:   "), run.Error)
	}

	out := RenderBox("Run "+run.ID, b.String())
	if len(items) == 0 {
		return out + "\n" + FormatInfo("No item outcomes recorded.")
	}
	return out + "\n\n" + RenderItems(items, false)
}

// RenderItems lists stored item outcomes. withRun adds the run column.
func RenderItems(items []model.RunItem, withRun bool) string {
	header := []string{"Barcode", "Outcome", "Reason", "Took"}
	if withRun {
		header = append([]string{"Run", "Started"}, header...)
	}

	rows := make([][]string, 0, len(items))
	for _, it := range items {
		took := ""
		if it.Duration > 0 {
			took = it.Duration.String()
		}
		row := []string{it.Barcode, outcomeStyle(it.Outcome), it.Reason, took}
		if withRun {
			row = append([]string{it.RunID, it.RunStartedAt.Local().Format(timeLayout)}, row...)
		}
		rows = append(rows, row)
	}
	return RenderTable(header, rows)
}

func outcomeStyle(o model.ItemOutcome) string {
	switch o {
	case model.OutcomeCorrected:
		return SuccessStyle.Render(string(o))
	case model.OutcomeFailed:
		return ErrorStyle.Render(string(o))
	case model.OutcomeSkipped:
		return WarningStyle.Render(string(o))
	default:
		return SubtleStyle.Render(string(o))
	}
}

// RenderMessage renders the fields parsed from a status message.
func RenderMessage(m transit.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", BoldStyle.Render("Checked in: "), m.CheckinAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "%s %s\n", BoldStyle.Render("Origin:     "), m.Origin)
	fmt.Fprintf(&b, "%s %s", BoldStyle.Render("Destination:"), m.Destination)
	return RenderBox("Status message", b.String())
}
