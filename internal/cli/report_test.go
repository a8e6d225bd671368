package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/transitfix/internal/model"
	"github.com/Veraticus/transitfix/internal/transit"
	"github.com/stretchr/testify/assert"
)

func sampleReport() *model.RunReport {
	start := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	return &model.RunReport{
		ID:         "6f1c0c9e",
		Policy:     "abort",
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Detected:   3,
		Audited:    3,
		Corrected:  1,
		Aborted:    true,
		Failures: []model.CorrectionResult{
			{Barcode: "31234000000002", Status: model.CorrectionFailed, Reason: "sierra API error 404: Record not found"},
		},
		Skipped: []model.CorrectionResult{
			{Barcode: "31234000000003", Status: model.CorrectionSkipped, Reason: "not attempted"},
		},
		Exclusions: []model.Exclusion{
			{Barcode: "31234000000009", Reason: model.ExcludedGracePeriod, Detail: "checked in 40s ago"},
			{Reason: model.ExcludedMissingBarcode},
		},
	}
}

func TestRenderRunSummary(t *testing.T) {
	out := RenderRunSummary(sampleReport())

	for _, want := range []string{
		"Reconciliation complete",
		"6f1c0c9e",
		"Detected",
		"Corrected",
		"Batch aborted",
		"31234000000002",
		"Record not found",
		"31234000000003",
		"not attempted",
		"within_grace_period",
		"(none)",
	} {
		assert.Contains(t, out, want)
	}
}

func TestRenderRunSummary_DryRun(t *testing.T) {
	report := sampleReport()
	report.DryRun = true
	report.Aborted = false
	report.Failures = nil
	report.Skipped = nil

	out := RenderRunSummary(report)
	assert.Contains(t, out, "Dry run complete")
	assert.NotContains(t, out, "Corrected")
	assert.NotContains(t, out, "Batch aborted")
}

func TestRenderRuns(t *testing.T) {
	assert.Contains(t, RenderRuns(nil), "No runs recorded yet")

	start := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	out := RenderRuns([]model.RunRecord{
		{ID: "ok-run", StartedAt: start, Detected: 2, Corrected: 2},
		{ID: "partial-run", StartedAt: start, Detected: 2, Corrected: 1, Failed: 1},
		{ID: "fatal-run", StartedAt: start, Error: "audit append failed"},
	})

	assert.Contains(t, out, "ok-run")
	assert.Contains(t, out, "partial")
	assert.Contains(t, out, "fatal")
}

func TestRenderRunDetail(t *testing.T) {
	run := &model.RunRecord{ID: "r1", Policy: "continue", Error: "record store unavailable"}
	out := RenderRunDetail(run, nil)
	assert.Contains(t, out, "Run r1")
	assert.Contains(t, out, "record store unavailable")
	assert.Contains(t, out, "No item outcomes recorded")

	out = RenderRunDetail(run, []model.RunItem{
		{Barcode: "b1", Outcome: model.OutcomeCorrected, Duration: 250 * time.Millisecond},
		{Barcode: "b2", Outcome: model.OutcomeExcluded, Reason: "unresolved_origin"},
	})
	assert.Contains(t, out, "250ms")
	assert.Contains(t, out, "unresolved_origin")
}

func TestRenderItems_WithRun(t *testing.T) {
	out := RenderItems([]model.RunItem{
		{RunID: "r9", Barcode: "b1", Outcome: model.OutcomeFailed, Reason: "timed out"},
	}, true)
	assert.Contains(t, out, "Run")
	assert.Contains(t, out, "r9")
	assert.Contains(t, out, "timed out")
}

func TestRenderMessage(t *testing.T) {
	msg, err := transit.Parse("Fri Mar 01 2024 10:15AM: IN TRANSIT from mainstaff to Branch B", time.UTC)
	assert.NoError(t, err)

	out := RenderMessage(msg)
	assert.Contains(t, out, "2024-03-01T10:15:00Z")
	assert.Contains(t, out, "mainstaff")
	assert.Contains(t, out, "Branch B")
}

func TestRenderTable_PadsColumns(t *testing.T) {
	out := RenderTable([]string{"A", "B"}, [][]string{{"long-cell", "x"}, {"s"}})
	lines := strings.Split(out, "\n")
	assert.GreaterOrEqual(t, len(lines), 3)
	assert.Contains(t, out, "long-cell")
}

func TestCorrectionProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewCorrectionProgress(&buf, 2)
	p.Observe(model.CorrectionResult{Barcode: "b1", Status: model.CorrectionSucceeded})
	p.Observe(model.CorrectionResult{Barcode: "b2", Status: model.CorrectionFailed})
	p.Finish()

	assert.Contains(t, buf.String(), "2/2")
}
