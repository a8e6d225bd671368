package model

import "time"

// CorrectionStatus is the outcome of one correction attempt.
type CorrectionStatus string

// Correction status constants.
const (
	CorrectionSucceeded CorrectionStatus = "CORRECTED"
	CorrectionFailed    CorrectionStatus = "FAILED"
	CorrectionSkipped   CorrectionStatus = "SKIPPED"
)

// CorrectionResult is the typed result of the correction task for one barcode.
type CorrectionResult struct {
	Err      error
	Barcode  string
	Status   CorrectionStatus
	Reason   string
	Duration time.Duration
}

// BatchResult collects the per-item results of a correction batch, in detection order.
type BatchResult struct {
	Results []CorrectionResult
	Aborted bool
}

// Corrected returns the number of successful corrections.
func (b BatchResult) Corrected() int {
	return b.count(CorrectionSucceeded)
}

// Failures returns the failed results in detection order.
func (b BatchResult) Failures() []CorrectionResult {
	return b.filter(CorrectionFailed)
}

// Skipped returns the results that were never attempted.
func (b BatchResult) Skipped() []CorrectionResult {
	return b.filter(CorrectionSkipped)
}

func (b BatchResult) count(status CorrectionStatus) int {
	n := 0
	for _, r := range b.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}

func (b BatchResult) filter(status CorrectionStatus) []CorrectionResult {
	var out []CorrectionResult
	for _, r := range b.Results {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}

// RunReport summarizes a single sweep.
type RunReport struct {
	StartedAt  time.Time
	FinishedAt time.Time
	ID         string
	Policy     string
	Results    []CorrectionResult
	Failures   []CorrectionResult
	Skipped    []CorrectionResult
	Exclusions []Exclusion
	Detected   int
	Corrected  int
	Audited    int
	DryRun     bool
	Aborted    bool
}

// Failed reports whether any correction in the run failed or was skipped.
func (r *RunReport) Failed() bool {
	return len(r.Failures) > 0 || len(r.Skipped) > 0
}

// Duration returns how long the run took.
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ItemOutcome is how a barcode ended up in a stored run.
type ItemOutcome string

// Item outcome constants. The first three mirror CorrectionStatus.
const (
	OutcomeCorrected ItemOutcome = ItemOutcome(CorrectionSucceeded)
	OutcomeFailed    ItemOutcome = ItemOutcome(CorrectionFailed)
	OutcomeSkipped   ItemOutcome = ItemOutcome(CorrectionSkipped)
	OutcomeExcluded  ItemOutcome = "EXCLUDED"
)

// RunRecord is a run as stored in the ledger.
type RunRecord struct {
	StartedAt  time.Time
	FinishedAt time.Time
	ID         string
	Policy     string
	Error      string
	Detected   int
	Audited    int
	Corrected  int
	Failed     int
	Skipped    int
	Excluded   int
	DryRun     bool
	Aborted    bool
}

// RunItem is one barcode outcome stored for a run.
type RunItem struct {
	RunStartedAt time.Time
	RunID        string
	Barcode      string
	Outcome      ItemOutcome
	Reason       string
	Duration     time.Duration
}
