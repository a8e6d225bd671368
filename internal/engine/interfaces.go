package engine

import (
	"context"

	"github.com/Veraticus/transitfix/internal/model"
)

// Detector finds the anomalies to repair.
type Detector interface {
	Detect(ctx context.Context) (*model.Detection, error)
}

// Auditor durably records anomalies before any correction is made.
type Auditor interface {
	Record(ctx context.Context, anomalies []model.AnomalyRecord) (int, error)
}

// Corrector applies corrections for a batch of anomalies.
type Corrector interface {
	Apply(ctx context.Context, anomalies []model.AnomalyRecord) model.BatchResult
}

// Authenticator establishes the catalog session used by corrections.
type Authenticator interface {
	Authenticate(ctx context.Context) error
}

// Pinger verifies a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ledger stores finished run reports.
type Ledger interface {
	SaveRun(ctx context.Context, report *model.RunReport, runErr error) error
}

// MetricsRecorder receives run metrics.
type MetricsRecorder interface {
	ObserveCorrection(res model.CorrectionResult)
	ObserveRun(report *model.RunReport, runErr error)
	Push(ctx context.Context) error
}
