// Package metrics records per-run reconciliation metrics and pushes them to a
// Prometheus Pushgateway. A batch job has no scrape endpoint, so each run owns
// a private registry that is pushed once when the run ends.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/transitfix/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// DefaultJob is the Pushgateway job label used when none is configured.
const DefaultJob = "transitfix"

// Config controls where metrics are pushed. An empty PushgatewayURL disables pushing.
type Config struct {
	PushgatewayURL string
	Job            string
}

// Metrics holds the collectors for one run.
//
// Metrics:
//   - transitfix_anomalies_detected - anomalies found by the last run
//   - transitfix_items_excluded{reason} - candidate rows left out, by reason
//   - transitfix_corrections{status} - correction outcomes of the last run
//   - transitfix_correction_duration_seconds - latency of each correction call
//   - transitfix_run_duration_seconds - wall time of the last run
//   - transitfix_last_success_timestamp_seconds - end of the last fully successful run
type Metrics struct {
	registry *prometheus.Registry
	logger   *slog.Logger
	config   Config

	Detected           prometheus.Gauge
	Excluded           *prometheus.GaugeVec
	Corrections        *prometheus.GaugeVec
	CorrectionDuration prometheus.Histogram
	RunDuration        prometheus.Gauge
	LastSuccess        prometheus.Gauge
}

// New creates the collectors on a fresh registry.
func New(config Config, logger *slog.Logger) *Metrics {
	if config.Job == "" {
		config.Job = DefaultJob
	}
	if logger == nil {
		logger = slog.Default()
	}

	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		config:   config,
		logger:   logger.With("component", "metrics"),

		Detected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "transitfix_anomalies_detected",
			Help: "Number of checked-out, in-transit items found by the last run",
		}),
		Excluded: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "transitfix_items_excluded",
			Help: "Candidate rows excluded from the last run, by reason",
		}, []string{"reason"}),
		Corrections: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "transitfix_corrections",
			Help: "Correction outcomes of the last run, by status",
		}, []string{"status"}),
		CorrectionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "transitfix_correction_duration_seconds",
			Help:    "Duration of each correction call in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		RunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "transitfix_run_duration_seconds",
			Help: "Wall time of the last run in seconds",
		}),
		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "transitfix_last_success_timestamp_seconds",
			Help: "Unix time at which the last run without failures finished",
		}),
	}
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveCorrection records the latency of one correction call.
func (m *Metrics) ObserveCorrection(res model.CorrectionResult) {
	if res.Status == model.CorrectionSkipped {
		return
	}
	m.CorrectionDuration.Observe(res.Duration.Seconds())
}

// ObserveRun copies a finished report into the gauges.
func (m *Metrics) ObserveRun(report *model.RunReport, runErr error) {
	if report == nil {
		return
	}

	m.Detected.Set(float64(report.Detected))
	m.Corrections.WithLabelValues(string(model.CorrectionSucceeded)).Set(float64(report.Corrected))
	m.Corrections.WithLabelValues(string(model.CorrectionFailed)).Set(float64(len(report.Failures)))
	m.Corrections.WithLabelValues(string(model.CorrectionSkipped)).Set(float64(len(report.Skipped)))

	m.Excluded.Reset()
	for _, ex := range report.Exclusions {
		m.Excluded.WithLabelValues(string(ex.Reason)).Inc()
	}

	if !report.FinishedAt.IsZero() {
		m.RunDuration.Set(report.Duration().Seconds())
	}

	if runErr == nil && !report.Failed() && !report.DryRun {
		finished := report.FinishedAt
		if finished.IsZero() {
			finished = time.Now()
		}
		m.LastSuccess.Set(float64(finished.Unix()))
	}
}

// Push sends the registry to the Pushgateway. It is a no-op when no
// gateway is configured.
func (m *Metrics) Push(ctx context.Context) error {
	if m.config.PushgatewayURL == "" {
		return nil
	}

	pusher := push.New(m.config.PushgatewayURL, m.config.Job).Gatherer(m.registry)
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}

	m.logger.Debug("pushed metrics", "gateway", m.config.PushgatewayURL, "job", m.config.Job)
	return nil
}
