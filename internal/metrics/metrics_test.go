package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/transitfix/internal/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *model.RunReport {
	start := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	return &model.RunReport{
		ID:         "run-1",
		StartedAt:  start,
		FinishedAt: start.Add(4 * time.Second),
		Detected:   3,
		Corrected:  2,
		Failures:   []model.CorrectionResult{{Barcode: "b2", Status: model.CorrectionFailed}},
		Exclusions: []model.Exclusion{
			{Barcode: "x1", Reason: model.ExcludedGracePeriod},
			{Barcode: "x2", Reason: model.ExcludedGracePeriod},
			{Barcode: "x3", Reason: model.ExcludedUnparseable},
		},
	}
}

func TestObserveRun(t *testing.T) {
	m := New(Config{}, nil)
	report := sampleReport()

	m.ObserveRun(report, nil)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.Detected))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Corrections.WithLabelValues("CORRECTED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Corrections.WithLabelValues("FAILED")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Corrections.WithLabelValues("SKIPPED")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Excluded.WithLabelValues("within_grace_period")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Excluded.WithLabelValues("unparseable_message")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.RunDuration))

	// A run with a failure is not a success.
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LastSuccess))
}

func TestObserveRun_Success(t *testing.T) {
	m := New(Config{}, nil)
	report := sampleReport()
	report.Failures = nil

	m.ObserveRun(report, nil)
	assert.Equal(t, float64(report.FinishedAt.Unix()), testutil.ToFloat64(m.LastSuccess))
}

func TestObserveCorrection(t *testing.T) {
	m := New(Config{}, nil)
	m.ObserveCorrection(model.CorrectionResult{Status: model.CorrectionSucceeded, Duration: 100 * time.Millisecond})
	m.ObserveCorrection(model.CorrectionResult{Status: model.CorrectionSkipped})

	assert.Equal(t, 1, testutil.CollectAndCount(m.CorrectionDuration))
	n, err := testutil.GatherAndCount(m.Registry(), "transitfix_correction_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPush_Disabled(t *testing.T) {
	m := New(Config{}, nil)
	assert.NoError(t, m.Push(context.Background()))
}

func TestPush(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		body   string
	)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, body = r.Method, r.URL.Path, string(b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	m := New(Config{PushgatewayURL: gateway.URL, Job: "nightly"}, nil)
	m.ObserveRun(sampleReport(), nil)
	require.NoError(t, m.Push(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/nightly", path)
	assert.NotEmpty(t, body)
}

func TestPush_GatewayError(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer gateway.Close()

	m := New(Config{PushgatewayURL: gateway.URL}, nil)
	err := m.Push(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to push metrics")
}
