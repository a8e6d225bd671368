package correct

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Veraticus/transitfix/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func batch(barcodes ...string) []model.AnomalyRecord {
	out := make([]model.AnomalyRecord, 0, len(barcodes))
	for _, b := range barcodes {
		out = append(out, model.AnomalyRecord{
			Barcode:           b,
			Username:          "actcirc",
			CheckinStatGroup:  12,
			CheckoutStatGroup: 99,
		})
	}
	return out
}

func failOn(barcodes ...string) func(context.Context, string, string, int) error {
	set := map[string]bool{}
	for _, b := range barcodes {
		set[b] = true
	}
	return func(_ context.Context, barcode, _ string, _ int) error {
		if set[barcode] {
			return fmt.Errorf("sierra API error 400: %s is not checked out", barcode)
		}
		return nil
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyContinue, p)

	p, err = ParsePolicy(" Abort ")
	require.NoError(t, err)
	assert.Equal(t, PolicyAbort, p)

	_, err = ParsePolicy("retry")
	assert.Error(t, err)
}

func TestApply_UsesCheckinStatGroup(t *testing.T) {
	catalog := NewMockCatalog()
	New(catalog, DefaultConfig(), nil).Apply(context.Background(), batch("b1"))

	require.Len(t, catalog.Calls, 1)
	assert.Equal(t, CorrectCall{Barcode: "b1", Username: "actcirc", StatGroup: 12}, catalog.Calls[0])
}

func TestApply_ContinuePastFailure(t *testing.T) {
	catalog := NewMockCatalog()
	catalog.CorrectFn = failOn("b2")

	result := New(catalog, DefaultConfig(), nil).Apply(context.Background(), batch("b1", "b2", "b3"))

	assert.Equal(t, []string{"b1", "b2", "b3"}, catalog.Barcodes())
	assert.Equal(t, 2, result.Corrected())
	assert.False(t, result.Aborted)

	failures := result.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "b2", failures[0].Barcode)
	assert.Contains(t, failures[0].Reason, "not checked out")
	assert.Error(t, failures[0].Err)
	assert.Empty(t, result.Skipped())
}

func TestApply_AbortPolicy(t *testing.T) {
	catalog := NewMockCatalog()
	catalog.CorrectFn = failOn("b2")

	config := DefaultConfig()
	config.Policy = PolicyAbort
	result := New(catalog, config, nil).Apply(context.Background(), batch("b1", "b2", "b3", "b4"))

	assert.Equal(t, []string{"b1", "b2"}, catalog.Barcodes())
	assert.True(t, result.Aborted)
	assert.Equal(t, 1, result.Corrected())
	require.Len(t, result.Failures(), 1)

	skipped := result.Skipped()
	require.Len(t, skipped, 2)
	assert.Equal(t, "b3", skipped[0].Barcode)
	assert.Equal(t, "b4", skipped[1].Barcode)
}

func TestApply_TimeoutIsItemFailure(t *testing.T) {
	catalog := NewMockCatalog()
	catalog.CorrectFn = func(ctx context.Context, barcode, _ string, _ int) error {
		if barcode == "b1" {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}

	config := DefaultConfig()
	config.Timeout = 20 * time.Millisecond
	result := New(catalog, config, nil).Apply(context.Background(), batch("b1", "b2"))

	require.Len(t, result.Failures(), 1)
	assert.Equal(t, "b1", result.Failures()[0].Barcode)
	assert.Contains(t, result.Failures()[0].Reason, "timed out after 20ms")
	assert.Equal(t, 1, result.Corrected())
}

func TestApply_ResultsInDetectionOrderWithConcurrency(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	catalog := NewMockCatalog()
	catalog.CorrectFn = func(_ context.Context, barcode, _ string, _ int) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		if barcode == "b5" {
			return errors.New("rejected")
		}
		return nil
	}

	codes := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		codes = append(codes, fmt.Sprintf("b%d", i))
	}

	config := DefaultConfig()
	config.Concurrency = 3
	result := New(catalog, config, nil).Apply(context.Background(), batch(codes...))

	require.Len(t, result.Results, 12)
	for i, r := range result.Results {
		assert.Equal(t, codes[i], r.Barcode)
	}
	assert.LessOrEqual(t, maxInFlight.Load(), int32(3))
	assert.Equal(t, 11, result.Corrected())
	require.Len(t, result.Failures(), 1)
	assert.Equal(t, "b5", result.Failures()[0].Barcode)
}

func TestApply_DuplicateBarcodeSkipped(t *testing.T) {
	catalog := NewMockCatalog()
	result := New(catalog, DefaultConfig(), nil).Apply(context.Background(), batch("b1", "b1", "b2"))

	assert.Equal(t, []string{"b1", "b2"}, catalog.Barcodes())
	skipped := result.Skipped()
	require.Len(t, skipped, 1)
	assert.Equal(t, "duplicate barcode in batch", skipped[0].Reason)
}

func TestApply_CanceledContextLeavesRestUnattempted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	catalog := NewMockCatalog()
	catalog.CorrectFn = func(_ context.Context, barcode, _ string, _ int) error {
		if barcode == "b1" {
			cancel()
		}
		return nil
	}

	result := New(catalog, DefaultConfig(), nil).Apply(ctx, batch("b1", "b2", "b3"))
	assert.Equal(t, []string{"b1"}, catalog.Barcodes())
	assert.Equal(t, 1, result.Corrected())
	assert.Len(t, result.Skipped(), 2)
}

func TestApply_RateLimitAndProgress(t *testing.T) {
	catalog := NewMockCatalog()
	config := DefaultConfig()
	config.RateLimit = 1000

	var mu sync.Mutex
	var seen []string
	o := New(catalog, config, nil)
	o.OnResult(func(r model.CorrectionResult) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, r.Barcode)
	})

	result := o.Apply(context.Background(), batch("b1", "b2", "b3"))
	assert.Equal(t, 3, result.Corrected())
	assert.Equal(t, []string{"b1", "b2", "b3"}, seen)
}

func TestApply_EmptyBatch(t *testing.T) {
	catalog := NewMockCatalog()
	result := New(catalog, Config{}, nil).Apply(context.Background(), nil)
	assert.Empty(t, result.Results)
	assert.Empty(t, catalog.Calls)
}
