// Package correct re-issues the failed check-in for each detected anomaly and
// collects a typed result per item.
package correct

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Veraticus/transitfix/internal/model"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Catalog is the catalog's correction capability.
type Catalog interface {
	CorrectCheckin(ctx context.Context, barcode, username string, statGroup int) error
}

// Policy decides what happens to the rest of a batch after a failed correction.
type Policy string

// Batch policies.
const (
	// PolicyContinue records the failure and moves on to the next item.
	PolicyContinue Policy = "continue"
	// PolicyAbort leaves every item after the first failure unattempted.
	PolicyAbort Policy = "abort"
)

// ParsePolicy validates a configured policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyContinue, PolicyAbort:
		return p, nil
	case "":
		return PolicyContinue, nil
	default:
		return "", fmt.Errorf("unknown batch policy %q (want continue or abort)", s)
	}
}

// Config holds configuration options for the orchestrator.
type Config struct {
	Policy      Policy
	Concurrency int
	RateLimit   float64 // corrections per second; 0 disables limiting
	Timeout     time.Duration
}

// DefaultConfig returns the default configuration: one correction at a time,
// continuing past failures, 30s per call.
func DefaultConfig() Config {
	return Config{
		Policy:      PolicyContinue,
		Concurrency: 1,
		Timeout:     30 * time.Second,
	}
}

// Orchestrator applies corrections for a batch of anomalies.
type Orchestrator struct {
	catalog  Catalog
	limiter  *rate.Limiter
	logger   *slog.Logger
	progress func(model.CorrectionResult)
	config   Config
}

// New creates an orchestrator issuing corrections through catalog.
func New(catalog Catalog, config Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.Policy == "" {
		config.Policy = PolicyContinue
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}

	o := &Orchestrator{
		catalog: catalog,
		config:  config,
		logger:  logger.With("component", "corrector"),
	}
	if config.RateLimit > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}
	return o
}

// OnResult registers a callback invoked once for every attempted item.
// The callback may be called from several goroutines.
func (o *Orchestrator) OnResult(fn func(model.CorrectionResult)) {
	o.progress = fn
}

// Apply corrects anomalies in detection order. It never returns early on a
// per-item failure; the returned batch has exactly one result per input item.
func (o *Orchestrator) Apply(ctx context.Context, anomalies []model.AnomalyRecord) model.BatchResult {
	results := newCollector(anomalies)

	var aborted atomic.Bool
	g := new(errgroup.Group)
	g.SetLimit(o.config.Concurrency)

	seen := make(map[string]struct{}, len(anomalies))
	for i, a := range anomalies {
		if aborted.Load() || ctx.Err() != nil {
			break
		}
		if _, dup := seen[a.Barcode]; dup {
			results.skip(i, "duplicate barcode in batch")
			continue
		}
		seen[a.Barcode] = struct{}{}

		if o.limiter != nil {
			if err := o.limiter.Wait(ctx); err != nil {
				break
			}
		}

		i, a := i, a
		g.Go(func() error {
			// A slot may free up only after an earlier item failed or the run was canceled.
			if aborted.Load() || ctx.Err() != nil {
				return nil
			}
			res := o.correct(ctx, a)
			results.set(i, res)
			if o.progress != nil {
				o.progress(res)
			}
			if res.Status == model.CorrectionFailed && o.config.Policy == PolicyAbort {
				aborted.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()

	batch := model.BatchResult{
		Results: results.list(),
		Aborted: aborted.Load(),
	}

	o.logger.Info("correction batch finished",
		"items", len(anomalies),
		"corrected", batch.Corrected(),
		"failed", len(batch.Failures()),
		"skipped", len(batch.Skipped()),
		"aborted", batch.Aborted)

	return batch
}

func (o *Orchestrator) correct(ctx context.Context, a model.AnomalyRecord) model.CorrectionResult {
	callCtx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	start := time.Now()
	err := o.catalog.CorrectCheckin(callCtx, a.Barcode, a.Username, a.CheckinStatGroup)
	res := model.CorrectionResult{
		Barcode:  a.Barcode,
		Duration: time.Since(start),
	}

	if err == nil {
		res.Status = model.CorrectionSucceeded
		o.logger.Info("corrected checkin",
			"barcode", a.Barcode,
			"username", a.Username,
			"statgroup", a.CheckinStatGroup,
			"duration", res.Duration)
		return res
	}

	res.Status = model.CorrectionFailed
	res.Err = err
	res.Reason = err.Error()
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		res.Reason = fmt.Sprintf("timed out after %s: %v", o.config.Timeout, err)
	}

	o.logger.Error("checkin correction failed",
		"barcode", a.Barcode,
		"username", a.Username,
		"statgroup", a.CheckinStatGroup,
		"error", res.Reason)
	return res
}

// collector is the batch's shared result list.
type collector struct {
	results []model.CorrectionResult
	mu      sync.Mutex
}

func newCollector(anomalies []model.AnomalyRecord) *collector {
	c := &collector{results: make([]model.CorrectionResult, len(anomalies))}
	for i, a := range anomalies {
		c.results[i] = model.CorrectionResult{
			Barcode: a.Barcode,
			Status:  model.CorrectionSkipped,
			Reason:  "not attempted",
		}
	}
	return c
}

func (c *collector) set(i int, res model.CorrectionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[i] = res
}

func (c *collector) skip(i int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[i].Reason = reason
}

func (c *collector) list() []model.CorrectionResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.CorrectionResult, len(c.results))
	copy(out, c.results)
	return out
}
