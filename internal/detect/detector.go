// Package detect finds items whose failed check-in left them both checked out
// and in transit.
package detect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/transitfix/internal/common"
	"github.com/Veraticus/transitfix/internal/model"
	"github.com/Veraticus/transitfix/internal/transit"
)

// DefaultGracePeriod is how long a failed check-in must have been stuck before
// it is treated as an anomaly rather than an in-flight transaction.
const DefaultGracePeriod = 120 * time.Second

// RecordStore reads the catalog's relational state.
type RecordStore interface {
	Snapshot(ctx context.Context) (*model.Snapshot, error)
}

// Config holds configuration options for the detector.
type Config struct {
	Location    *time.Location
	GracePeriod time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		GracePeriod: DefaultGracePeriod,
		Location:    time.Local,
	}
}

// Detector classifies record store rows into anomalies and exclusions.
type Detector struct {
	store  RecordStore
	logger *slog.Logger
	now    func() time.Time
	config Config
}

// New creates a detector reading from store.
func New(store RecordStore, config Config, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	if config.GracePeriod <= 0 {
		config.GracePeriod = DefaultGracePeriod
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	return &Detector{
		store:  store,
		config: config,
		logger: logger.With("component", "detector"),
		now:    time.Now,
	}
}

// SetClock replaces the detector's time source.
func (d *Detector) SetClock(now func() time.Time) {
	d.now = now
}

// Detect reads the record store once and returns every current anomaly,
// oldest failed check-in first. A store failure is fatal; a row that cannot be
// classified is reported as an exclusion.
func (d *Detector) Detect(ctx context.Context) (*model.Detection, error) {
	snapshot, err := d.store.Snapshot(ctx)
	if err != nil {
		if !errors.Is(err, common.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
		}
		return nil, err
	}

	now := d.now()
	detection := &model.Detection{}

	for _, row := range snapshot.Candidates {
		anomaly, exclusion := Classify(row, snapshot.Identities, now, d.config)
		if exclusion != nil {
			d.logExclusion(*exclusion)
			detection.Exclusions = append(detection.Exclusions, *exclusion)
			continue
		}
		detection.Anomalies = append(detection.Anomalies, anomaly)
	}

	sortAnomalies(detection.Anomalies)
	detection.Anomalies, detection.Exclusions = dedupe(detection.Anomalies, detection.Exclusions)

	d.logger.Info("detection complete",
		"candidates", len(snapshot.Candidates),
		"anomalies", len(detection.Anomalies),
		"excluded", len(detection.Exclusions))

	return detection, nil
}

// Classify decides whether a single row is an anomaly. Exactly one of the
// return values is meaningful: a nil exclusion means the anomaly is valid.
func Classify(row model.CandidateRow, identities map[string]model.Identity, now time.Time, config Config) (model.AnomalyRecord, *model.Exclusion) {
	exclude := func(reason model.ExclusionReason, detail string) (model.AnomalyRecord, *model.Exclusion) {
		return model.AnomalyRecord{}, &model.Exclusion{Barcode: row.Barcode, Reason: reason, Detail: detail}
	}

	if strings.TrimSpace(row.Barcode) == "" {
		return exclude(model.ExcludedMissingBarcode, "")
	}
	if row.ItemStatus != model.InTransitStatus {
		return exclude(model.ExcludedNotInTransit, fmt.Sprintf("status %q", row.ItemStatus))
	}
	if !row.HasOpenCheckout || row.CheckoutAt == nil {
		return exclude(model.ExcludedNoCheckout, "")
	}

	msg, err := transit.Parse(row.Message, config.Location)
	if err != nil {
		return exclude(model.ExcludedUnparseable, err.Error())
	}

	if elapsed := now.Sub(msg.CheckinAt); elapsed <= config.GracePeriod {
		return exclude(model.ExcludedGracePeriod, fmt.Sprintf("elapsed %s", elapsed))
	}

	identity, ok := identities[msg.Origin]
	if !ok {
		return exclude(model.ExcludedUnresolvedOrigin, fmt.Sprintf("origin %q", msg.Origin))
	}

	return model.AnomalyRecord{
		Barcode:               row.Barcode,
		Username:              identity.Name,
		CheckinStatGroup:      identity.StatGroup,
		CheckoutStatGroup:     row.CheckoutStatGroup,
		CheckoutStatGroupName: row.CheckoutStatGroupName,
		CheckinAttemptedAt:    msg.CheckinAt,
		CheckoutAt:            *row.CheckoutAt,
		RawStatusMessage:      row.Message,
		OriginLocation:        msg.Origin,
		DestinationLocation:   msg.Destination,
		FulfillingHold:        row.FulfillingHold,
	}, nil
}

func sortAnomalies(anomalies []model.AnomalyRecord) {
	sort.SliceStable(anomalies, func(i, j int) bool {
		a, b := anomalies[i], anomalies[j]
		if !a.CheckinAttemptedAt.Equal(b.CheckinAttemptedAt) {
			return a.CheckinAttemptedAt.Before(b.CheckinAttemptedAt)
		}
		return a.Barcode < b.Barcode
	})
}

// dedupe keeps the oldest anomaly for each barcode so that a barcode is
// corrected at most once per run.
func dedupe(anomalies []model.AnomalyRecord, exclusions []model.Exclusion) ([]model.AnomalyRecord, []model.Exclusion) {
	seen := make(map[string]struct{}, len(anomalies))
	kept := anomalies[:0]
	for _, a := range anomalies {
		if _, dup := seen[a.Barcode]; dup {
			exclusions = append(exclusions, model.Exclusion{
				Barcode: a.Barcode,
				Reason:  model.ExcludedDuplicate,
				Detail:  fmt.Sprintf("message %q", a.RawStatusMessage),
			})
			continue
		}
		seen[a.Barcode] = struct{}{}
		kept = append(kept, a)
	}
	return kept, exclusions
}

func (d *Detector) logExclusion(e model.Exclusion) {
	switch e.Reason {
	case model.ExcludedUnparseable, model.ExcludedUnresolvedOrigin, model.ExcludedMissingBarcode:
		d.logger.Warn("excluding record", "barcode", e.Barcode, "reason", e.Reason, "detail", e.Detail)
	default:
		d.logger.Debug("excluding record", "barcode", e.Barcode, "reason", e.Reason, "detail", e.Detail)
	}
}
