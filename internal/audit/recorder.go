// Package audit writes every detected anomaly to the append-only audit sink
// before any correction is attempted.
package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/transitfix/internal/common"
	"github.com/Veraticus/transitfix/internal/model"
)

// TimeLayout is how timestamps are rendered in audit rows.
const TimeLayout = "2006-01-02 15:04:05"

// Columns names the audit row columns, in order.
var Columns = []string{
	"barcode",
	"username",
	"checkin_stat_group_code",
	"checkin_time",
	"checkout_stat_group_name",
	"checkout_stat_group_code",
	"checkout_time",
	"message",
	"origin_loc",
	"destination_loc",
	"fulfilling_hold",
}

// Sink is an append-only row store.
type Sink interface {
	AppendRows(ctx context.Context, rows [][]any) error
}

// Recorder turns anomalies into audit rows.
type Recorder struct {
	sink   Sink
	logger *slog.Logger
}

// NewRecorder creates a recorder writing to sink.
func NewRecorder(sink Sink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		sink:   sink,
		logger: logger.With("component", "audit"),
	}
}

// Record appends one row per anomaly, in the given order, with a single call
// to the sink. It returns the number of rows written. Any sink failure is
// reported as common.ErrAuditFailed.
func (r *Recorder) Record(ctx context.Context, anomalies []model.AnomalyRecord) (int, error) {
	if len(anomalies) == 0 {
		r.logger.Debug("no anomalies to audit")
		return 0, nil
	}

	rows := make([][]any, 0, len(anomalies))
	for _, a := range anomalies {
		rows = append(rows, Row(a))
	}

	if err := r.sink.AppendRows(ctx, rows); err != nil {
		return 0, fmt.Errorf("%w: %w", common.ErrAuditFailed, err)
	}

	r.logger.Info("recorded anomalies", "rows", len(rows))
	return len(rows), nil
}

// Row renders a single anomaly in Columns order.
func Row(a model.AnomalyRecord) []any {
	return []any{
		a.Barcode,
		a.Username,
		a.CheckinStatGroup,
		a.CheckinAttemptedAt.Format(TimeLayout),
		a.CheckoutStatGroupName,
		a.CheckoutStatGroup,
		a.CheckoutAt.Format(TimeLayout),
		a.RawStatusMessage,
		a.OriginLocation,
		a.DestinationLocation,
		a.FulfillingHold,
	}
}
