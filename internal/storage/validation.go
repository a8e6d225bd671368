// Package storage keeps a local ledger of reconciliation runs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/transitfix/internal/model"
)

// Validation errors.
var (
	ErrNilContext   = errors.New("context cannot be nil")
	ErrEmptyString  = errors.New("string parameter cannot be empty")
	ErrNilParameter = errors.New("parameter cannot be nil")
	ErrInvalidRun   = errors.New("invalid run")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateRun checks that a report can be stored.
func validateRun(report *model.RunReport) error {
	if report == nil {
		return fmt.Errorf("%w: report", ErrNilParameter)
	}
	if strings.TrimSpace(report.ID) == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidRun)
	}
	if report.StartedAt.IsZero() {
		return fmt.Errorf("%w: missing start time", ErrInvalidRun)
	}
	if report.FinishedAt.Before(report.StartedAt) {
		return fmt.Errorf("%w: finished before it started", ErrInvalidRun)
	}
	for i, r := range report.Results {
		if strings.TrimSpace(r.Barcode) == "" {
			return fmt.Errorf("%w: result at index %d has no barcode", ErrInvalidRun, i)
		}
	}
	return nil
}
