package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/Veraticus/transitfix/internal/common"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Writer appends rows to the audit spreadsheet.
type Writer struct {
	service *sheets.Service
	logger  *slog.Logger
	config  Config
}

// NewWriter creates a new Google Sheets audit writer.
func NewWriter(ctx context.Context, config Config, logger *slog.Logger) (*Writer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	service, err := createSheetsService(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return NewWriterWithService(config, service, logger), nil
}

// NewWriterWithService wraps an already constructed Sheets service.
func NewWriterWithService(config Config, service *sheets.Service, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		config:  config,
		service: service,
		logger:  logger.With("component", "sheets"),
	}
}

// Ping verifies that the audit spreadsheet exists and is accessible.
func (w *Writer) Ping(ctx context.Context) error {
	return common.WithRetry(ctx, func() error {
		_, err := w.service.Spreadsheets.Get(w.config.SpreadsheetID).
			Fields("spreadsheetId").
			Context(ctx).
			Do()
		if err != nil {
			return classify(fmt.Errorf("unable to access spreadsheet %s: %w", w.config.SpreadsheetID, err), true)
		}
		return nil
	}, w.retryOptions())
}

// AppendRows appends rows after the last row of the configured range in a
// single request. Only rate-limit rejections are retried: a server error may
// arrive after the rows were committed, and a retry would append them twice.
func (w *Writer) AppendRows(ctx context.Context, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	body := &sheets.ValueRange{
		MajorDimension: "ROWS",
		Values:         rows,
	}

	var updated int64
	err := common.WithRetry(ctx, func() error {
		resp, err := w.service.Spreadsheets.Values.
			Append(w.config.SpreadsheetID, w.config.Range, body).
			ValueInputOption(w.config.ValueInputOption).
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		if err != nil {
			return classify(err, false)
		}
		if resp.Updates != nil {
			updated = resp.Updates.UpdatedRows
		}
		return nil
	}, w.retryOptions())
	if err != nil {
		return fmt.Errorf("failed to append rows: %w", err)
	}

	w.logger.Info("appended audit rows",
		"spreadsheet_id", w.config.SpreadsheetID,
		"rows", len(rows),
		"updated_rows", updated)

	return nil
}

func (w *Writer) retryOptions() common.RetryOptions {
	return common.RetryOptions{
		MaxAttempts:  w.config.RetryAttempts + 1,
		InitialDelay: w.config.RetryDelay,
		MaxDelay:     30 * w.config.RetryDelay,
		Multiplier:   2.0,
	}
}

// classify marks quota errors, and server errors when retryServer is set,
// as retryable. Everything else from the API is permanent.
func classify(err error, retryServer bool) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		return &common.RetryableError{Err: fmt.Errorf("%w: %w", common.ErrRateLimit, err), Retryable: true}
	case apiErr.Code >= 500 && retryServer:
		return &common.RetryableError{Err: err, Retryable: true}
	default:
		return &common.RetryableError{Err: err, Retryable: false}
	}
}

// createSheetsService creates a Google Sheets API service.
func createSheetsService(ctx context.Context, config Config) (*sheets.Service, error) {
	var tokenSource oauth2.TokenSource

	if config.ServiceAccountPath != "" {
		jsonKey, err := os.ReadFile(config.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}

		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}

		tokenSource = jwtConfig.TokenSource(ctx)
	} else {
		client := &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{sheets.SpreadsheetsScope},
		}

		token := &oauth2.Token{
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
		}

		tokenSource = client.TokenSource(ctx, token)
	}

	httpClient := oauth2.NewClient(ctx, tokenSource)
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}

	return srv, nil
}
