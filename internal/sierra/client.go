// Package sierra provides a client for the correction endpoints of the Sierra ILS REST API.
package sierra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/transitfix/internal/common"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Config holds Sierra API configuration.
type Config struct {
	BaseURL      string // e.g. https://catalog.example.org/iii/sierra-api/v6
	ClientKey    string
	ClientSecret string
	Timeout      time.Duration
}

// Validate ensures all required fields are present.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: sierra base URL is required", common.ErrMissingConfig)
	}
	if c.ClientKey == "" {
		return fmt.Errorf("%w: sierra client key is required", common.ErrMissingConfig)
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("%w: sierra client secret is required", common.ErrMissingConfig)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: sierra base URL %q is not absolute", common.ErrInvalidConfig, c.BaseURL)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: sierra timeout cannot be negative", common.ErrInvalidConfig)
	}
	return nil
}

// APIError is a non-2xx response from the Sierra API.
type APIError struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	StatusCode   int    `json:"httpStatus"`
	Code         int    `json:"code"`
	SpecificCode int    `json:"specificCode"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("sierra API error %d", e.StatusCode)
	if e.Name != "" {
		msg += ": " + e.Name
	}
	if e.Description != "" {
		msg += " - " + e.Description
	}
	return msg
}

// Client is an authenticated Sierra API session.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	tokens     oauth2.TokenSource
	logger     *slog.Logger
	retryOpts  common.RetryOptions
}

// NewClient creates a client. No request is made until Authenticate is called.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	// Sierra issues client-credentials tokens at {base}/token using HTTP Basic auth.
	ccConfig := &clientcredentials.Config{
		ClientID:     cfg.ClientKey,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     base.JoinPath("token").String(),
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	baseClient := &http.Client{Timeout: cfg.Timeout}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, baseClient)
	tokens := ccConfig.TokenSource(ctx)

	httpClient := oauth2.NewClient(ctx, tokens)
	httpClient.Timeout = cfg.Timeout

	return &Client{
		baseURL:    base,
		httpClient: httpClient,
		tokens:     tokens,
		logger:     logger.With("component", "sierra"),
		retryOpts: common.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
		},
	}, nil
}

// Authenticate acquires the session token. The token is reused by every later
// request until it expires.
func (c *Client) Authenticate(ctx context.Context) error {
	err := common.WithRetry(ctx, func() error {
		_, err := c.tokens.Token()
		if err == nil {
			return nil
		}
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil && retrieveErr.Response.StatusCode < 500 {
			return &common.RetryableError{Err: err, Retryable: false}
		}
		return err
	}, c.retryOpts)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrCatalogAuth, err)
	}

	c.logger.Debug("acquired sierra session token")
	return nil
}

// CorrectCheckin checks the item in again, crediting username and statGroup.
// It is a single DELETE on the item's checkout; any non-2xx response is
// returned as an *APIError.
func (c *Client) CorrectCheckin(ctx context.Context, barcode, username string, statGroup int) error {
	if strings.TrimSpace(barcode) == "" {
		return fmt.Errorf("barcode is required")
	}

	u := c.baseURL.JoinPath("items", "checkouts", barcode)
	q := url.Values{}
	q.Set("username", username)
	q.Set("statgroup", strconv.Itoa(statGroup))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("issuing checkin correction",
		"barcode", barcode,
		"username", username,
		"statgroup", statGroup)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("correction request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	return decodeAPIError(resp)
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{}
	if err := json.Unmarshal(body, apiErr); err != nil || (apiErr.Name == "" && apiErr.Description == "") {
		apiErr = &APIError{Description: strings.TrimSpace(string(body))}
	}
	apiErr.StatusCode = resp.StatusCode
	return apiErr
}
