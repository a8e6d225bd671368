// Package config turns viper settings into the typed configuration each
// component is constructed from.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/transitfix/internal/catalogdb"
	"github.com/Veraticus/transitfix/internal/common"
	"github.com/Veraticus/transitfix/internal/correct"
	"github.com/Veraticus/transitfix/internal/detect"
	"github.com/Veraticus/transitfix/internal/metrics"
	"github.com/Veraticus/transitfix/internal/sheets"
	"github.com/Veraticus/transitfix/internal/sierra"
	"github.com/spf13/viper"
)

// DefaultTimezone is where status message timestamps are interpreted.
const DefaultTimezone = "America/New_York"

// Config is the complete run configuration.
type Config struct {
	Location   *time.Location
	Sheets     sheets.Config
	Sierra     sierra.Config
	Metrics    metrics.Config
	CatalogDB  catalogdb.Config
	LedgerPath string
	Timezone   string
	Correct    correct.Config
	Detect     detect.Config
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	sheetDefaults := sheets.DefaultConfig()
	correctDefaults := correct.DefaultConfig()

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("catalog_db.schema", catalogdb.DefaultSchema)
	v.SetDefault("catalog_db.max_conns", 4)

	v.SetDefault("sierra.timeout", 30*time.Second)

	v.SetDefault("sheets.range", sheetDefaults.Range)
	v.SetDefault("sheets.value_input_option", sheetDefaults.ValueInputOption)
	v.SetDefault("sheets.retry_attempts", sheetDefaults.RetryAttempts)
	v.SetDefault("sheets.retry_delay", sheetDefaults.RetryDelay)

	v.SetDefault("reconcile.grace_period", detect.DefaultGracePeriod)
	v.SetDefault("reconcile.timezone", DefaultTimezone)
	v.SetDefault("reconcile.policy", string(correctDefaults.Policy))
	v.SetDefault("reconcile.concurrency", correctDefaults.Concurrency)
	v.SetDefault("reconcile.rate_limit", 0.0)
	v.SetDefault("reconcile.correction_timeout", correctDefaults.Timeout)

	v.SetDefault("ledger.path", filepath.Join(DataDir(), "ledger.db"))

	v.SetDefault("metrics.job", metrics.DefaultJob)
}

// Load reads every setting from v. GOOGLE_SHEETS_* environment variables
// fill any Sheets credential left unset. Load checks formats only; call
// Validate before a run.
func Load(v *viper.Viper) (*Config, error) {
	policy, err := correct.ParsePolicy(v.GetString("reconcile.policy"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}

	tz := strings.TrimSpace(v.GetString("reconcile.timezone"))
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: reconcile.timezone %q: %w", common.ErrInvalidConfig, tz, err)
	}

	cfg := &Config{
		CatalogDB: catalogdb.Config{
			DSN:      v.GetString("catalog_db.dsn"),
			Schema:   v.GetString("catalog_db.schema"),
			MaxConns: v.GetInt32("catalog_db.max_conns"),
		},
		Sierra: sierra.Config{
			BaseURL:      strings.TrimRight(v.GetString("sierra.base_url"), "/"),
			ClientKey:    v.GetString("sierra.client_key"),
			ClientSecret: v.GetString("sierra.client_secret"),
			Timeout:      v.GetDuration("sierra.timeout"),
		},
		Sheets: sheets.Config{
			ClientID:           v.GetString("sheets.client_id"),
			ClientSecret:       v.GetString("sheets.client_secret"),
			RefreshToken:       v.GetString("sheets.refresh_token"),
			ServiceAccountPath: ExpandPath(v.GetString("sheets.service_account_path")),
			SpreadsheetID:      v.GetString("sheets.spreadsheet_id"),
			Range:              v.GetString("sheets.range"),
			ValueInputOption:   v.GetString("sheets.value_input_option"),
			RetryAttempts:      v.GetInt("sheets.retry_attempts"),
			RetryDelay:         v.GetDuration("sheets.retry_delay"),
		},
		Detect: detect.Config{
			Location:    loc,
			GracePeriod: v.GetDuration("reconcile.grace_period"),
		},
		Correct: correct.Config{
			Policy:      policy,
			Concurrency: v.GetInt("reconcile.concurrency"),
			RateLimit:   v.GetFloat64("reconcile.rate_limit"),
			Timeout:     v.GetDuration("reconcile.correction_timeout"),
		},
		Metrics: metrics.Config{
			PushgatewayURL: v.GetString("metrics.pushgateway_url"),
			Job:            v.GetString("metrics.job"),
		},
		LedgerPath: ExpandPath(v.GetString("ledger.path")),
		Timezone:   tz,
		Location:   loc,
	}
	cfg.Sheets.LoadFromEnv()
	cfg.Sheets.ServiceAccountPath = ExpandPath(cfg.Sheets.ServiceAccountPath)

	return cfg, nil
}

// ValidateDetect checks the settings a dry run needs.
func (c *Config) ValidateDetect() error {
	if err := c.CatalogDB.Validate(); err != nil {
		return err
	}
	if c.Detect.GracePeriod < 0 {
		return fmt.Errorf("%w: reconcile.grace_period cannot be negative", common.ErrInvalidConfig)
	}
	return nil
}

// Validate checks the settings a full run needs.
func (c *Config) Validate() error {
	if err := c.ValidateDetect(); err != nil {
		return err
	}
	if err := c.Sierra.Validate(); err != nil {
		return err
	}
	if err := c.Sheets.Validate(); err != nil {
		return err
	}
	if c.Correct.Concurrency < 1 {
		return fmt.Errorf("%w: reconcile.concurrency must be at least 1", common.ErrInvalidConfig)
	}
	if c.Correct.RateLimit < 0 {
		return fmt.Errorf("%w: reconcile.rate_limit cannot be negative", common.ErrInvalidConfig)
	}
	if c.Correct.Timeout <= 0 {
		return fmt.Errorf("%w: reconcile.correction_timeout must be positive", common.ErrInvalidConfig)
	}
	return nil
}
