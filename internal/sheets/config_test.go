package sheets

import (
	"testing"
	"time"

	"github.com/Veraticus/transitfix/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		c := DefaultConfig()
		c.ServiceAccountPath = "/path/to/key.json"
		c.SpreadsheetID = "sheet-1"
		return c
	}

	tests := []struct {
		wantErr error
		mutate  func(c *Config)
		name    string
		errMsg  string
	}{
		{name: "valid service account", mutate: func(_ *Config) {}},
		{
			name: "valid oauth",
			mutate: func(c *Config) {
				c.ServiceAccountPath = ""
				c.ClientID, c.ClientSecret, c.RefreshToken = "id", "secret", "refresh"
			},
		},
		{
			name: "partial oauth credentials",
			mutate: func(c *Config) {
				c.ServiceAccountPath = ""
				c.ClientID, c.RefreshToken = "id", "refresh"
			},
			wantErr: common.ErrMissingConfig,
			errMsg:  "no Google Sheets authentication method configured",
		},
		{
			name: "multiple auth methods",
			mutate: func(c *Config) {
				c.ClientID, c.ClientSecret, c.RefreshToken = "id", "secret", "refresh"
			},
			wantErr: common.ErrInvalidConfig,
			errMsg:  "multiple authentication methods",
		},
		{
			name:    "missing spreadsheet",
			mutate:  func(c *Config) { c.SpreadsheetID = "" },
			wantErr: common.ErrMissingConfig,
			errMsg:  "audit spreadsheet ID is required",
		},
		{
			name:    "bad input option",
			mutate:  func(c *Config) { c.ValueInputOption = "FORMULA" },
			wantErr: common.ErrInvalidConfig,
		},
		{
			name:   "zero retries is valid",
			mutate: func(c *Config) { c.RetryAttempts, c.RetryDelay = 0, 0 },
		},
		{
			name:    "negative retry delay",
			mutate:  func(c *Config) { c.RetryDelay = -time.Second },
			wantErr: common.ErrInvalidConfig,
			errMsg:  "retry delay cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.errMsg != "" {
				assert.Contains(t, err.Error(), tt.errMsg)
			}
		})
	}
}

func TestConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH", "/env/key.json")
	t.Setenv("GOOGLE_SHEETS_SPREADSHEET_ID", "env-sheet")

	c := DefaultConfig()
	c.SpreadsheetID = "configured-sheet"
	c.LoadFromEnv()

	assert.Equal(t, "/env/key.json", c.ServiceAccountPath)
	assert.Equal(t, "configured-sheet", c.SpreadsheetID, "explicit values win over the environment")
	assert.NoError(t, c.Validate())
}
