package sheets

import (
	"testing"
	"time"

	"github.com/Veraticus/the-spice-must-balance/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	oauth := func() Config {
		cfg := DefaultConfig()
		cfg.ClientID = "client"
		cfg.ClientSecret = "secret"
		cfg.RefreshToken = "refresh"
		return cfg
	}

	tests := []struct {
		name    string
		wantErr error
		config  Config
	}{
		{name: "valid oauth config", config: oauth()},
		{
			name:   "valid service account config",
			config: Config{ServiceAccountPath: "/path/to/key.json", RetryAttempts: 3, RetryDelay: time.Second},
		},
		{name: "missing auth", config: DefaultConfig(), wantErr: common.ErrMissingConfig},
		{
			name:    "partial oauth",
			config:  Config{ClientID: "client", ClientSecret: "secret"},
			wantErr: common.ErrMissingConfig,
		},
		{
			name: "multiple auth methods",
			config: func() Config {
				cfg := oauth()
				cfg.ServiceAccountPath = "/path/to/key.json"
				return cfg
			}(),
			wantErr: common.ErrInvalidConfig,
		},
		{
			name: "negative retry attempts",
			config: func() Config {
				cfg := oauth()
				cfg.RetryAttempts = -1
				return cfg
			}(),
			wantErr: common.ErrInvalidConfig,
		},
		{
			name: "negative retry delay",
			config: func() Config {
				cfg := oauth()
				cfg.RetryDelay = -time.Second
				return cfg
			}(),
			wantErr: common.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "Reconciliation Report", cfg.SpreadsheetName)
	assert.True(t, cfg.EnableFormatting)
	assert.Equal(t, 3, cfg.RetryAttempts)
}
