package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/the-spice-must-balance/internal/common"
	"github.com/Veraticus/the-spice-must-balance/internal/ledger"
	"github.com/Veraticus/the-spice-must-balance/internal/matching"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("XDG_CONFIG_HOME", "")
	v := viper.New()

	cfg, err := Load(v)
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".local/share/balance/balance.db"), cfg.Database.Path)
	assert.Equal(t, filepath.Join(home, ".local/share/balance/simplefin-auth.json"), cfg.SimpleFIN.StateFile)
	assert.Equal(t, filepath.Join(home, ".config/balance/sheets-token.json"), cfg.Sheets.TokenFile)
	assert.Equal(t, "default", cfg.UserID)
	assert.Equal(t, ledger.DefaultTable, cfg.Ledger.Table)
	assert.InDelta(t, matching.DefaultMinScore, cfg.Matching.MinScore, 1e-9)
	assert.False(t, cfg.Matching.Explain)
	assert.False(t, cfg.LLMEnabled())
	assert.Equal(t, 15*time.Minute, cfg.LLM.CacheTTL)
	assert.Equal(t, 60, cfg.LLM.RateLimit)
	assert.Equal(t, "sandbox", cfg.Plaid.Environment)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/balance-test.db
ledger:
  postgres_dsn: postgres://localhost/books
  table: ledger.entries
matching:
  min_score: 0.35
  explain: true
llm:
  provider: anthropic
  api_key: sk-test
  cache_ttl: 1h
  rate_limit: 30
  categories:
    - Payroll
    - Utilities
logging:
  level: debug
  format: json
`)

	v := viper.New()
	require.NoError(t, ReadFile(v, path))
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/balance-test.db", cfg.Database.Path)
	assert.Equal(t, "postgres://localhost/books", cfg.Ledger.PostgresDSN)
	assert.Equal(t, "ledger.entries", cfg.Ledger.Table)
	assert.InDelta(t, 0.35, cfg.Matching.MinScore, 1e-9)
	assert.True(t, cfg.Matching.Explain)
	assert.True(t, cfg.LLMEnabled())
	assert.Equal(t, time.Hour, cfg.LLM.CacheTTL)
	assert.Equal(t, []string{"Payroll", "Utilities"}, cfg.LLM.Categories)
	assert.Equal(t, "debug", cfg.Logging.Level)

	llmCfg := cfg.LLMClientConfig()
	assert.Equal(t, "anthropic", llmCfg.Provider)
	assert.Equal(t, "sk-test", llmCfg.APIKey)
	assert.Equal(t, 30, llmCfg.RateLimit)

	assert.InDelta(t, 0.35, cfg.MatcherConfig().MinScore, 1e-9)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "llm:\n  provider: openai\n")
	t.Setenv("BALANCE_LLM_PROVIDER", "anthropic")
	t.Setenv("BALANCE_PLAID_ACCESS_TOKEN", "access-sandbox-123")

	v := viper.New()
	require.NoError(t, ReadFile(v, path))
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "access-sandbox-123", cfg.PlaidClientConfig().AccessToken)
}

func TestReadFile_MissingExplicitFile(t *testing.T) {
	v := viper.New()
	err := ReadFile(v, filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			UserID:   "default",
			Database: DatabaseConfig{Path: "/tmp/db"},
			Matching: MatchingConfig{MinScore: 0.2},
			Logging:  LoggingConfig{Level: "info", Format: "console"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing user", mutate: func(c *Config) { c.UserID = "" }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "negative min score", mutate: func(c *Config) { c.Matching.MinScore = -0.1 }, wantErr: true},
		{name: "min score of one", mutate: func(c *Config) { c.Matching.MinScore = 1 }, wantErr: true},
		{name: "zero min score", mutate: func(c *Config) { c.Matching.MinScore = 0 }},
		{name: "known provider", mutate: func(c *Config) { c.LLM.Provider = "openai" }},
		{name: "unknown provider", mutate: func(c *Config) { c.LLM.Provider = "ollama" }, wantErr: true},
		{name: "negative rate limit", mutate: func(c *Config) { c.LLM.RateLimit = -1 }, wantErr: true},
		{name: "negative retries", mutate: func(c *Config) { c.LLM.MaxRetries = -1 }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "verbose" }, wantErr: true},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLLMClientConfig_EnvFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	cfg := Config{LLM: LLMConfig{Provider: "openai"}}
	assert.Equal(t, "sk-env", cfg.LLMClientConfig().APIKey)

	cfg.LLM.APIKey = "sk-config"
	assert.Equal(t, "sk-config", cfg.LLMClientConfig().APIKey)
}

func TestSheetsWriterConfig(t *testing.T) {
	t.Setenv("GOOGLE_SHEETS_CLIENT_ID", "")
	t.Setenv("GOOGLE_SHEETS_CLIENT_SECRET", "")
	t.Setenv("GOOGLE_SHEETS_REFRESH_TOKEN", "")
	t.Setenv("GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH", "")
	t.Setenv("GOOGLE_SHEETS_SPREADSHEET_ID", "")

	t.Run("no auth configured", func(t *testing.T) {
		cfg := Config{}
		_, err := cfg.SheetsWriterConfig()
		assert.ErrorIs(t, err, common.ErrMissingConfig)
	})

	t.Run("oauth from config", func(t *testing.T) {
		cfg := Config{Sheets: SheetsConfig{
			ClientID:        "id",
			ClientSecret:    "secret",
			RefreshToken:    "refresh",
			SpreadsheetName: "April Close",
		}}
		got, err := cfg.SheetsWriterConfig()
		require.NoError(t, err)
		assert.Equal(t, "April Close", got.SpreadsheetName)
		assert.Equal(t, 3, got.RetryAttempts)
	})

	t.Run("service account from env", func(t *testing.T) {
		t.Setenv("GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH", "/etc/balance/sa.json")
		cfg := Config{}
		got, err := cfg.SheetsWriterConfig()
		require.NoError(t, err)
		assert.Equal(t, "/etc/balance/sa.json", got.ServiceAccountPath)
		assert.Equal(t, "Reconciliation Report", got.SpreadsheetName)
	})
}
