package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/the-spice-must-balance/internal/common"
	"github.com/Veraticus/the-spice-must-balance/internal/ledger"
	"github.com/Veraticus/the-spice-must-balance/internal/llm"
	"github.com/Veraticus/the-spice-must-balance/internal/matching"
	"github.com/Veraticus/the-spice-must-balance/internal/plaid"
	"github.com/Veraticus/the-spice-must-balance/internal/sheets"
	"github.com/Veraticus/the-spice-must-balance/internal/simplefin"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding config keys.
// BALANCE_LLM_API_KEY sets llm.api_key.
const EnvPrefix = "BALANCE"

// Config is the typed view of the application configuration.
type Config struct {
	// UserID scopes sessions and rules in a shared database.
	UserID    string          `mapstructure:"user_id"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Matching  MatchingConfig  `mapstructure:"matching"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Plaid     PlaidConfig     `mapstructure:"plaid"`
	SimpleFIN SimpleFINConfig `mapstructure:"simplefin"`
	Sheets    SheetsConfig    `mapstructure:"sheets"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DatabaseConfig locates the local SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LedgerConfig points book lookups at an external Postgres ledger. An empty
// DSN keeps the local ledger.
type LedgerConfig struct {
	PostgresDSN string `mapstructure:"postgres_dsn"`
	Table       string `mapstructure:"table"`
}

// MatchingConfig tunes matching runs.
type MatchingConfig struct {
	MinScore float64 `mapstructure:"min_score"`
	Explain  bool    `mapstructure:"explain"`
}

// LLMConfig configures the optional categorizer and explainer.
type LLMConfig struct {
	Provider   string        `mapstructure:"provider"`
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	BaseURL    string        `mapstructure:"base_url"`
	Categories []string      `mapstructure:"categories"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	RateLimit  int           `mapstructure:"rate_limit"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// PlaidConfig configures statement pulls from Plaid.
type PlaidConfig struct {
	ClientID    string `mapstructure:"client_id"`
	Secret      string `mapstructure:"secret"`
	Environment string `mapstructure:"environment"`
	AccessToken string `mapstructure:"access_token"`
	AccountID   string `mapstructure:"account_id"`
}

// SimpleFINConfig configures statement pulls from a SimpleFIN bridge. A
// setup token is claimed once and the resulting access URL is kept in
// StateFile.
type SimpleFINConfig struct {
	Token     string `mapstructure:"token"`
	AccessURL string `mapstructure:"access_url"`
	StateFile string `mapstructure:"state_file"`
	AccountID string `mapstructure:"account_id"`
}

// SheetsConfig configures report export to Google Sheets.
type SheetsConfig struct {
	ClientID           string `mapstructure:"client_id"`
	ClientSecret       string `mapstructure:"client_secret"`
	RefreshToken       string `mapstructure:"refresh_token"`
	ServiceAccountPath string `mapstructure:"service_account_path"`
	SpreadsheetID      string `mapstructure:"spreadsheet_id"`
	SpreadsheetName    string `mapstructure:"spreadsheet_name"`
	TokenFile          string `mapstructure:"token_file"`
}

// LoggingConfig selects the log level and handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers every key with its default so environment variables
// are picked up by Load even when no config file sets them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("user_id", "default")
	v.SetDefault("database.path", dataPath("balance.db"))
	v.SetDefault("ledger.postgres_dsn", "")
	v.SetDefault("ledger.table", ledger.DefaultTable)
	v.SetDefault("matching.min_score", matching.DefaultMinScore)
	v.SetDefault("matching.explain", false)
	v.SetDefault("llm.provider", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.categories", []string{})
	v.SetDefault("llm.cache_ttl", 15*time.Minute)
	v.SetDefault("llm.retry_delay", time.Second)
	v.SetDefault("llm.rate_limit", 60)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("plaid.client_id", "")
	v.SetDefault("plaid.secret", "")
	v.SetDefault("plaid.environment", "sandbox")
	v.SetDefault("plaid.access_token", "")
	v.SetDefault("plaid.account_id", "")
	v.SetDefault("simplefin.token", "")
	v.SetDefault("simplefin.access_url", "")
	v.SetDefault("simplefin.state_file", dataPath("simplefin-auth.json"))
	v.SetDefault("simplefin.account_id", "")
	v.SetDefault("sheets.client_id", "")
	v.SetDefault("sheets.client_secret", "")
	v.SetDefault("sheets.refresh_token", "")
	v.SetDefault("sheets.service_account_path", "")
	v.SetDefault("sheets.spreadsheet_id", "")
	v.SetDefault("sheets.spreadsheet_name", sheets.DefaultConfig().SpreadsheetName)
	v.SetDefault("sheets.token_file", configPath("sheets-token.json"))
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// ReadFile points v at cfgFile, or at the default search path when empty,
// and enables environment overrides. A missing default config file is not an
// error.
func ReadFile(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		v.AddConfigPath(filepath.Join(home, ".config", "balance"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

// Load decodes v into a Config, expands paths and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}

	cfg.Database.Path = ExpandPath(cfg.Database.Path)
	cfg.Sheets.ServiceAccountPath = ExpandPath(cfg.Sheets.ServiceAccountPath)
	cfg.Sheets.TokenFile = ExpandPath(cfg.Sheets.TokenFile)
	cfg.SimpleFIN.StateFile = ExpandPath(cfg.SimpleFIN.StateFile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings every command depends on. Integration
// settings are validated by their own packages when used.
func (c *Config) Validate() error {
	switch {
	case c.UserID == "":
		return fmt.Errorf("%w: user_id is required", common.ErrInvalidConfig)
	case c.Database.Path == "":
		return fmt.Errorf("%w: database.path is required", common.ErrInvalidConfig)
	case c.Matching.MinScore < 0 || c.Matching.MinScore >= 1:
		return fmt.Errorf("%w: matching.min_score must be in [0, 1), got %v", common.ErrInvalidConfig, c.Matching.MinScore)
	case c.LLM.RateLimit < 0:
		return fmt.Errorf("%w: llm.rate_limit cannot be negative", common.ErrInvalidConfig)
	case c.LLM.MaxRetries < 0:
		return fmt.Errorf("%w: llm.max_retries cannot be negative", common.ErrInvalidConfig)
	}

	switch c.LLM.Provider {
	case "", "openai", "anthropic":
	default:
		return fmt.Errorf("%w: unsupported llm.provider %q", common.ErrInvalidConfig, c.LLM.Provider)
	}

	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("%w: logging.format must be console or json, got %q", common.ErrInvalidConfig, c.Logging.Format)
	}
	return nil
}

// LLMEnabled reports whether a provider is configured.
func (c *Config) LLMEnabled() bool {
	return c.LLM.Provider != ""
}

// LLMClientConfig builds the llm package config. The API key falls back to
// the provider's conventional environment variable.
func (c *Config) LLMClientConfig() llm.Config {
	apiKey := c.LLM.APIKey
	if apiKey == "" {
		switch c.LLM.Provider {
		case "openai":
			apiKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	return llm.Config{
		Provider:   c.LLM.Provider,
		APIKey:     apiKey,
		Model:      c.LLM.Model,
		BaseURL:    c.LLM.BaseURL,
		Categories: c.LLM.Categories,
		MaxRetries: c.LLM.MaxRetries,
		RetryDelay: c.LLM.RetryDelay,
		CacheTTL:   c.LLM.CacheTTL,
		RateLimit:  c.LLM.RateLimit,
	}
}

// MatcherConfig builds the matcher tuning.
func (c *Config) MatcherConfig() matching.Config {
	return matching.Config{MinScore: c.Matching.MinScore}
}

// PlaidClientConfig builds the plaid package config.
func (c *Config) PlaidClientConfig() plaid.Config {
	return plaid.Config{
		ClientID:    c.Plaid.ClientID,
		Secret:      c.Plaid.Secret,
		Environment: c.Plaid.Environment,
		AccessToken: c.Plaid.AccessToken,
		AccountID:   c.Plaid.AccountID,
	}
}

// SimpleFINClientConfig builds the simplefin package config. The setup
// token falls back to SIMPLEFIN_TOKEN.
func (c *Config) SimpleFINClientConfig() simplefin.Config {
	return simplefin.Config{
		Token:     firstNonEmpty(c.SimpleFIN.Token, os.Getenv("SIMPLEFIN_TOKEN")),
		AccessURL: c.SimpleFIN.AccessURL,
		StateFile: c.SimpleFIN.StateFile,
		AccountID: c.SimpleFIN.AccountID,
	}
}

// SheetsWriterConfig builds the sheets package config on top of its
// defaults and validates it. GOOGLE_SHEETS_* variables fill unset values.
func (c *Config) SheetsWriterConfig() (*sheets.Config, error) {
	cfg := sheets.DefaultConfig()
	cfg.ClientID = firstNonEmpty(c.Sheets.ClientID, os.Getenv("GOOGLE_SHEETS_CLIENT_ID"))
	cfg.ClientSecret = firstNonEmpty(c.Sheets.ClientSecret, os.Getenv("GOOGLE_SHEETS_CLIENT_SECRET"))
	cfg.RefreshToken = firstNonEmpty(c.Sheets.RefreshToken, os.Getenv("GOOGLE_SHEETS_REFRESH_TOKEN"))
	cfg.ServiceAccountPath = ExpandPath(firstNonEmpty(c.Sheets.ServiceAccountPath, os.Getenv("GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH")))
	cfg.SpreadsheetID = firstNonEmpty(c.Sheets.SpreadsheetID, os.Getenv("GOOGLE_SHEETS_SPREADSHEET_ID"))
	if c.Sheets.SpreadsheetName != "" {
		cfg.SpreadsheetName = c.Sheets.SpreadsheetName
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
