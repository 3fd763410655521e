package plaid

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/Veraticus/the-spice-must-balance/internal/common"
	"github.com/plaid/plaid-go/v20/plaid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		ClientID:    "client",
		Secret:      "secret",
		Environment: "sandbox",
		AccessToken: "access-sandbox-123",
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		mutate  func(*Config)
		wantErr error
		name    string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "production", mutate: func(c *Config) { c.Environment = "production" }},
		{name: "missing client id", mutate: func(c *Config) { c.ClientID = "" }, wantErr: common.ErrMissingConfig},
		{name: "missing secret", mutate: func(c *Config) { c.Secret = "" }, wantErr: common.ErrMissingConfig},
		{name: "missing access token", mutate: func(c *Config) { c.AccessToken = "" }, wantErr: common.ErrMissingConfig},
		{name: "missing environment", mutate: func(c *Config) { c.Environment = "" }, wantErr: common.ErrInvalidConfig},
		{name: "development is retired", mutate: func(c *Config) { c.Environment = "development" }, wantErr: common.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestNewClient(t *testing.T) {
	client, err := NewClient(validConfig())
	require.NoError(t, err)
	assert.NotNil(t, client.client)
	assert.Equal(t, 3, client.retryOpts.MaxAttempts)

	bad := validConfig()
	bad.Secret = ""
	_, err = NewClient(bad)
	require.Error(t, err)
}

func TestClient_GetTransactions_Validation(t *testing.T) {
	client := &Client{
		accessToken: "test-token",
		logger:      slog.Default(),
	}

	//nolint:staticcheck // nil context is the case under test
	_, err := client.GetTransactions(nil, time.Now().AddDate(0, -1, 0), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cannot be nil")

	_, err = client.GetTransactions(context.Background(), time.Now(), time.Now().AddDate(0, -1, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start date must be before end date")
}

func TestMapPlaidTransaction(t *testing.T) {
	client := &Client{logger: slog.Default()}

	t.Run("debit becomes negative", func(t *testing.T) {
		pt := plaid.Transaction{}
		pt.SetTransactionId("txn-1")
		pt.SetAccountId("acct-1")
		pt.SetDate("2024-01-15")
		pt.SetAmount(45.99)
		pt.SetName("AMAZON MKTPLACE PMTS 123456789")
		pt.SetCheckNumber("")

		txn := client.mapPlaidTransaction(pt)
		assert.Equal(t, "txn-1", txn.ID)
		assert.Equal(t, "acct-1", txn.AccountID)
		assert.Equal(t, "plaid", txn.Source)
		assert.True(t, decimal.RequireFromString("-45.99").Equal(txn.Amount), "got %s", txn.Amount)
		assert.True(t, txn.Date.Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))
		assert.Equal(t, "Amazon Mktplace Pmts", txn.Description)
		assert.Equal(t, txn.GenerateHash(), txn.Hash)
	})

	t.Run("credit with merchant and check number", func(t *testing.T) {
		pt := plaid.Transaction{}
		pt.SetTransactionId("txn-2")
		pt.SetDate("2024-01-31")
		pt.SetAmount(-3200)
		pt.SetName("ACH DEPOSIT")
		pt.SetMerchantName("Acme Payroll Inc")
		pt.SetCheckNumber("1042")

		txn := client.mapPlaidTransaction(pt)
		assert.True(t, decimal.NewFromInt(3200).Equal(txn.Amount))
		assert.Equal(t, "Acme Payroll", txn.Description)
		assert.Equal(t, "1042", txn.Reference)
	})
}

func TestCleanMerchantName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "basic name", input: "Starbucks", expected: "Starbucks"},
		{name: "lowercase to title case", input: "starbucks coffee", expected: "Starbucks Coffee"},
		{name: "remove LLC suffix", input: "Amazon LLC", expected: "Amazon"},
		{name: "remove Corp suffix", input: "Microsoft Corp", expected: "Microsoft"},
		{name: "remove transaction ID", input: "PAYPAL 123456789", expected: "Paypal"},
		{name: "preserve short numbers", input: "7-ELEVEN 2345", expected: "7-Eleven 2345"},
		{name: "multiple cleanups", input: "amazon.com llc 987654321", expected: "Amazon.Com"},
		{name: "stacked suffixes", input: "Acme Co Inc", expected: "Acme"},
		{name: "extra spaces", input: "  Google   Cloud   ", expected: "Google Cloud"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, cleanMerchantName(tt.input))
		})
	}
}

func TestIsAllDigits(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"123456", true},
		{"12a456", false},
		{"", true},
		{"12.34", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, isAllDigits(tt.input))
		})
	}
}
