package simplefin

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Veraticus/the-spice-must-balance/internal/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const accountsJSON = `{
  "errors": ["Connection to First Bank may need attention"],
  "accounts": [
    {
      "id": "ACT-1",
      "name": "Checking",
      "currency": "USD",
      "balance": "1520.33",
      "transactions": [
        {"id": "T1", "posted": 1736942400, "amount": "-4.50", "description": "STARBUCKS #123", "payee": "Starbucks"},
        {"id": "T2", "posted": 1736856000, "amount": "3200.00", "description": "", "payee": "ACME Payroll"},
        {"id": "T3", "posted": 0, "amount": "-12.00", "description": "PENDING LUNCH", "pending": true},
        {"id": "T4", "posted": 1738411200, "amount": "-99.00", "description": "FEBRUARY"}
      ]
    },
    {
      "id": "ACT-2",
      "name": "Savings",
      "currency": "USD",
      "balance": "9000.00",
      "transactions": [
        {"id": "S1", "posted": 1736942400, "amount": "25.00", "description": "INTEREST"}
      ]
    }
  ]
}`

type bridge struct {
	server   *httptest.Server
	claims   atomic.Int32
	requests atomic.Int32
	failures int32
	status   int

	mu    sync.Mutex
	query bridgeQuery
}

type bridgeQuery struct {
	start, end, balancesOnly string
}

func (b *bridge) lastQuery() bridgeQuery {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.query
}

func newBridge(t *testing.T) *bridge {
	t.Helper()
	b := &bridge{status: http.StatusServiceUnavailable}

	mux := http.NewServeMux()
	mux.HandleFunc("/claim", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if b.claims.Add(1) > 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(strings.Replace(b.server.URL, "http://", "http://user:secret@", 1) + "/simplefin\n"))
	})
	mux.HandleFunc("/simplefin/accounts", func(w http.ResponseWriter, r *http.Request) {
		n := b.requests.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "user" || pass != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if n <= b.failures {
			w.WriteHeader(b.status)
			return
		}
		b.mu.Lock()
		b.query = bridgeQuery{
			start:        r.URL.Query().Get("start-date"),
			end:          r.URL.Query().Get("end-date"),
			balancesOnly: r.URL.Query().Get("balances-only"),
		}
		b.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(accountsJSON))
	})

	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)
	return b
}

func (b *bridge) token() string {
	return base64.StdEncoding.EncodeToString([]byte(b.server.URL + "/claim"))
}

func (b *bridge) accessURL() string {
	return strings.Replace(b.server.URL, "http://", "http://user:secret@", 1) + "/simplefin"
}

func testClient(b *bridge, accountID string) *Client {
	c := newClient(b.server.Client(), slog.Default(), b.accessURL(), accountID)
	c.retryOpts.InitialDelay = time.Millisecond
	c.retryOpts.MaxDelay = 5 * time.Millisecond
	return c
}

func date(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{name: "access url", cfg: Config{AccessURL: "https://user:pw@bridge.example/simplefin"}},
		{name: "token with state file", cfg: Config{Token: "abc", StateFile: "/tmp/sf.json"}},
		{name: "saved state only", cfg: Config{StateFile: "/tmp/sf.json"}},
		{name: "nothing", cfg: Config{}, wantErr: common.ErrMissingConfig},
		{name: "token without state file", cfg: Config{Token: "abc"}, wantErr: common.ErrMissingConfig},
		{name: "bad access url", cfg: Config{AccessURL: "bridge.example"}, wantErr: common.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewClient_ClaimsOnce(t *testing.T) {
	b := newBridge(t)
	stateFile := filepath.Join(t.TempDir(), "balance", "simplefin-auth.json")
	cfg := Config{Token: b.token(), StateFile: stateFile}

	client, err := NewClient(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, b.accessURL(), client.accessURL)

	auth, err := loadAuthState(stateFile)
	require.NoError(t, err)
	assert.Equal(t, b.accessURL(), auth.AccessURL)
	assert.NotEqual(t, cfg.Token, auth.TokenHint)

	again, err := NewClient(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, client.accessURL, again.accessURL)
	assert.Equal(t, int32(1), b.claims.Load())
}

func TestClaimToken_Errors(t *testing.T) {
	b := newBridge(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		token   string
		wantErr string
	}{
		{name: "not base64", token: "%%%", wantErr: "failed to decode SimpleFIN token"},
		{name: "not a url", token: base64.StdEncoding.EncodeToString([]byte("ftp://bridge")), wantErr: "does not hold a claim URL"},
		{name: "claim rejected", token: base64.StdEncoding.EncodeToString([]byte(b.server.URL + "/nope")), wantErr: "claim returned 404"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := claimToken(ctx, b.server.Client(), tt.token)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetTransactions(t *testing.T) {
	b := newBridge(t)
	client := testClient(b, "")

	txns, err := client.GetTransactions(context.Background(), date("2025-01-01"), date("2025-01-31"))
	require.NoError(t, err)
	require.Len(t, txns, 3)

	assert.Equal(t, "ACT-1_T2", txns[0].ID)
	assert.Equal(t, "ACME Payroll", txns[0].Description)
	assert.True(t, decimal.NewFromInt(3200).Equal(txns[0].Amount))
	assert.True(t, txns[0].Date.Equal(date("2025-01-14")))

	assert.Equal(t, "ACT-1_T1", txns[1].ID)
	assert.Equal(t, "STARBUCKS #123", txns[1].Description)
	assert.True(t, decimal.RequireFromString("-4.50").Equal(txns[1].Amount))
	assert.Equal(t, "ACT-1", txns[1].AccountID)
	assert.Equal(t, "simplefin", txns[1].Source)
	assert.Equal(t, txns[1].GenerateHash(), txns[1].Hash)

	assert.Equal(t, "ACT-2_S1", txns[2].ID)

	assert.Equal(t, "1735689600", b.lastQuery().start)
	assert.Equal(t, "1738368000", b.lastQuery().end)
}

func TestGetTransactions_AccountFilter(t *testing.T) {
	b := newBridge(t)

	txns, err := testClient(b, "ACT-2").GetTransactions(context.Background(), date("2025-01-01"), date("2025-01-31"))
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "ACT-2_S1", txns[0].ID)
}

func TestGetTransactions_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("reversed range", func(t *testing.T) {
		_, err := testClient(newBridge(t), "").GetTransactions(ctx, date("2025-02-01"), date("2025-01-01"))
		require.Error(t, err)
	})

	t.Run("server errors are retried", func(t *testing.T) {
		b := newBridge(t)
		b.failures = 2

		txns, err := testClient(b, "").GetTransactions(ctx, date("2025-01-01"), date("2025-01-31"))
		require.NoError(t, err)
		assert.Len(t, txns, 3)
		assert.Equal(t, int32(3), b.requests.Load())
	})

	t.Run("revoked access is final", func(t *testing.T) {
		b := newBridge(t)
		client := newClient(b.server.Client(), slog.Default(), b.server.URL+"/simplefin", "")

		_, err := client.GetTransactions(ctx, date("2025-01-01"), date("2025-01-31"))
		require.ErrorIs(t, err, common.ErrSimpleFINConnection)
		assert.Contains(t, err.Error(), "status 403")
		assert.Equal(t, int32(1), b.requests.Load())
	})
}

func TestGetAccounts(t *testing.T) {
	b := newBridge(t)

	ids, err := testClient(b, "").GetAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ACT-1", "ACT-2"}, ids)
	assert.Equal(t, "1", b.lastQuery().balancesOnly)
}

func TestMapTransaction_BadAmount(t *testing.T) {
	_, err := mapTransaction(account{ID: "ACT-1"}, transaction{ID: "T9", Posted: 1736942400, Amount: "12,00"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid SimpleFIN amount "12,00"`)
}
