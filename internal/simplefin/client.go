// Package simplefin pulls statement lines from a SimpleFIN bridge.
package simplefin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/the-spice-must-balance/internal/common"
	"github.com/Veraticus/the-spice-must-balance/internal/model"
	"github.com/Veraticus/the-spice-must-balance/internal/service"
	"github.com/shopspring/decimal"
)

// Config holds SimpleFIN connection settings.
type Config struct {
	Token     string // base64 setup token, claimed on first use
	AccessURL string // skips the claim when set
	StateFile string // where a claimed access URL is kept
	AccountID string // optional; limits results to one account
}

// Validate ensures a token or an access URL is present.
func (c *Config) Validate() error {
	switch {
	case c.AccessURL != "":
		if !isHTTPURL(c.AccessURL) {
			return fmt.Errorf("%w: simplefin access URL must be an http(s) URL", common.ErrInvalidConfig)
		}
	case c.Token == "" && c.StateFile == "":
		return fmt.Errorf("%w: simplefin token or access URL is required", common.ErrMissingConfig)
	case c.StateFile == "":
		return fmt.Errorf("%w: simplefin state file is required to keep a claimed token", common.ErrMissingConfig)
	}
	return nil
}

type accountSet struct {
	Errors   []string  `json:"errors"`
	Accounts []account `json:"accounts"`
}

type account struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Currency     string        `json:"currency"`
	Balance      string        `json:"balance"`
	Transactions []transaction `json:"transactions"`
}

type transaction struct {
	ID          string `json:"id"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Payee       string `json:"payee"`
	Posted      int64  `json:"posted"`
	Pending     bool   `json:"pending"`
}

// Client implements service.StatementFetcher.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	accessURL  string
	accountID  string
	retryOpts  service.RetryOptions
}

// NewClient resolves the access URL, claiming the setup token when no
// access URL is configured or saved.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	logger := slog.Default().With("component", "simplefin")

	accessURL := cfg.AccessURL
	if accessURL == "" {
		auth, err := LoadOrClaimAuth(ctx, httpClient, cfg.Token, cfg.StateFile, logger)
		if err != nil {
			return nil, err
		}
		accessURL = auth.AccessURL
	}

	return newClient(httpClient, logger, accessURL, cfg.AccountID), nil
}

func newClient(httpClient *http.Client, logger *slog.Logger, accessURL, accountID string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		accessURL:  strings.TrimSuffix(accessURL, "/"),
		accountID:  accountID,
		retryOpts: service.RetryOptions{
			Logger:       logger,
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// GetTransactions fetches posted statement lines dated within the
// inclusive range. Pending lines are skipped. SimpleFIN reports money out
// as negative, which is already the statement convention.
func (c *Client) GetTransactions(ctx context.Context, startDate, endDate time.Time) ([]model.StatementTransaction, error) {
	if startDate.After(endDate) {
		return nil, fmt.Errorf("start date must be before end date")
	}

	params := url.Values{}
	params.Set("start-date", strconv.FormatInt(startDate.Unix(), 10))
	// end-date is exclusive
	params.Set("end-date", strconv.FormatInt(endDate.AddDate(0, 0, 1).Unix(), 10))

	set, err := c.fetchAccounts(ctx, params)
	if err != nil {
		return nil, err
	}

	first, last := day(startDate), day(endDate)
	var txns []model.StatementTransaction
	skipped := 0
	for _, acct := range set.Accounts {
		if c.accountID != "" && acct.ID != c.accountID {
			continue
		}
		for _, tx := range acct.Transactions {
			if tx.Pending || tx.Posted == 0 {
				skipped++
				continue
			}

			txn, err := mapTransaction(acct, tx)
			if err != nil {
				return nil, err
			}
			if txn.Date.Before(first) || txn.Date.After(last) {
				continue
			}
			txns = append(txns, txn)
		}
	}

	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].Date.Before(txns[j].Date)
	})

	c.logger.Info("fetched statement lines", "count", len(txns), "pending_skipped", skipped)
	return txns, nil
}

// GetAccounts lists the account IDs behind the access URL.
func (c *Client) GetAccounts(ctx context.Context) ([]string, error) {
	params := url.Values{}
	params.Set("balances-only", "1")

	set, err := c.fetchAccounts(ctx, params)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(set.Accounts))
	for _, acct := range set.Accounts {
		ids = append(ids, acct.ID)
	}
	return ids, nil
}

func (c *Client) fetchAccounts(ctx context.Context, params url.Values) (*accountSet, error) {
	u, err := url.Parse(c.accessURL + "/accounts")
	if err != nil {
		return nil, fmt.Errorf("%w: invalid access URL: %w", common.ErrInvalidConfig, err)
	}
	u.RawQuery = params.Encode()

	var set accountSet
	err = common.WithRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return &common.RetryableError{Err: fmt.Errorf("failed to create request: %w", err)}
		}

		c.logger.Debug("requesting SimpleFIN accounts", "url", u.Redacted())
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %w", common.ErrSimpleFINConnection, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return statusError(resp, body)
		}

		set = accountSet{}
		if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
			return &common.RetryableError{Err: fmt.Errorf("failed to decode SimpleFIN response: %w", err)}
		}
		return nil
	}, c.retryOpts)
	if err != nil {
		return nil, err
	}

	for _, msg := range set.Errors {
		c.logger.Warn("SimpleFIN bridge reported a problem", "message", msg)
	}
	return &set, nil
}

// statusError retries rate limits and server errors and stops on the rest;
// a 403 means the access URL was revoked.
func statusError(resp *http.Response, body []byte) error {
	err := fmt.Errorf("%w: status %d: %s", common.ErrSimpleFINConnection, resp.StatusCode, strings.TrimSpace(string(body)))
	retryAfter := common.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &common.RetryableError{Err: fmt.Errorf("%w: %w", common.ErrRateLimit, err), Retryable: true, RetryAfter: retryAfter}
	case resp.StatusCode >= http.StatusInternalServerError:
		return &common.RetryableError{Err: err, Retryable: true, RetryAfter: retryAfter}
	default:
		return &common.RetryableError{Err: err}
	}
}

func mapTransaction(acct account, tx transaction) (model.StatementTransaction, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(tx.Amount))
	if err != nil {
		return model.StatementTransaction{}, fmt.Errorf("invalid SimpleFIN amount %q for %s: %w", tx.Amount, tx.ID, err)
	}

	description := strings.TrimSpace(tx.Description)
	if description == "" {
		description = strings.TrimSpace(tx.Payee)
	}

	txn := model.StatementTransaction{
		ID:          acct.ID + "_" + tx.ID,
		Date:        day(time.Unix(tx.Posted, 0)),
		Amount:      amount,
		Description: description,
		AccountID:   acct.ID,
		Source:      "simplefin",
	}
	txn.Hash = txn.GenerateHash()
	return txn, nil
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

var _ service.StatementFetcher = (*Client)(nil)
