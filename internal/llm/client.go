package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Veraticus/the-spice-must-balance/internal/common"
)

// Client defines the interface for LLM providers.
type Client interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Config configures an LLM provider and the collaborators built on it.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	Categories  []string
	MaxRetries  int
	RetryDelay  time.Duration
	CacheTTL    time.Duration
	RateLimit   int
	Temperature float64
	MaxTokens   int
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// statusError turns a non-200 provider response into an error that
// common.WithRetry knows how to treat. A Retry-After header sets the wait
// before the next attempt.
func statusError(provider string, status int, header http.Header, body []byte) error {
	err := fmt.Errorf("%s API error (status %d): %s", provider, status, strings.TrimSpace(string(body)))
	retryAfter := common.ParseRetryAfter(header.Get("Retry-After"), time.Now())
	switch {
	case status == http.StatusTooManyRequests:
		return &common.RetryableError{Err: fmt.Errorf("%w: %w", common.ErrRateLimit, err), Retryable: true, RetryAfter: retryAfter}
	case status >= http.StatusInternalServerError:
		return &common.RetryableError{Err: err, Retryable: true, RetryAfter: retryAfter}
	default:
		return &common.RetryableError{Err: err, Retryable: false}
	}
}

// cleanMarkdownWrapper strips a ```json fence some models wrap around JSON.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
