package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/the-spice-must-balance/internal/service"
)

var (
	// ErrRateLimit indicates that the API rate limit has been exceeded.
	ErrRateLimit = errors.New("rate limit exceeded")
	// ErrMaxRetries indicates that all retry attempts have been exhausted.
	ErrMaxRetries = errors.New("max retries exceeded")
)

// RetryableError marks whether an operation may be retried. RetryAfter,
// when set, replaces the backoff delay before the next attempt.
type RetryableError struct {
	Err        error
	Retryable  bool
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// WithRetry runs operation until it succeeds, returns a permanent error,
// or uses up opts.MaxAttempts. Delays grow by opts.Multiplier up to
// opts.MaxDelay.
func WithRetry(ctx context.Context, operation func() error, opts service.RetryOptions) error {
	opts = withRetryDefaults(opts)
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	backoff := opts.InitialDelay
	for attempt := 1; ; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		wait, retry := nextDelay(err, backoff, opts.MaxDelay)
		if !retry {
			return err
		}
		if attempt >= opts.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrMaxRetries, opts.MaxAttempts, err)
		}

		logger.Warn("Operation failed, retrying",
			"attempt", attempt,
			"max_attempts", opts.MaxAttempts,
			"delay", wait,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		backoff = min(time.Duration(float64(backoff)*opts.Multiplier), opts.MaxDelay)
	}
}

func withRetryDefaults(opts service.RetryOptions) service.RetryOptions {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 100 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = 2.0
	}
	return opts
}

// nextDelay reports how long to wait before retrying err, or false when
// err is permanent. A server-provided delay wins over the backoff, capped
// at maxDelay. Rate limits without one wait the full maxDelay.
func nextDelay(err error, backoff, maxDelay time.Duration) (time.Duration, bool) {
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		if !retryableErr.Retryable {
			return 0, false
		}
		if retryableErr.RetryAfter > 0 {
			return min(retryableErr.RetryAfter, maxDelay), true
		}
	}
	if errors.Is(err, ErrRateLimit) {
		return maxDelay, true
	}
	return backoff, true
}

// ParseRetryAfter reads a Retry-After header value given in seconds or as
// an HTTP date. Missing or malformed values yield zero.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
