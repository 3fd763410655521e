package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/the-spice-must-balance/internal/common"
	"github.com/Veraticus/the-spice-must-balance/internal/matching"
	"github.com/Veraticus/the-spice-must-balance/internal/model"
	"github.com/Veraticus/the-spice-must-balance/internal/service"
	"github.com/shopspring/decimal"
)

const (
	categorizeSystemPrompt = "You are a bookkeeping assistant that assigns ledger categories to bank statement lines. You MUST respond with ONLY a valid JSON object of the form {\"category\": string, \"confidence\": number}. Do not include any other text."
	explainSystemPrompt    = "You are a bookkeeping assistant explaining bank reconciliation matches to an accountant. Respond with one or two plain sentences. Do not use markdown."
)

var (
	_ matching.Categorizer = (*Assistant)(nil)
	_ matching.Explainer   = (*Assistant)(nil)
)

// Assistant predicts ledger categories and writes match explanations with
// an LLM provider. It is safe for concurrent use.
type Assistant struct {
	client      Client
	cache       *categoryCache
	rateLimiter *rateLimiter
	logger      *slog.Logger
	categories  []string
	retryOpts   service.RetryOptions
}

// NewAssistant creates an assistant for the configured provider.
func NewAssistant(cfg Config, logger *slog.Logger) (*Assistant, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return newAssistant(client, cfg, logger), nil
}

func newAssistant(client Client, cfg Config, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}

	retryOpts := service.RetryOptions{
		Logger:       logger,
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 3
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = time.Second
	}

	return &Assistant{
		client:      client,
		cache:       newCategoryCache(cfg.CacheTTL),
		rateLimiter: newRateLimiter(cfg.RateLimit),
		logger:      logger,
		categories:  cfg.Categories,
		retryOpts:   retryOpts,
	}
}

// Close stops the background cache and rate limiter goroutines.
func (a *Assistant) Close() {
	a.cache.Close()
	a.rateLimiter.Close()
}

// Categorize predicts the ledger category of a statement line. Results are
// cached per description, amount and direction.
func (a *Assistant) Categorize(ctx context.Context, description string, amount decimal.Decimal, txnType model.TransactionType) (string, error) {
	key := categoryKey(description, amount, txnType)
	if category, found := a.cache.get(key); found {
		a.logger.Debug("cache hit for statement line", "description", description)
		return category, nil
	}

	prompt := a.buildCategoryPrompt(description, amount, txnType)

	var category string
	err := a.complete(ctx, categorizeSystemPrompt, prompt, func(content string) error {
		parsed, err := parseCategory(content)
		if err != nil {
			return err
		}
		category = a.canonicalCategory(parsed)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrCategorizationFailed, err)
	}

	a.cache.set(key, category)
	a.logger.Debug("statement line categorized",
		"description", description,
		"category", category)

	return category, nil
}

// Explain narrates a final match. Callers fall back to the template
// explanation when this fails.
func (a *Assistant) Explain(ctx context.Context, match model.TransactionMatch) (string, error) {
	prompt := buildExplanationPrompt(match)

	var explanation string
	err := a.complete(ctx, explainSystemPrompt, prompt, func(content string) error {
		explanation = strings.TrimSpace(content)
		if explanation == "" {
			return fmt.Errorf("empty explanation")
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to explain match: %w", err)
	}
	return explanation, nil
}

// complete runs one rate-limited, retried completion and hands the content
// to parse. Parse failures are retried like transport failures.
func (a *Assistant) complete(ctx context.Context, system, prompt string, parse func(string) error) error {
	return common.WithRetry(ctx, func() error {
		if err := ctx.Err(); err != nil {
			return &common.RetryableError{Err: err, Retryable: false}
		}
		if err := a.rateLimiter.wait(ctx); err != nil {
			return &common.RetryableError{Err: err, Retryable: false}
		}

		content, err := a.client.Complete(ctx, system, prompt)
		if err != nil {
			return err
		}
		return parse(content)
	}, a.retryOpts)
}

func (a *Assistant) buildCategoryPrompt(description string, amount decimal.Decimal, txnType model.TransactionType) string {
	var b strings.Builder

	b.WriteString("Assign a ledger category to this bank statement line.\n\n")
	fmt.Fprintf(&b, "Description: %s\n", description)
	fmt.Fprintf(&b, "Amount: %s\n", amount.Abs().StringFixed(2))
	fmt.Fprintf(&b, "Direction: %s\n", txnType)

	if len(a.categories) > 0 {
		b.WriteString("\nChoose one of these categories:\n")
		for _, category := range a.categories {
			fmt.Fprintf(&b, "- %s\n", category)
		}
	}

	b.WriteString("\nRespond with JSON: {\"category\": \"...\", \"confidence\": 0.0-1.0}")
	return b.String()
}

// canonicalCategory maps a case-insensitive match onto the configured name.
func (a *Assistant) canonicalCategory(category string) string {
	for _, known := range a.categories {
		if strings.EqualFold(known, category) {
			return known
		}
	}
	return category
}

func buildExplanationPrompt(match model.TransactionMatch) string {
	stmt, book := match.StatementTransaction, match.BookTransaction

	var b strings.Builder
	b.WriteString("Explain why this bank statement line was matched to this ledger entry.\n\n")
	fmt.Fprintf(&b, "Statement: %s | %s | %s\n", stmt.Date.Format("2006-01-02"), stmt.Amount.StringFixed(2), stmt.Description)
	fmt.Fprintf(&b, "Ledger: %s | %s | %s\n", book.TransactionDate.Format("2006-01-02"), book.Amount.StringFixed(2), book.Description)
	fmt.Fprintf(&b, "Score: %.2f (%s confidence)\n", match.Score, match.Confidence)
	if match.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", match.Reason)
	}
	fmt.Fprintf(&b, "Summary: %s\n", matching.ExplainMatch(match))
	return b.String()
}

func categoryKey(description string, amount decimal.Decimal, txnType model.TransactionType) string {
	return strings.ToLower(strings.TrimSpace(description)) + "|" + amount.StringFixed(2) + "|" + string(txnType)
}

// parseCategory extracts the category from a JSON completion.
func parseCategory(content string) (string, error) {
	var resp struct {
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	}

	if err := json.Unmarshal([]byte(cleanMarkdownWrapper(content)), &resp); err != nil {
		return "", fmt.Errorf("failed to parse JSON response: %w", err)
	}

	category := strings.TrimSpace(resp.Category)
	if category == "" {
		return "", fmt.Errorf("no category found in response")
	}
	return category, nil
}
