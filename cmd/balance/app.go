package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/the-spice-must-balance/internal/common"
	"github.com/Veraticus/the-spice-must-balance/internal/engine"
	"github.com/Veraticus/the-spice-must-balance/internal/ledger"
	"github.com/Veraticus/the-spice-must-balance/internal/llm"
	"github.com/Veraticus/the-spice-must-balance/internal/matching"
	"github.com/Veraticus/the-spice-must-balance/internal/service"
	"github.com/Veraticus/the-spice-must-balance/internal/storage"
)

// openStorage opens the configured database and applies pending migrations.
func (a *app) openStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(a.cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// reconciler bundles a reconciliation service with the resources it holds.
type reconciler struct {
	service   *engine.ReconciliationService
	matcher   *matching.Matcher
	assistant *llm.Assistant
	ledger    *ledger.PostgresLedger
}

func (r *reconciler) Close() {
	if r.assistant != nil {
		r.assistant.Close()
	}
	if r.ledger != nil {
		_ = r.ledger.Close()
	}
}

// newReconciler wires the matcher and the reconciliation service. The LLM
// assistant is attached when a provider is configured and the Postgres
// ledger replaces the local one when a DSN is set.
func (a *app) newReconciler(ctx context.Context, store service.Storage) (*reconciler, error) {
	r := &reconciler{}

	var (
		categorizer matching.Categorizer
		explainer   matching.Explainer
	)
	if a.cfg.LLMEnabled() {
		assistant, err := llm.NewAssistant(a.cfg.LLMClientConfig(), common.ComponentLogger("llm"))
		if err != nil {
			return nil, err
		}
		r.assistant = assistant
		categorizer = assistant
		if a.cfg.Matching.Explain {
			explainer = assistant
		}
	}

	var books service.BookSource
	if dsn := a.cfg.Ledger.PostgresDSN; dsn != "" {
		pg, err := ledger.Open(ctx, dsn, a.cfg.Ledger.Table)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.ledger = pg
		books = pg
		slog.Debug("Using Postgres ledger", "table", a.cfg.Ledger.Table)
	}

	r.matcher = matching.NewMatcher(a.cfg.MatcherConfig(), categorizer, store, explainer, common.ComponentLogger("matcher"))
	r.service = engine.NewWithConfig(store, r.matcher, engine.Config{
		Books:  books,
		Logger: common.ComponentLogger("engine"),
	})
	return r, nil
}
