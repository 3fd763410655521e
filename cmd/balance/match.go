package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/the-spice-must-balance/internal/cli"
	"github.com/Veraticus/the-spice-must-balance/internal/common"
	"github.com/Veraticus/the-spice-must-balance/internal/engine"
	"github.com/Veraticus/the-spice-must-balance/internal/model"
	"github.com/Veraticus/the-spice-must-balance/internal/plaid"
	"github.com/Veraticus/the-spice-must-balance/internal/service"
	"github.com/Veraticus/the-spice-must-balance/internal/sheets"
	"github.com/Veraticus/the-spice-must-balance/internal/simplefin"
	"github.com/Veraticus/the-spice-must-balance/internal/statement"
	"github.com/spf13/cobra"
)

type matchOptions struct {
	sessionID     string
	acceptMin     string
	save          bool
	exportSheets  bool
	fromPlaid     bool
	fromSimpleFIN bool
	noProgress    bool
}

// sources counts the statement sources the options name.
func (o matchOptions) sources(files []string) int {
	n := 0
	for _, set := range []bool{len(files) > 0, o.fromPlaid, o.fromSimpleFIN} {
		if set {
			n++
		}
	}
	return n
}

func matchCmd(a *app) *cobra.Command {
	var opts matchOptions

	cmd := &cobra.Command{
		Use:   "match [statement files...]",
		Short: "Match statement lines against the session's book transactions",
		Long: `Score every statement line against the unreconciled book transactions of a
session, apply your rules and print the optimal one-to-one pairing.

Statement lines come from OFX/QFX or CSV files, from Plaid with --plaid, or
from a SimpleFIN bridge with --simplefin.
Use --save to record the matches and mark their book transactions reconciled.`,
		Example: `  balance match --session 2024-03 ~/Downloads/checking-march.qfx
  balance match --session 2024-03 --plaid --save --accept-min medium --export-sheets
  balance match --session 2024-03 --simplefin --save`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runMatch(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.sessionID, "session", "", "reconciliation session ID")
	cmd.Flags().BoolVar(&opts.save, "save", false, "store the matches and mark book transactions reconciled")
	cmd.Flags().StringVar(&opts.acceptMin, "accept-min", string(model.ConfidenceLow), "lowest confidence saved with --save (high, medium, low)")
	cmd.Flags().BoolVar(&opts.exportSheets, "export-sheets", false, "export the report to Google Sheets")
	cmd.Flags().BoolVar(&opts.fromPlaid, "plaid", false, "pull statement lines from Plaid for the session period")
	cmd.Flags().BoolVar(&opts.fromSimpleFIN, "simplefin", false, "pull statement lines from SimpleFIN for the session period")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "hide the progress bar")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}

func (a *app) runMatch(cmd *cobra.Command, args []string, opts matchOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if opts.sources(args) != 1 {
		return common.NewUserError("Pass exactly one statement source: files, --plaid or --simplefin", nil)
	}
	minTier, err := parseConfidence(opts.acceptMin)
	if err != nil {
		return err
	}

	store, err := a.openStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	session, err := store.GetSession(ctx, opts.sessionID)
	if err != nil {
		if errors.Is(err, common.ErrSessionNotFound) {
			return common.NewUserError("Reconciliation session not found", err)
		}
		return err
	}

	statements, err := a.loadStatements(ctx, session, args, opts)
	if err != nil {
		return err
	}

	r, err := a.newReconciler(ctx, store)
	if err != nil {
		return err
	}
	defer r.Close()

	var progress *cli.MatchProgress
	if !opts.noProgress {
		progress = cli.NewMatchProgress(cmd.ErrOrStderr())
		r.matcher.OnProgress(progress.Update)
	}

	suggestion, err := r.service.FindOptimalMatches(ctx, engine.FindMatchesRequest{
		SessionID:             session.ID,
		StatementTransactions: statements,
	})
	if progress != nil {
		progress.Finish()
	}
	if err != nil {
		return err
	}

	if err := cli.RenderSuggestion(out, suggestion); err != nil {
		return err
	}

	if opts.save {
		accepted := acceptedMatches(suggestion.Matches, minTier)
		records, err := r.service.SaveMatches(ctx, session.ID, accepted)
		if err != nil {
			return err
		}
		if err := cli.RenderMatchRecords(out, records); err != nil {
			return err
		}
		if err := writeLine(out, cli.FormatSuccess(fmt.Sprintf("Saved %d of %d matches", len(records), len(suggestion.Matches)))); err != nil {
			return err
		}
	}

	if opts.exportSheets {
		url, err := a.exportReport(ctx, session, suggestion)
		if err != nil {
			return err
		}
		if err := writeLine(out, cli.FormatSuccess(fmt.Sprintf("%s Report exported: %s", cli.LinkIcon, url))); err != nil {
			return err
		}
	}

	return nil
}

func (a *app) loadStatements(ctx context.Context, session *model.ReconciliationSession, files []string, opts matchOptions) ([]model.StatementTransaction, error) {
	var (
		fetcher service.StatementFetcher
		source  string
	)
	switch {
	case opts.fromPlaid:
		client, err := plaid.NewClient(a.cfg.PlaidClientConfig())
		if err != nil {
			return nil, err
		}
		fetcher, source = client, "Plaid"
	case opts.fromSimpleFIN:
		client, err := simplefin.NewClient(ctx, a.cfg.SimpleFINClientConfig())
		if err != nil {
			return nil, err
		}
		fetcher, source = client, "SimpleFIN"
	default:
		paths, err := expandFiles(files)
		if err != nil {
			return nil, err
		}
		return statement.ParseFiles(ctx, paths, session.AccountID)
	}

	txns, err := fetcher.GetTransactions(ctx, session.StartDate, session.EndDate)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch statement lines from %s: %w", source, err)
	}
	slog.Info("Fetched statement lines", "source", source, "count", len(txns))
	return txns, nil
}

func (a *app) exportReport(ctx context.Context, session *model.ReconciliationSession, suggestion *model.MatchSuggestion) (string, error) {
	cfg, err := a.cfg.SheetsWriterConfig()
	if err != nil {
		return "", err
	}
	writer, err := sheets.NewWriter(ctx, *cfg, common.ComponentLogger("sheets"))
	if err != nil {
		return "", err
	}

	spreadsheetID, err := writer.Write(ctx, sheets.Report{
		GeneratedAt: time.Now(),
		Suggestion:  suggestion,
		Period:      sheets.DateRange{Start: session.StartDate, End: session.EndDate},
		SessionID:   session.ID,
		AccountID:   session.AccountID,
	})
	if err != nil {
		return "", err
	}
	return "https://docs.google.com/spreadsheets/d/" + spreadsheetID, nil
}

var confidenceRank = map[model.MatchConfidence]int{
	model.ConfidenceLow:    1,
	model.ConfidenceMedium: 2,
	model.ConfidenceHigh:   3,
	model.ConfidenceManual: 3,
}

func parseConfidence(s string) (model.MatchConfidence, error) {
	c := model.MatchConfidence(s)
	switch c {
	case model.ConfidenceHigh, model.ConfidenceMedium, model.ConfidenceLow:
		return c, nil
	default:
		return "", common.NewUserError(fmt.Sprintf("Invalid confidence %q, expected high, medium or low", s), nil)
	}
}

// acceptedMatches keeps matches at or above the given confidence.
func acceptedMatches(matches []model.TransactionMatch, floor model.MatchConfidence) []model.TransactionMatch {
	var accepted []model.TransactionMatch
	for _, m := range matches {
		if confidenceRank[m.Confidence] >= confidenceRank[floor] {
			accepted = append(accepted, m)
		}
	}
	return accepted
}
