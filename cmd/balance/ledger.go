package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Veraticus/the-spice-must-balance/internal/cli"
	"github.com/Veraticus/the-spice-must-balance/internal/ledger"
	"github.com/Veraticus/the-spice-must-balance/internal/service"
	"github.com/Veraticus/the-spice-must-balance/internal/statement"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func ledgerCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Manage book transactions",
		Long:  `Import book transactions into the local ledger and inspect the unreconciled entries of an account.`,
	}

	cmd.AddCommand(importLedgerCmd(a))
	cmd.AddCommand(listLedgerCmd(a))

	return cmd
}

func importLedgerCmd(a *app) *cobra.Command {
	var (
		account string
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "import <files...>",
		Short: "Import book transactions from OFX/QFX or CSV files",
		Example: `  balance ledger import --account checking ~/exports/books-2024-03.csv
  balance ledger import --account checking ~/exports/*.qfx`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := expandFiles(args)
			if err != nil {
				return err
			}

			txns, err := statement.ParseFiles(cmd.Context(), files, account)
			if err != nil {
				return err
			}
			books := statement.ToBookTransactions(txns, account)

			out := cmd.OutOrStdout()
			if dryRun {
				for _, b := range books {
					if err := printf(out, "  %s  %10s  %s\n", b.TransactionDate.Format(dateLayout), b.Amount.StringFixed(2), b.Description); err != nil {
						return err
					}
				}
				return writeLine(out, cli.FormatInfo(fmt.Sprintf("Dry run: %d book transactions would be imported", len(books))))
			}

			store, err := a.openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.SaveBookTransactions(cmd.Context(), books); err != nil {
				return fmt.Errorf("failed to save book transactions: %w", err)
			}

			slog.Info("Imported book transactions", "account", account, "files", len(files), "count", len(books))
			return writeLine(out, cli.FormatSuccess(fmt.Sprintf("Imported %d book transactions into %s", len(books), account)))
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "ledger account the rows belong to")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "d", false, "preview import without saving")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func listLedgerCmd(a *app) *cobra.Command {
	var account, start, end string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List unreconciled book transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			startDate, err := parseDate(start)
			if err != nil {
				return err
			}
			endDate, err := parseDate(end)
			if err != nil {
				return err
			}

			var books service.BookSource
			if dsn := a.cfg.Ledger.PostgresDSN; dsn != "" {
				pg, err := ledger.Open(cmd.Context(), dsn, a.cfg.Ledger.Table)
				if err != nil {
					return err
				}
				defer func() { _ = pg.Close() }()
				books = pg
			} else {
				store, err := a.openStorage(cmd.Context())
				if err != nil {
					return err
				}
				defer func() { _ = store.Close() }()
				books = store
			}

			rows, err := books.GetBookTransactions(cmd.Context(), account, startDate, endDate, a.cfg.UserID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			total := decimal.Zero
			for _, b := range rows {
				total = total.Add(b.Amount)
				if err := printf(out, "  %-12s %s  %10s  %s\n", b.ID, b.TransactionDate.Format(dateLayout), b.Amount.StringFixed(2), b.Description); err != nil {
					return err
				}
			}
			return writeLine(out, cli.FormatInfo(fmt.Sprintf("%d unreconciled transactions totalling %s", len(rows), total.StringFixed(2))))
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "ledger account")
	cmd.Flags().StringVar(&start, "start", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "last day (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}

// expandFiles resolves glob patterns, keeping plain paths that exist.
func expandFiles(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) > 0 {
			files = append(files, matches...)
			continue
		}
		if _, err := os.Stat(pattern); err != nil {
			slog.Warn("No files found matching pattern", "pattern", pattern)
			continue
		}
		files = append(files, pattern)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no files found to import")
	}
	return files, nil
}
