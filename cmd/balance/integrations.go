package main

import (
	"fmt"

	"github.com/Veraticus/the-spice-must-balance/internal/cli"
	"github.com/Veraticus/the-spice-must-balance/internal/common"
	"github.com/Veraticus/the-spice-must-balance/internal/plaid"
	"github.com/Veraticus/the-spice-must-balance/internal/service"
	"github.com/Veraticus/the-spice-must-balance/internal/sheets"
	"github.com/Veraticus/the-spice-must-balance/internal/simplefin"
	"github.com/spf13/cobra"
)

func sheetsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sheets",
		Short: "Google Sheets export settings",
	}
	cmd.AddCommand(sheetsAuthCmd(a))
	return cmd
}

func sheetsAuthCmd(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize report export to Google Sheets",
		Long: `Run the Google OAuth2 consent flow and print the refresh token to store as
sheets.refresh_token (or BALANCE_SHEETS_REFRESH_TOKEN).

Requires sheets.client_id and sheets.client_secret from a Google Cloud
OAuth client of type "Desktop app".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Sheets.ClientID == "" || a.cfg.Sheets.ClientSecret == "" {
				return common.NewUserError("Set sheets.client_id and sheets.client_secret first", common.ErrMissingConfig)
			}

			token, err := sheets.GetOrCreateToken(cmd.Context(), sheets.OAuth2Config{
				ClientID:     a.cfg.Sheets.ClientID,
				ClientSecret: a.cfg.Sheets.ClientSecret,
				TokenFile:    a.cfg.Sheets.TokenFile,
				ListenAddr:   listen,
			})
			if err != nil {
				return fmt.Errorf("google sheets authentication failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if err := writeLine(out, cli.FormatSuccess("Google Sheets authorized")); err != nil {
				return err
			}
			return printf(out, "\nAdd this to your config:\n\nsheets:\n  refresh_token: %s\n", token.RefreshToken)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "localhost:8080", "address of the OAuth callback listener")

	return cmd
}

func plaidCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plaid",
		Short: "Plaid statement source",
	}
	cmd.AddCommand(accountsCmd("List the accounts behind the configured access token", func(cmd *cobra.Command) (service.StatementFetcher, error) {
		return plaid.NewClient(a.cfg.PlaidClientConfig())
	}))
	return cmd
}

func simplefinCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simplefin",
		Short: "SimpleFIN statement source",
		Long: `Pull statement lines from a SimpleFIN bridge.

The setup token from simplefin.token (or SIMPLEFIN_TOKEN) is claimed on
first use and the access URL is saved to simplefin.state_file.`,
	}
	cmd.AddCommand(accountsCmd("Claim the setup token if needed and list the bridge's accounts", func(cmd *cobra.Command) (service.StatementFetcher, error) {
		return simplefin.NewClient(cmd.Context(), a.cfg.SimpleFINClientConfig())
	}))
	return cmd
}

// accountsCmd lists the account IDs of a statement source.
func accountsCmd(short string, open func(*cobra.Command) (service.StatementFetcher, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fetcher, err := open(cmd)
			if err != nil {
				return err
			}

			accounts, err := fetcher.GetAccounts(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range accounts {
				if err := writeLine(cmd.OutOrStdout(), id); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
