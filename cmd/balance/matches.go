package main

import (
	"fmt"

	"github.com/Veraticus/the-spice-must-balance/internal/cli"
	"github.com/Veraticus/the-spice-must-balance/internal/engine"
	"github.com/spf13/cobra"
)

func matchesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "matches",
		Short: "Review stored matches",
	}

	cmd.AddCommand(listMatchesCmd(a))
	cmd.AddCommand(rejectMatchCmd(a))

	return cmd
}

func listMatchesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list <session-id>",
		Short: "List the matches stored for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			records, err := store.GetMatchRecords(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to load matches: %w", err)
			}
			return cli.RenderMatchRecords(cmd.OutOrStdout(), records)
		},
	}
}

func rejectMatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reject <match-id>",
		Short: "Reject a stored match",
		Long: `Mark a stored match as rejected and reopen its book transaction. Rejections
lower the score of similar pairings in later runs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := engine.New(store, nil).RejectMatch(cmd.Context(), args[0]); err != nil {
				return err
			}
			return writeLine(cmd.OutOrStdout(), cli.FormatSuccess("Rejected match "+args[0]))
		},
	}
}
