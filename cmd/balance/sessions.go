package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/the-spice-must-balance/internal/cli"
	"github.com/Veraticus/the-spice-must-balance/internal/common"
	"github.com/Veraticus/the-spice-must-balance/internal/engine"
	"github.com/Veraticus/the-spice-must-balance/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

func sessionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage reconciliation sessions",
		Long:  `Create, list, inspect and complete reconciliation sessions. A session scopes matching to one account and date window.`,
	}

	cmd.AddCommand(createSessionCmd(a))
	cmd.AddCommand(listSessionsCmd(a))
	cmd.AddCommand(showSessionCmd(a))
	cmd.AddCommand(completeSessionCmd(a))

	return cmd
}

func createSessionCmd(a *app) *cobra.Command {
	var id, account, start, end, balance string

	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Start a reconciliation session",
		Example: `  balance sessions create --account checking --start 2024-03-01 --end 2024-03-31 --balance 4210.55`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			startDate, err := parseDate(start)
			if err != nil {
				return err
			}
			endDate, err := parseDate(end)
			if err != nil {
				return err
			}
			if endDate.Before(startDate) {
				return common.NewUserError("End date is before start date", nil)
			}
			amount := decimal.Zero
			if balance != "" {
				amount, err = decimal.NewFromString(balance)
				if err != nil {
					return common.NewUserError(fmt.Sprintf("Invalid statement balance %q", balance), err)
				}
			}
			if id == "" {
				id = uuid.NewString()
			}

			store, err := a.openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			session := &model.ReconciliationSession{
				ID:               id,
				UserID:           a.cfg.UserID,
				AccountID:        account,
				StartDate:        startDate,
				EndDate:          endDate,
				StatementBalance: amount,
			}
			if err := store.CreateSession(cmd.Context(), session); err != nil {
				if errors.Is(err, common.ErrDuplicateEntry) {
					return common.NewUserError(fmt.Sprintf("Session %s already exists", session.ID), err)
				}
				return err
			}

			return writeLine(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created session %s for %s (%s → %s)",
				session.ID, account, start, end)))
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "session ID (default: generated)")
	cmd.Flags().StringVar(&account, "account", "", "account being reconciled")
	cmd.Flags().StringVar(&start, "start", "", "first day of the statement period (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "last day of the statement period (YYYY-MM-DD)")
	cmd.Flags().StringVar(&balance, "balance", "", "closing statement balance")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}

func listSessionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List reconciliation sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			sessions, err := store.ListSessions(cmd.Context(), a.cfg.UserID)
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}
			return cli.RenderSessions(cmd.OutOrStdout(), sessions)
		},
	}
}

func showSessionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Summarise a session's stored matches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			summary, err := engine.New(store, nil).Summarize(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return cli.RenderSummary(cmd.OutOrStdout(), "Session "+args[0], summary)
		},
	}
}

func completeSessionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <session-id>",
		Short: "Close a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			summary, err := engine.New(store, nil).CompleteSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return cli.RenderSummary(cmd.OutOrStdout(), "Session complete", summary)
		},
	}
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, common.NewUserError(fmt.Sprintf("Invalid date %q, expected YYYY-MM-DD", s), err)
	}
	return t, nil
}
