package main

import (
	"fmt"
	"io"

	"github.com/Veraticus/the-spice-must-balance/internal/common"
	"github.com/Veraticus/the-spice-must-balance/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries the state shared by every command of one invocation.
type app struct {
	v       *viper.Viper
	cfg     *config.Config
	cfgFile string
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "balance",
		Short: "⚖️  Bank reconciliation matching engine",
		Long: `the-spice-must-balance: match bank statement lines against your book ledger,
review the suggestions and keep a record of every reconciliation session.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.initConfig,
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: $HOME/.config/balance/config.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "console", "log format (console, json)")
	root.PersistentFlags().String("user", "default", "user that owns sessions and rules")

	_ = a.v.BindPFlag("logging.level", root.PersistentFlags().Lookup("log-level"))
	_ = a.v.BindPFlag("logging.format", root.PersistentFlags().Lookup("log-format"))
	_ = a.v.BindPFlag("user_id", root.PersistentFlags().Lookup("user"))

	root.AddCommand(migrateCmd(a))
	root.AddCommand(sessionsCmd(a))
	root.AddCommand(rulesCmd(a))
	root.AddCommand(ledgerCmd(a))
	root.AddCommand(matchCmd(a))
	root.AddCommand(matchesCmd(a))
	root.AddCommand(sheetsCmd(a))
	root.AddCommand(plaidCmd(a))
	root.AddCommand(simplefinCmd(a))
	root.AddCommand(versionCmd())

	return root
}

func (a *app) initConfig(_ *cobra.Command, _ []string) error {
	if err := config.ReadFile(a.v, a.cfgFile); err != nil {
		return err
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := common.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	if err := common.SetupLogger(level, cfg.Logging.Format); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printf(cmd.OutOrStdout(), "balance %s\n", version)
		},
	}
}

func printf(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeLine(w io.Writer, s string) error {
	_, err := fmt.Fprintln(w, s)
	return err
}
