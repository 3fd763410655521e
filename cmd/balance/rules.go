package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Veraticus/the-spice-must-balance/internal/cli"
	"github.com/Veraticus/the-spice-must-balance/internal/common"
	"github.com/Veraticus/the-spice-must-balance/internal/matching"
	"github.com/Veraticus/the-spice-must-balance/internal/model"
	"github.com/spf13/cobra"
)

func rulesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage reconciliation rules",
		Long: `Add, list and delete declarative matching rules.

A rule pairs a statement line with a book transaction when all of its
conditions hold. Conditions have the form "<field> <operator> <value>", where
value is a literal or the name of another field.

Fields:    ` + strings.Join(model.RuleFields, ", ") + `
Operators: equals, contains, amount_equals, similar`,
	}

	cmd.AddCommand(addRuleCmd(a))
	cmd.AddCommand(listRulesCmd(a))
	cmd.AddCommand(deleteRuleCmd(a))

	return cmd
}

func addRuleCmd(a *app) *cobra.Command {
	var (
		description string
		conditions  []string
		priority    int
		inactive    bool
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a reconciliation rule",
		Example: `  balance rules add "Payroll" --priority 10 \
    --condition "statement_description contains PAYROLL" \
    --condition "statement_amount amount_equals book_amount"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rule := model.ReconciliationRule{
				UserID:      a.cfg.UserID,
				Name:        args[0],
				Description: description,
				Priority:    priority,
				IsActive:    !inactive,
			}
			for _, raw := range conditions {
				cond, err := parseCondition(raw)
				if err != nil {
					return err
				}
				rule.Conditions = append(rule.Conditions, cond)
			}
			if err := matching.ValidateRule(rule); err != nil {
				return common.NewUserError("Invalid rule", err)
			}

			store, err := a.openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.CreateRule(cmd.Context(), &rule); err != nil {
				return err
			}
			return writeLine(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created rule #%d %s", rule.ID, rule.Name)))
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "what the rule is for")
	cmd.Flags().StringArrayVar(&conditions, "condition", nil, `condition "<field> <operator> <value>" (repeatable)`)
	cmd.Flags().IntVar(&priority, "priority", 0, "higher priority rules win conflicts")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "store the rule disabled")
	_ = cmd.MarkFlagRequired("condition")

	return cmd
}

func listRulesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active reconciliation rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rules, err := store.GetActiveRules(cmd.Context(), a.cfg.UserID)
			if err != nil {
				return fmt.Errorf("failed to list rules: %w", err)
			}
			return cli.RenderRules(cmd.OutOrStdout(), rules)
		},
	}
}

func deleteRuleCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <rule-id>",
		Short: "Delete a reconciliation rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return common.NewUserError(fmt.Sprintf("Invalid rule ID %q", args[0]), err)
			}

			store, err := a.openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rule, err := store.GetRule(cmd.Context(), id)
			if err != nil {
				if errors.Is(err, common.ErrNotFound) {
					return common.NewUserError(fmt.Sprintf("Rule #%d not found", id), err)
				}
				return err
			}

			if !yes {
				ok, err := cli.NewLineReader(cmd.InOrStdin(), cmd.OutOrStdout()).Confirm(cmd.Context(), fmt.Sprintf("Delete rule #%d %s?", rule.ID, rule.Name))
				if err != nil {
					return err
				}
				if !ok {
					return writeLine(cmd.OutOrStdout(), cli.FormatInfo("Kept rule"))
				}
			}

			if err := store.DeleteRule(cmd.Context(), id); err != nil {
				return err
			}
			return writeLine(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Deleted rule #%d", id)))
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}

// parseCondition reads "<field> <operator> <value>". The value may contain
// spaces.
func parseCondition(raw string) (model.RuleCondition, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), " ", 3)
	if len(parts) != 3 || strings.TrimSpace(parts[2]) == "" {
		return model.RuleCondition{}, common.NewUserError(
			fmt.Sprintf("Invalid condition %q, expected \"<field> <operator> <value>\"", raw), common.ErrInvalidRule)
	}
	return model.RuleCondition{
		Field:    parts[0],
		Operator: model.RuleOperator(parts[1]),
		Value:    strings.TrimSpace(parts[2]),
	}, nil
}
