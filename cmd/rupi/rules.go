package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pkamalssn/rupi-sub000/internal/cli"
	"github.com/pkamalssn/rupi-sub000/internal/model"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and manage categorization rules",
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesAddCmd())
	cmd.AddCommand(rulesExplainCmd())
	cmd.AddCommand(rulesConfirmCmd())
	cmd.AddCommand(rulesOverrideCmd())

	return cmd
}

func rulesListCmd() *cobra.Command {
	var (
		family string
		status string
		scope  string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules for a family",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, _, err := openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var statusFilter *model.RuleStatus
			if status != "" {
				st := model.RuleStatus(strings.ToLower(status))
				if !st.Valid() {
					return fmt.Errorf("invalid status %q (use candidate, active, or quarantined)", status)
				}
				statusFilter = &st
			}

			var scopeFilter *model.RuleScope
			if scope != "" {
				sc, err := parseScope(scope)
				if err != nil {
					return err
				}
				scopeFilter = &sc
			}

			ruleList, err := store.ListRules(cmd.Context(), family, statusFilter, scopeFilter)
			if err != nil {
				return fmt.Errorf("failed to list rules: %w", err)
			}

			if len(ruleList) == 0 {
				fmt.Println(cli.SubtleStyle.Render("No rules found."))
				return nil
			}

			fmt.Println(cli.TitleStyle.Render(fmt.Sprintf("Rules for family %s", family)))
			header := fmt.Sprintf("%-6s %-28s %-14s %-16s %-8s %-12s %-10s %5s %5s",
				"ID", "PATTERN", "TYPE", "CATEGORY", "SOURCE", "STATUS", "CONF", "HITS", "MISS")
			fmt.Println(cli.TableHeaderStyle.Render(header))

			for i := range ruleList {
				r := &ruleList[i]
				statusLabel := string(r.Status)
				if r.Probationary {
					statusLabel += "*"
				}
				line := fmt.Sprintf("%-6d %-28s %-14s %-16s %-8s %-12s %-10.2f %5d %5d",
					r.ID, truncate(r.Pattern, 28), r.MatchType, truncate(r.Category, 16),
					r.Source, statusLabel, r.Confidence, r.TimesMatched, r.TimesOverridden)
				switch {
				case r.Status == model.StatusQuarantined:
					fmt.Println(cli.ErrorStyle.Render(line))
				case r.Trusted():
					fmt.Println(cli.SuccessStyle.Render(line))
				default:
					fmt.Println(cli.TableCellStyle.Render(line))
				}
			}
			fmt.Println(cli.SubtleStyle.Render("* probationary"))
			return nil
		},
	}

	cmd.Flags().StringVar(&family, "family", "", "family to list rules for")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (candidate, active, quarantined)")
	cmd.Flags().StringVar(&scope, "scope", "", "filter by scope")
	_ = cmd.MarkFlagRequired("family")

	return cmd
}

func rulesAddCmd() *cobra.Command {
	var (
		family    string
		category  string
		scope     string
		account   string
		matchType string
	)

	cmd := &cobra.Command{
		Use:   "add [pattern]",
		Short: "Create a manual rule with an explicit pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ruleScope, err := parseScope(scope)
			if err != nil {
				return err
			}
			mt, err := parseMatchType(matchType)
			if err != nil {
				return err
			}

			store, engine, err := openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rule, err := engine.CreateManualRule(cmd.Context(), args[0], category, family, mt, ruleScope, accountFlag(account))
			if err != nil {
				return fmt.Errorf("failed to add rule: %w", err)
			}

			fmt.Println(cli.SuccessStyle.Render(fmt.Sprintf("✓ Rule #%d created: %q (%s) → %s",
				rule.ID, rule.Pattern, rule.MatchType, rule.Category)))
			return nil
		},
	}

	cmd.Flags().StringVar(&family, "family", "", "family the rule belongs to")
	cmd.Flags().StringVar(&category, "category", "", "category the rule targets")
	cmd.Flags().StringVar(&scope, "scope", "global", "matching scope")
	cmd.Flags().StringVar(&account, "account", "", "restrict the rule to one account")
	cmd.Flags().StringVar(&matchType, "match-type", "contains", "match semantics (exact, starts_with, ends_with, contains, regex)")
	_ = cmd.MarkFlagRequired("family")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}

func rulesExplainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "explain [rule-id]",
		Short: "Show why a rule fires and how much it can be trusted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid rule id %q", args[0])
			}

			store, engine, err := openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rule, err := store.GetRule(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("failed to load rule: %w", err)
			}

			exp := engine.Explain(rule)
			trusted := "no"
			if exp.Trusted {
				trusted = "yes"
			}
			body := strings.Join([]string{
				cli.BoldStyle.Render(exp.HumanReadable),
				"",
				fmt.Sprintf("Pattern:     %q (%s)", exp.Pattern, exp.MatchType),
				fmt.Sprintf("Scope:       %s", exp.Scope),
				fmt.Sprintf("Source:      %s", exp.Source),
				fmt.Sprintf("Confidence:  %.2f", exp.Confidence),
				fmt.Sprintf("Trusted:     %s", trusted),
				fmt.Sprintf("Utility:     %.2f", exp.Utility),
				fmt.Sprintf("Matched:     %d times, overridden %d times", exp.TimesMatched, exp.TimesOverridden),
			}, "\n")
			fmt.Println(cli.BoxStyle.Render(body))
			return nil
		},
	}
}

func rulesConfirmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm [rule-id]",
		Short: "Confirm a rule's categorization as correct",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid rule id %q", args[0])
			}

			store, engine, err := openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rule, err := engine.Confirm(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("failed to confirm rule: %w", err)
			}

			fmt.Println(cli.SuccessStyle.Render(fmt.Sprintf("✓ Rule #%d confirmed (confidence %.2f)", rule.ID, rule.Confidence)))
			return nil
		},
	}
}

func rulesOverrideCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "override [rule-id]",
		Short: "Record that a rule's categorization was wrong",
		Long: `Override records a user rejection of a rule's categorization. A
probationary rule is quarantined immediately; an established rule loses
confidence and is quarantined once it falls below the trust floor.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid rule id %q", args[0])
			}

			store, engine, err := openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rule, err := engine.RecordOverride(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("failed to record override: %w", err)
			}

			if rule.Status == model.StatusQuarantined {
				fmt.Println(cli.WarningStyle.Render(fmt.Sprintf("Rule #%d quarantined (%s)", rule.ID, rule.QuarantineReason)))
			} else {
				fmt.Println(cli.SuccessStyle.Render(fmt.Sprintf("✓ Override recorded for rule #%d (confidence now %.2f)", rule.ID, rule.Confidence)))
			}
			return nil
		},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
