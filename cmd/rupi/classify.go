package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pkamalssn/rupi-sub000/internal/cli"
)

func classifyCmd() *cobra.Command {
	var (
		family  string
		scope   string
		account string
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "classify [description]",
		Short: "Classify a transaction description against the rule set",
		Long: `Classify finds the best-priority matching rule for a description and
prints its category. The match is recorded against the rule unless
--dry-run is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ruleScope, err := parseScope(scope)
			if err != nil {
				return err
			}

			store, engine, err := openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			description := strings.Join(args, " ")

			if dryRun {
				rule, err := engine.FindMatchingRule(ctx, description, family, ruleScope, accountFlag(account))
				if err != nil {
					return fmt.Errorf("classification failed: %w", err)
				}
				if rule == nil {
					fmt.Println(cli.SubtleStyle.Render("uncategorized"))
					return nil
				}
				fmt.Println(cli.SuccessStyle.Render(rule.Category))
				fmt.Println(cli.SubtleStyle.Render(engine.Explain(rule).HumanReadable))
				return nil
			}

			category, rule, err := engine.CategorizeByRules(ctx, description, family, ruleScope, accountFlag(account))
			if err != nil {
				return fmt.Errorf("classification failed: %w", err)
			}
			if rule == nil {
				fmt.Println(cli.SubtleStyle.Render("uncategorized"))
				return nil
			}

			fmt.Println(cli.SuccessStyle.Render(category))
			fmt.Println(cli.SubtleStyle.Render(engine.Explain(rule).HumanReadable))
			return nil
		},
	}

	cmd.Flags().StringVar(&family, "family", "", "family the transaction belongs to")
	cmd.Flags().StringVar(&scope, "scope", "global", "matching scope (global, narration, merchant, account_specific)")
	cmd.Flags().StringVar(&account, "account", "", "account the transaction belongs to")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "do not record the match against the rule")
	_ = cmd.MarkFlagRequired("family")

	return cmd
}
