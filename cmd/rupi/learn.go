package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pkamalssn/rupi-sub000/internal/cli"
	"github.com/pkamalssn/rupi-sub000/internal/common"
)

func learnCmd() *cobra.Command {
	var (
		family   string
		category string
		scope    string
		account  string
	)

	cmd := &cobra.Command{
		Use:   "learn [description]",
		Short: "Learn a trusted rule from a user correction",
		Long: `Learn extracts a pattern from the corrected transaction's description and
creates a fully trusted rule targeting the corrected category. If a rule
for the pattern already exists it is retargeted and confirmed instead.`,
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

			rule, err := engine.LearnFromUser(cmd.Context(), strings.Join(args, " "), category, family, ruleScope, accountFlag(account))
			if err != nil {
				return fmt.Errorf("failed to learn rule: %w", err)
			}

			fmt.Println(cli.SuccessStyle.Render(fmt.Sprintf("✓ Learned rule #%d: %q → %s", rule.ID, rule.Pattern, rule.Category)))
			return nil
		},
	}

	cmd.Flags().StringVar(&family, "family", "", "family the rule belongs to")
	cmd.Flags().StringVar(&category, "category", "", "corrected category")
	cmd.Flags().StringVar(&scope, "scope", "global", "matching scope")
	cmd.Flags().StringVar(&account, "account", "", "restrict the rule to one account")
	_ = cmd.MarkFlagRequired("family")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}

func suggestCmd() *cobra.Command {
	var (
		family     string
		category   string
		scope      string
		account    string
		confidence float64
	)

	cmd := &cobra.Command{
		Use:   "suggest [description]",
		Short: "Record an AI category suggestion as a candidate rule",
		Long: `Suggest is the entry point the AI collaborator calls per proposed
(description, category) pair. The extracted pattern becomes a candidate
rule that must earn promotion through unchallenged matches.`,
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

			rule, err := engine.CreateFromAICategorization(cmd.Context(), strings.Join(args, " "), category, family, confidence, ruleScope, accountFlag(account))
			if err != nil {
				return fmt.Errorf("failed to record suggestion: %w", err)
			}
			if rule == nil {
				common.LogWarn("ai suggestion rejected", common.Fields{
					"family":   family,
					"category": category,
				})
				fmt.Println(cli.WarningStyle.Render("Suggestion rejected: no usable pattern, or the pattern is owned by a trusted rule"))
				return nil
			}

			fmt.Println(cli.SuccessStyle.Render(fmt.Sprintf("✓ Candidate rule #%d: %q → %s (%.0f%% confidence)",
				rule.ID, rule.Pattern, rule.Category, rule.Confidence*100)))
			return nil
		},
	}

	cmd.Flags().StringVar(&family, "family", "", "family the rule belongs to")
	cmd.Flags().StringVar(&category, "category", "", "suggested category")
	cmd.Flags().StringVar(&scope, "scope", "global", "matching scope")
	cmd.Flags().StringVar(&account, "account", "", "restrict the rule to one account")
	cmd.Flags().Float64Var(&confidence, "confidence", 0, "seed confidence (default 0.65)")
	_ = cmd.MarkFlagRequired("family")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}
