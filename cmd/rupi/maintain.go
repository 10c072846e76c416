package main

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/pkamalssn/rupi-sub000/internal/cli"
	"github.com/pkamalssn/rupi-sub000/internal/common"
)

func maintainCmd() *cobra.Command {
	var family string

	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Enforce capacity limits and clean up quarantined rules",
		Long: `Maintain runs capacity enforcement for each family: low-utility rules
beyond the per-scope, per-account and per-family ceilings are quarantined,
and quarantined rules past their retention window are deleted. Safe to run
on a schedule or after bulk rule creation.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, engine, err := openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()

			families := []string{family}
			if family == "" {
				families, err = store.ListFamilies(ctx)
				if err != nil {
					return fmt.Errorf("failed to list families: %w", err)
				}
			}
			if len(families) == 0 {
				fmt.Println(cli.SubtleStyle.Render("Nothing to maintain."))
				return nil
			}

			bar := progressbar.NewOptions(len(families),
				progressbar.OptionSetDescription("Enforcing limits"),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)

			var quarantined int
			var deleted int64
			for _, f := range families {
				report, err := engine.EnforceLimits(ctx, f)
				if err != nil {
					common.LogError(err, "capacity enforcement failed", common.Fields{"family": f})
					return fmt.Errorf("failed to enforce limits for family %s: %w", f, err)
				}
				quarantined += report.Quarantined
				deleted += report.Deleted
				_ = bar.Add(1)
			}

			common.LogInfo("maintenance complete", common.Fields{
				"families":    len(families),
				"quarantined": quarantined,
				"deleted":     deleted,
			})

			fmt.Println(cli.SuccessStyle.Render(fmt.Sprintf(
				"✓ Maintenance complete: %d families, %d rules quarantined, %d quarantined rules deleted",
				len(families), quarantined, deleted)))
			return nil
		},
	}

	cmd.Flags().StringVar(&family, "family", "", "maintain a single family (default: all)")

	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, _, err := openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Println(cli.SuccessStyle.Render("✓ Database is up to date"))
			return nil
		},
	}
}
