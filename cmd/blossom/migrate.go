package main

import (
	"fmt"

	"github.com/ACT3ai/jfk-blossom-server/pkg/index"
	"github.com/spf13/cobra"
)

func newMigrateCmd(g *globalFlags) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run or inspect index schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			idxCfg := index.Config{Path: cfg.Index.Path}

			if dryRun {
				plan, err := index.Plan(cmd.Context(), idxCfg)
				if err != nil {
					return fmt.Errorf("inspect migrations: %w", err)
				}
				if g.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), plan)
				}
				printPlan(cmd, plan)
				return nil
			}

			// Opening the index applies pending migrations, as serve does.
			idx, err := index.Open(cmd.Context(), idxCfg)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			defer idx.Close()

			plan, err := idx.MigrationPlan(cmd.Context())
			if err != nil {
				return err
			}
			if g.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), plan)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied successfully (schema version %d).\n", plan.CurrentVersion)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show pending migrations without applying")
	return cmd
}

func printPlan(cmd *cobra.Command, plan *index.MigrationStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Current version: %d\n", plan.CurrentVersion)
	fmt.Fprintf(out, "Available version: %d\n", plan.AvailableVersion)
	if len(plan.Pending) == 0 {
		fmt.Fprintln(out, "No pending migrations.")
		return
	}
	fmt.Fprintf(out, "Pending migrations: %d\n", len(plan.Pending))
	for _, m := range plan.Pending {
		fmt.Fprintf(out, "  %d: %s\n", m.Version, m.Description)
	}
}
