package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPruneCmd(g *globalFlags) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Run one retention sweep and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), g, func(a *app) error {
				s, err := a.sweeper(dryRun, nil)
				if err != nil {
					return err
				}

				stats, err := s.Prune(cmd.Context())
				if err != nil {
					return fmt.Errorf("prune: %w", err)
				}

				if g.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), stats)
				}
				fmt.Fprintln(cmd.OutOrStdout(), stats.Summary())
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be removed without removing anything")
	return cmd
}
