package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/ACT3ai/jfk-blossom-server/pkg/index"
	"github.com/spf13/cobra"
)

func newOwnersCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "owners",
		Short: "Inspect and manage blob ownership",
	}

	cmd.AddCommand(
		newOwnersListCmd(g),
		newOwnersBlobsCmd(g),
		newOwnersAddCmd(g),
		newOwnersRemoveCmd(g),
	)
	return cmd
}

func newOwnersListCmd(g *globalFlags) *cobra.Command {
	var lf listFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List owners with the number of blobs each holds",
		Long:  `List distinct owner pubkeys. The only filter and sort column is pubkey.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := lf.query()
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), g, func(a *app) error {
				page, err := a.index.ListOwnerSummaries(cmd.Context(), q)
				if err != nil {
					return err
				}
				if g.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), page)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "PUBKEY\tBLOBS")
				for _, item := range page.Items {
					fmt.Fprintf(w, "%s\t%d\n", item.Pubkey, item.Blobs.Cardinality())
				}
				if err := w.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d of %d owners\n", len(page.Items), page.Total)
				return nil
			})
		},
	}

	lf.register(cmd)
	return cmd
}

func newOwnersBlobsCmd(g *globalFlags) *cobra.Command {
	var since, until int64

	cmd := &cobra.Command{
		Use:   "blobs <pubkey>",
		Short: "List the blobs owned by a pubkey",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts index.OwnerBlobsOptions
			if cmd.Flags().Changed("since") {
				opts.Since = &since
			}
			if cmd.Flags().Changed("until") {
				opts.Until = &until
			}

			return withApp(cmd.Context(), g, func(a *app) error {
				blobs, err := a.index.GetOwnerBlobs(cmd.Context(), args[0], opts)
				if err != nil {
					return err
				}
				if g.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), blobs)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "SHA256\tTYPE\tSIZE\tUPLOADED")
				for _, b := range blobs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.SHA256, orDash(b.Type), formatSize(b.Size), formatTime(b.Uploaded))
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().Int64Var(&since, "since", 0, "only blobs uploaded at or after this unix time")
	cmd.Flags().Int64Var(&until, "until", 0, "only blobs uploaded at or before this unix time")
	return cmd
}

func newOwnersAddCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "add <sha256> <pubkey>",
		Short: "Record a pubkey as an owner of a blob",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash := strings.ToLower(args[0])

			return withApp(cmd.Context(), g, func(a *app) error {
				has, err := a.index.HasBlob(cmd.Context(), hash)
				if err != nil {
					return err
				}
				if !has {
					return fmt.Errorf("blob %s not found", hash)
				}

				owned, err := a.index.HasOwner(cmd.Context(), hash, args[1])
				if err != nil {
					return err
				}
				if owned {
					fmt.Fprintf(cmd.OutOrStdout(), "%s already owns %s\n", args[1], hash)
					return nil
				}
				return a.index.AddOwner(cmd.Context(), hash, args[1])
			})
		},
	}
}

func newOwnersRemoveCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <sha256> <pubkey>",
		Short: "Remove a pubkey's ownership of a blob",
		Long: `Remove a pubkey's ownership of a blob. The blob itself is kept; with
remove_when_no_owners set the next sweep removes blobs left without owners.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash := strings.ToLower(args[0])

			return withApp(cmd.Context(), g, func(a *app) error {
				removed, err := a.index.RemoveOwner(cmd.Context(), hash, args[1])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("%s does not own %s", args[1], hash)
				}
				return nil
			})
		},
	}
}
