package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/ACT3ai/jfk-blossom-server/internal/logger"
	"github.com/ACT3ai/jfk-blossom-server/pkg/backend"
	"github.com/ACT3ai/jfk-blossom-server/pkg/storage"
	"github.com/spf13/cobra"
)

func newBlobsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blobs",
		Short: "Inspect and manage stored blobs",
	}

	cmd.AddCommand(
		newBlobsListCmd(g),
		newBlobsAddCmd(g),
		newBlobsGetCmd(g),
		newBlobsDeleteCmd(g),
	)
	return cmd
}

func newBlobsListCmd(g *globalFlags) *cobra.Command {
	var lf listFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List blobs with their owners",
		Long: `List blobs from the index. Filter and sort columns: sha256, type, size,
uploaded. The search matches sha256 and type.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := lf.query()
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), g, func(a *app) error {
				page, err := a.index.ListBlobs(cmd.Context(), q)
				if err != nil {
					return err
				}
				if g.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), page)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "SHA256\tTYPE\tSIZE\tUPLOADED\tOWNERS")
				for _, item := range page.Items {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
						item.SHA256, orDash(item.Type), formatSize(item.Size), formatTime(item.Uploaded), item.Owners.Cardinality())
				}
				if err := w.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d of %d blobs\n", len(page.Items), page.Total)
				return nil
			})
		},
	}

	lf.register(cmd)
	return cmd
}

func newBlobsAddCmd(g *globalFlags) *cobra.Command {
	var (
		blobType string
		owners   []string
	)

	cmd := &cobra.Command{
		Use:   "add <path|->",
		Short: "Store a file (or stdin with -) and record its owners",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), g, func(a *app) error {
				up, err := stageArg(args[0], cmd.InOrStdin())
				if err != nil {
					return err
				}

				blob, err := a.coord.AddFromUpload(cmd.Context(), *up, blobType)
				if err != nil {
					return err
				}
				for _, pk := range owners {
					if err := a.index.AddOwner(cmd.Context(), blob.SHA256, pk); err != nil {
						return fmt.Errorf("failed to add owner %s: %w", pk, err)
					}
				}

				if g.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), blob)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", blob.SHA256, orDash(blob.Type), formatSize(blob.Size))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&blobType, "type", "", "MIME type to record instead of the detected one")
	cmd.Flags().StringArrayVar(&owners, "owner", nil, "owner pubkey (repeatable)")
	return cmd
}

// stageArg stages a path argument, or stdin when arg is "-". Stdin is
// spooled to a temporary file so the hash is known before the commit.
func stageArg(arg string, stdin io.Reader) (*storage.Upload, error) {
	if arg != "-" {
		return storage.StageFile(arg)
	}
	return storage.StageReader(os.TempDir(), stdin)
}

func newBlobsGetCmd(g *globalFlags) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "get <sha256>",
		Short: "Write a blob's bytes to stdout or a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash := strings.ToLower(args[0])

			return withApp(cmd.Context(), g, func(a *app) error {
				ptr, err := a.coord.SearchStorage(cmd.Context(), hash)
				if errors.Is(err, storage.ErrNotFound) {
					return fmt.Errorf("blob %s not found", hash)
				}
				if err != nil {
					return err
				}

				if url, ok := a.coord.GetStorageRedirect(ptr); ok {
					logger.Info("Blob is publicly served at %s", url)
				}

				rc, err := a.coord.ReadStoragePointer(cmd.Context(), ptr)
				if err != nil {
					return err
				}
				defer rc.Close()

				w := cmd.OutOrStdout()
				if output != "" {
					f, err := os.Create(output)
					if err != nil {
						return fmt.Errorf("failed to create %s: %w", output, err)
					}
					defer f.Close()
					w = f
				}

				n, err := io.Copy(w, rc)
				if err != nil {
					return fmt.Errorf("failed to read blob: %w", err)
				}
				if output != "" {
					logger.Info("Wrote %s (%s, %s) to %s", hash, orDash(ptr.Type), formatSize(n), filepath.Clean(output))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newBlobsDeleteCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <sha256>...",
		Short: "Delete blobs from the index and the backend",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), g, func(a *app) error {
				var failed int
				for _, arg := range args {
					hash := strings.ToLower(arg)
					if err := backend.ValidateHash(hash); err != nil {
						return err
					}

					existed, err := a.coord.Delete(cmd.Context(), hash)
					switch {
					case err != nil:
						logger.Error("Failed to delete %s: %v", hash, err)
						failed++
					case existed:
						fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", hash)
					default:
						fmt.Fprintf(cmd.OutOrStdout(), "not found %s\n", hash)
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d deletions failed", failed, len(args))
				}
				return nil
			})
		},
	}
}
