package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/nestdoc/store"
)

// Document is the generic payload type the CLI reads and writes.
type Document = map[string]any

// getResult is one line of 'get' output. Document is null when absent.
type getResult struct {
	ID       string    `json:"id"`
	Document *Document `json:"document"`
}

func newGetCmd(a *app) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "get <ID>...",
		Short: "Print documents as JSON",
		Long:  "Fetch documents by id and print one JSON object per line, in argument order.",
		Example: `  nestdoc get u1
  nestdoc get u1 u2 u3 --concurrency 2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if concurrency < 1 {
				return fmt.Errorf("--concurrency must be at least 1, got %d", concurrency)
			}

			c, err := a.client(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			results := make([]getResult, len(args))
			g, gctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(concurrency)
			for i, id := range args {
				g.Go(func() error {
					doc, err := store.Read[Document](gctx, c, id)
					if err != nil {
						return fmt.Errorf("get %s: %w", id, err)
					}
					results[i] = getResult{ID: id, Document: doc}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, r := range results {
				if err := enc.Encode(r); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 8, "Maximum parallel reads")

	return cmd
}
