package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <ID>...",
		Aliases: []string{"rm"},
		Short:   "Remove documents",
		Long:    "Remove documents by id. Removing a missing document is not an error.",
		Example: `  nestdoc delete u1 u2`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			for _, id := range args {
				if err := c.Delete(cmd.Context(), id); err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
			}
			return nil
		},
	}
}
