package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckoutCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "checkout <url> [local-name]",
		Short: "Check out a repository as a new root project",
		Long:  "Registers the repository as a root, clones it into the shared store, links\nit into the workspace, and projects its full dependency closure. Divergent\npins are auto-resolved and reported.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			localName := ""
			if len(args) == 2 {
				localName = args[1]
			}
			c, err := newController()
			if err != nil {
				return err
			}
			res, err := c.Checkout(args[0], localName, force)
			if err != nil {
				return err
			}
			fmt.Printf("Projected %d repositories from %s\n", len(res.Map.Revisions), res.Map.Root)
			printConflicts(res.Map.Conflicts)
			return reportErrors(res.Errors)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite drifted store worktrees and owned links")
	return cmd
}
