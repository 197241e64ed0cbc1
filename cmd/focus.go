package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newFocusCmd() *cobra.Command {
	var (
		force  bool
		strict bool
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "focus <root>",
		Short: "Constrain the workspace to one root's resolved versions",
		Long:  "Resolves a fresh version map for the cone of dependencies reachable from\nthe named root project and applies it: store worktrees move to their\nresolved revisions, links and gitlink suppression follow. The root may be\ngiven as a registry key, a workspace link name, or a unique last segment.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newController()
			if err != nil {
				return err
			}
			if dryRun {
				m, entries, errs, err := c.Preview(args[0])
				if err != nil {
					return err
				}
				fmt.Print(m.Render())
				printConflicts(m.Conflicts)
				for _, entry := range entries {
					fmt.Printf("  %s -> %s\n", entry.Path, entry.Target)
				}
				return reportErrors(errs)
			}
			res, err := c.Focus(args[0], force, strict)
			if err != nil {
				return err
			}
			fmt.Printf("Focused on %s: %d repositories, %d conflict(s)\n",
				res.Map.Root, len(res.Map.Revisions), len(res.Map.Conflicts))
			printConflicts(res.Map.Conflicts)
			return reportErrors(res.Errors)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite local drift in store worktrees and owned links")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail on divergent pins instead of auto-resolving")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "print the resolved map and planned links without applying")
	return cmd
}

func newDefocusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "defocus",
		Short: "Release the workspace back to freely-floating HEADs",
		Long:  "Clears the focus state. Working trees and links stay exactly where they\nare; focus only constrains projection, it does not pin repositories.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newController()
			if err != nil {
				return err
			}
			if err := c.Defocus(); err != nil {
				return err
			}
			fmt.Println("Defocused; repositories float freely")
			return nil
		},
	}
}
