package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newFixCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "fix",
		Short: "Re-apply the last applied version map",
		Long:  "Repository events (pull, hard reset) can disturb projected links and\nskip-worktree flags. fix re-materializes them from the recorded snapshot;\nagainst an undisturbed workspace it changes nothing.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newController()
			if err != nil {
				return err
			}
			res, err := c.Fix(force)
			if err != nil {
				return err
			}
			fmt.Printf("Re-applied map of %s: %d entries\n", res.Map.Root, len(res.Entries))
			return reportErrors(res.Errors)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite drifted store worktrees and owned links")
	return cmd
}
