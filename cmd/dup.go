package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmrepo/mmr/internal/git"
	"github.com/mmrepo/mmr/internal/workspace"
)

func newDupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dup <dest-dir>",
		Short: "Duplicate the workspace, sharing the store's objects",
		Long:  "Initializes a second workspace whose store entries are shared clones of\nthis one: history rides on alternates instead of being copied, and origin\nstays pointed at the canonical remotes. The new workspace starts free.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			src, err := workspace.Find(cwd)
			if err != nil {
				return err
			}
			dest, err := workspace.Dup(src, args[0], git.NewSystem())
			if err != nil {
				return err
			}
			fmt.Printf("Duplicated %s to %s\n", src.Root(), dest.Root())
			return nil
		},
	}
}
