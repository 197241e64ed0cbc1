package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmrepo/mmr/internal/workspace"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Initialize a new workspace",
		Long:  "Creates the hidden metadata directory and the universe that will hold one\nshared clone per repository. Initializing inside an existing workspace is an\nerror.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			} else if cwd, err := os.Getwd(); err == nil {
				dir = cwd
			}
			ws, err := workspace.Init(dir)
			if err != nil {
				return err
			}
			fmt.Printf("Initialized workspace at %s\n", ws.Root())
			return nil
		},
	}
}
