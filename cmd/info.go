package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmrepo/mmr/internal/workspace"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the workspace layout paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := findWorkspace()
			if err != nil {
				return err
			}
			fmt.Printf("top:      %s\n", ws.Root())
			fmt.Printf("metadata: %s\n", ws.MetaPath())
			fmt.Printf("universe: %s\n", ws.UniversePath())
			fmt.Printf("all:      %s\n", ws.AllPath())
			return nil
		},
	}
}

func newTopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "top",
		Short: "Print the workspace root directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := findWorkspace()
			if err != nil {
				return err
			}
			fmt.Println(ws.Root())
			return nil
		},
	}
}

func findWorkspace() (*workspace.Workspace, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return workspace.Find(cwd)
}
