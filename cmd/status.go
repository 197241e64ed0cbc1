package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/mmrepo/mmr/internal/focus"
	"github.com/mmrepo/mmr/internal/workspace"
)

func newStatusCmd() *cobra.Command {
	var (
		format string
		drift  bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show focus state, conflicts, and per-tree positions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newController()
			if err != nil {
				return err
			}
			s, err := c.Status()
			if err != nil {
				return err
			}
			if drift {
				diff, err := c.Drift()
				if err != nil {
					return err
				}
				if diff == "" {
					fmt.Println("No drift: applied map matches a fresh resolution")
					return nil
				}
				fmt.Print(diff)
				return nil
			}
			switch format {
			case "json":
				return statusJSON(cmd, s)
			case "table":
				statusTable(cmd, s)
				return nil
			default:
				return fmt.Errorf("invalid format: %s (valid values: table, json)", format)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	cmd.Flags().BoolVar(&drift, "drift", false, "diff the applied map against a fresh resolution")
	return cmd
}

type statusOutput struct {
	Mode      string             `json:"mode"`
	FocusRoot string             `json:"focus_root,omitempty"`
	AppliedAt string             `json:"applied_at,omitempty"`
	Conflicts []statusConflict   `json:"conflicts,omitempty"`
	Trees     []statusTreeOutput `json:"trees"`
}

type statusConflict struct {
	Key    string   `json:"key"`
	Chosen string   `json:"chosen"`
	Others []string `json:"others"`
}

type statusTreeOutput struct {
	Key  string `json:"key"`
	Head string `json:"head,omitempty"`
	Root bool   `json:"root,omitempty"`
	Link string `json:"link,omitempty"`
	Err  string `json:"error,omitempty"`
}

func statusJSON(cmd *cobra.Command, s *focus.Status) error {
	out := statusOutput{Mode: string(s.State.Mode)}
	if s.State.Mode == workspace.ModeFocused {
		out.FocusRoot = s.State.FocusRoot.String()
	}
	if !s.State.AppliedAt.IsZero() {
		out.AppliedAt = s.State.AppliedAt.Format(time.RFC3339)
	}
	if s.State.Applied != nil {
		for _, c := range s.State.Applied.Conflicts {
			sc := statusConflict{Key: c.Key.String(), Chosen: c.Chosen}
			for _, d := range c.Demands {
				if d.Revision != c.Chosen {
					sc.Others = append(sc.Others, d.Revision)
				}
			}
			out.Conflicts = append(out.Conflicts, sc)
		}
	}
	for _, ts := range s.Trees {
		item := statusTreeOutput{
			Key:  ts.Tree.Key.String(),
			Head: ts.Head,
			Root: ts.Tree.Root,
			Link: ts.Tree.Link,
		}
		if ts.Err != nil {
			item.Err = ts.Err.Error()
		}
		out.Trees = append(out.Trees, item)
	}
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func statusTable(cmd *cobra.Command, s *focus.Status) {
	switch s.State.Mode {
	case workspace.ModeFocused:
		fmt.Fprintf(cmd.OutOrStdout(), "Focused on %s", s.State.FocusRoot)
		if !s.State.AppliedAt.IsZero() {
			fmt.Fprintf(cmd.OutOrStdout(), " (applied %s)", s.State.AppliedAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Fprintln(cmd.OutOrStdout())
	default:
		fmt.Fprintln(cmd.OutOrStdout(), "Free: no focus applied")
	}
	if s.State.Applied != nil {
		printConflicts(s.State.Applied.Conflicts)
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Tree", "Head", "Role", "Link"})
	for _, ts := range s.Trees {
		head := shortRev(ts.Head)
		if ts.Err != nil {
			head = ts.Err.Error()
		}
		role := "dep"
		if ts.Tree.Root {
			role = "root"
		}
		t.AppendRow(table.Row{ts.Tree.Key.String(), head, role, ts.Tree.Link})
	}
	t.Render()
}
