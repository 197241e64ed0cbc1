// Package cmd is the mmr command-line front end: cobra verbs over the focus
// controller, plus the mapping from core error kinds to process exit codes.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmrepo/mmr/internal/buildinfo"
	"github.com/mmrepo/mmr/internal/discover"
	"github.com/mmrepo/mmr/internal/focus"
	"github.com/mmrepo/mmr/internal/git"
	"github.com/mmrepo/mmr/internal/graph"
	"github.com/mmrepo/mmr/internal/project"
	"github.com/mmrepo/mmr/internal/store"
	"github.com/mmrepo/mmr/internal/workspace"
)

// Exit codes per error kind. A command that made partial progress but
// collected errors still exits nonzero with the dominant kind.
const (
	exitOK         = 0
	exitGeneric    = 1
	exitStore      = 2
	exitDiscovery  = 3
	exitResolution = 4
	exitWorkspace  = 5
	exitLock       = 6
)

var (
	verbose bool
	jobs    int
)

var rootCmd = &cobra.Command{
	Use:           "mmr",
	Short:         "mmr manages a graph of git repositories with shared dependencies",
	Long:          "mmr replaces native submodule tracking with a deduplicated store of clones\nand symlinked working trees, resolved to one consistent revision per\nrepository relative to a chosen focus root.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
	Version: buildinfo.VersionWithTags(),
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().IntVarP(&jobs, "jobs", "j", project.DefaultJobs, "concurrent store fetches")

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newCheckoutCmd())
	rootCmd.AddCommand(newFocusCmd())
	rootCmd.AddCommand(newDefocusCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newFixCmd())
	rootCmd.AddCommand(newDupCmd())
	rootCmd.AddCommand(newInfoCmd())
	rootCmd.AddCommand(newTopCmd())
	rootCmd.AddCommand(newWatchCmd())
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "mmr: %v\n", err)
		return exitCodeFor(err)
	}
	return exitOK
}

// exitCodeFor maps an error to its kind's exit code.
func exitCodeFor(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	var (
		storeErr    *store.UnavailableError
		discErr     *discover.Error
		conflictErr *graph.ConflictError
		wsErr       *project.ConflictError
		lockErr     *workspace.LockError
	)
	switch {
	case errors.As(err, &lockErr):
		return exitLock
	case errors.As(err, &conflictErr):
		return exitResolution
	case errors.As(err, &storeErr):
		return exitStore
	case errors.As(err, &wsErr):
		return exitWorkspace
	case errors.As(err, &discErr):
		return exitDiscovery
	default:
		return exitGeneric
	}
}

// dominantCode folds a collected error report into one exit code, preferring
// the most operationally severe kind present.
func dominantCode(errs []error) int {
	code := exitOK
	rank := func(c int) int {
		switch c {
		case exitLock:
			return 5
		case exitStore:
			return 4
		case exitWorkspace:
			return 3
		case exitResolution:
			return 2
		case exitDiscovery:
			return 1
		default:
			return 0
		}
	}
	for _, err := range errs {
		if c := exitCodeFor(err); rank(c) > rank(code) || code == exitOK {
			code = c
		}
	}
	return code
}

// exitError carries a precomputed exit code through cobra's error return.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// reportErrors prints a collected per-entity error report and converts it
// into a single nonzero-exit error. Partial progress already happened; the
// command still exits informatively.
func reportErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	for _, err := range errs {
		fmt.Fprintf(os.Stderr, "  !! %v\n", err)
	}
	return &exitError{
		code: dominantCode(errs),
		msg:  fmt.Sprintf("completed with %d error(s)", len(errs)),
	}
}

// newController finds the enclosing workspace and wires the controller over
// the system git backend.
func newController() (*focus.Controller, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	ws, err := workspace.Find(cwd)
	if err != nil {
		return nil, err
	}
	return focus.New(ws, git.NewSystem(), jobs), nil
}

func printConflicts(conflicts []graph.Conflict) {
	for _, c := range conflicts {
		fmt.Printf("CONFLICT %s resolved to %s:\n", c.Key, shortRev(c.Chosen))
		for _, d := range c.Demands {
			fmt.Printf("  %s at depth %d", shortRev(d.Revision), d.Depth)
			if len(d.Edges) > 0 {
				fmt.Printf(" via %s:%s", d.Edges[0].Parent.Key, d.Edges[0].Mount)
			}
			fmt.Println()
		}
	}
}

func shortRev(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
