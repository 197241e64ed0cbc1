package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/mmrepo/mmr/internal/debounce"
	"github.com/mmrepo/mmr/internal/focus"
)

const watchDebounceDelay = 350 * time.Millisecond

func newWatchCmd() *cobra.Command {
	var fix bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the workspace for drifted projections",
		Long:  "Monitors the workspace root and link tree; whenever projected links go\nmissing or point elsewhere, the drift is logged, and with --fix the last\napplied map is re-applied. Runs until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newController()
			if err != nil {
				return err
			}
			return runWatch(c, fix)
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "re-apply the last map when drift is detected")
	return cmd
}

func runWatch(c *focus.Controller, fix bool) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer watcher.Close()

	ws := c.Workspace()
	for _, path := range []string{ws.Root(), ws.AllPath()} {
		slog.Debug("adding path to FS watcher", slog.String("path", path))
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
	}

	verify := debounce.New(watchDebounceDelay, func() {
		drifted, err := c.Verify()
		if err != nil {
			slog.Error("verify projections", slog.Any("error", err))
			return
		}
		if len(drifted) == 0 {
			return
		}
		for _, entry := range drifted {
			slog.Warn("projection drifted",
				slog.String("path", entry.Path),
				slog.String("key", entry.Key.String()),
			)
		}
		if !fix {
			return
		}
		if _, err := c.Fix(false); err != nil {
			slog.Error("fix after drift", slog.Any("error", err))
			return
		}
		slog.Info("re-applied last map", slog.Int("drifted", len(drifted)))
	})
	defer verify.Stop()

	interrupted := make(chan os.Signal, 1)
	signal.Notify(interrupted, os.Interrupt, syscall.SIGTERM)

	fmt.Printf("Watching %s (interrupt to stop)\n", ws.Root())
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if ignoreWatchPath(ev.Name) {
				continue
			}
			slog.Debug("fsnotify event",
				slog.String("op", ev.Op.String()),
				slog.String("path", ev.Name),
			)
			verify.Trigger()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("fsnotify error", slog.Any("error", err))
		case <-interrupted:
			return nil
		}
	}
}

func ignoreWatchPath(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".mmr-stage-") {
		return true
	}
	return strings.ToLower(filepath.Ext(name)) == ".lock" || base == "lock"
}
