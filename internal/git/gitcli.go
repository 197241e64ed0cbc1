package git

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// System is the production Backend. Object reads go through go-git (see
// native.go); everything that talks to the network or mutates a working tree
// shells out to the git executable.
type System struct{}

func NewSystem() *System {
	return &System{}
}

func (s *System) Clone(url, dest string) error {
	if _, err := os.Lstat(dest); err == nil {
		return fmt.Errorf("clone %s: destination %s already exists", url, dest)
	}
	_, err := s.runGitCommand("", []string{"clone", url, dest}, false, "git clone")
	return err
}

func (s *System) CloneShared(src, dest string) error {
	if _, err := os.Lstat(dest); err == nil {
		return fmt.Errorf("shared clone %s: destination %s already exists", src, dest)
	}
	_, err := s.runGitCommand("", []string{"clone", "--shared", src, dest}, false, "git clone --shared")
	return err
}

func (s *System) Fetch(dir string) error {
	_, err := s.runGitCommand(dir, []string{"fetch"}, false, "git fetch")
	return err
}

func (s *System) Checkout(dir, revision string, force bool) error {
	args := []string{"checkout"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, "--detach", revision)
	_, err := s.runGitCommand(dir, args, false, "git checkout")
	return err
}

func (s *System) SetSkipWorktree(dir, path string, skip bool) error {
	flag := "--skip-worktree"
	if !skip {
		flag = "--no-skip-worktree"
	}
	_, err := s.runGitCommand(dir, []string{"update-index", flag, "--", path}, false, "git update-index")
	return err
}

func (s *System) SetRemoteURL(dir, url string) error {
	_, err := s.runGitCommand(dir, []string{"remote", "set-url", "origin", url}, false, "git remote set-url")
	return err
}

func (s *System) IsDirty(dir string) (bool, error) {
	out, err := s.runGitCommand(dir, []string{"status", "--porcelain"}, false, "git status")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

func (s *System) runGitCommand(dir string, args []string, allowExit1 bool, context string) (string, error) {
	cmdArgs := args
	if dir != "" {
		cmdArgs = append([]string{"-C", dir}, args...)
	}
	slog.Debug("exec git", slog.String("args", strings.Join(cmdArgs, " ")))
	cmd := exec.Command("git", cmdArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if allowExit1 && errors.As(err, &exitErr) && exitErr.ExitCode() == 1 && stderr.Len() == 0 {
			// treat as success for subcommands that signal differences via exit code 1
		} else {
			if stderr.Len() > 0 {
				return "", fmt.Errorf("%s: %v: %s", context, err, strings.TrimSpace(stderr.String()))
			}
			return "", fmt.Errorf("%s: %w", context, err)
		}
	}
	return stdout.String(), nil
}
