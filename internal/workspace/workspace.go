// Package workspace owns the on-disk layout of an mmr workspace: the hidden
// metadata directory, the universe holding one clone per canonical
// repository, the all/ link tree, and the JSON files recording the registry
// and the currently applied focus state.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// MetaDir is the hidden metadata directory marking a workspace root.
	MetaDir = ".mmrepo"
	// UniverseDir holds the store entries, keyed by canonical host/path.
	UniverseDir = "universe"
	// AllDir mirrors every store entry as a link under its canonical key,
	// so link names never collide.
	AllDir = "all"

	registryFile = "trees.json"
	stateFile    = "state.json"
	lockFile     = "lock"
)

// Workspace is an initialized workspace root.
type Workspace struct {
	root string
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string { return w.root }

// MetaPath returns the hidden metadata directory.
func (w *Workspace) MetaPath() string { return filepath.Join(w.root, MetaDir) }

// UniversePath returns the store directory.
func (w *Workspace) UniversePath() string {
	return filepath.Join(w.root, MetaDir, UniverseDir)
}

// AllPath returns the directory of per-key links.
func (w *Workspace) AllPath() string { return filepath.Join(w.root, AllDir) }

func (w *Workspace) registryPath() string { return filepath.Join(w.MetaPath(), registryFile) }
func (w *Workspace) statePath() string    { return filepath.Join(w.MetaPath(), stateFile) }
func (w *Workspace) lockPath() string     { return filepath.Join(w.MetaPath(), lockFile) }

// Init creates a new workspace at dir. Initializing inside an existing
// workspace is an error.
func Init(dir string) (*Workspace, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	if existing, err := Find(abs); err == nil {
		return nil, fmt.Errorf("cannot initialize: existing workspace at %s", existing.Root())
	}
	w := &Workspace{root: abs}
	if err := os.MkdirAll(w.UniversePath(), 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", w.UniversePath(), err)
	}
	if err := os.MkdirAll(w.AllPath(), 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", w.AllPath(), err)
	}
	return w, nil
}

// Find walks upward from dir until it finds an initialized workspace.
func Find(dir string) (*Workspace, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	for cur, prev := abs, ""; cur != prev; cur, prev = filepath.Dir(cur), cur {
		universe := filepath.Join(cur, MetaDir, UniverseDir)
		if info, err := os.Stat(universe); err == nil && info.IsDir() {
			return &Workspace{root: cur}, nil
		}
	}
	return nil, fmt.Errorf("no initialized workspace at or above %s", abs)
}
