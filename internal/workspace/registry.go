package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/mmrepo/mmr/internal/graph"
	"github.com/mmrepo/mmr/internal/project"
	"github.com/mmrepo/mmr/internal/store"
)

// Tree is one registered repository: its canonical key, the remote URL it was
// first seen under, and for root projects the name of the workspace link.
type Tree struct {
	Key  store.Key `json:"key"`
	URL  string    `json:"url"`
	Link string    `json:"link,omitempty"`
	Root bool      `json:"root,omitempty"`
}

// Registry is the persisted map of known trees.
type Registry struct {
	Trees map[store.Key]Tree `json:"trees"`
}

// Lookup resolves a user-supplied spec to a registered tree: an exact key, a
// root link name, or the last segment of a key when unambiguous.
func (r *Registry) Lookup(spec string) (Tree, error) {
	if t, ok := r.Trees[store.Key(spec)]; ok {
		return t, nil
	}
	var matches []Tree
	for _, t := range r.Trees {
		if t.Link == spec || t.Key.Base() == spec {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return Tree{}, fmt.Errorf("tree %q is not registered", spec)
	case 1:
		return matches[0], nil
	default:
		keys := make([]string, len(matches))
		for i, t := range matches {
			keys[i] = t.Key.String()
		}
		sort.Strings(keys)
		return Tree{}, fmt.Errorf("tree %q is ambiguous: matches %v", spec, keys)
	}
}

// Roots returns the registered root projects in key order.
func (r *Registry) Roots() []Tree {
	var roots []Tree
	for _, t := range r.Trees {
		if t.Root {
			roots = append(roots, t)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].Key < roots[j].Key })
	return roots
}

// FocusMode distinguishes a freely-floating workspace from one constrained
// by an applied version map.
type FocusMode string

const (
	// ModeFree means no focus constrains the workspace; per-repo HEADs float.
	ModeFree FocusMode = "free"
	// ModeFocused means the workspace matches an applied version map.
	ModeFocused FocusMode = "focused"
)

// State is the persisted focus state: the mode, the focused root when
// focused, and a snapshot of the last applied version map plus the entries it
// projected, kept for status, drift detection, and fix.
type State struct {
	Mode      FocusMode         `json:"mode"`
	FocusRoot store.Key         `json:"focus_root,omitempty"`
	Applied   *graph.VersionMap `json:"applied,omitempty"`
	Entries   []project.Entry   `json:"entries,omitempty"`
	AppliedAt time.Time         `json:"applied_at,omitzero"`
}

// LoadRegistry reads the registry, returning an empty one when the file does
// not exist yet.
func (w *Workspace) LoadRegistry() (*Registry, error) {
	r := &Registry{Trees: map[store.Key]Tree{}}
	if err := readJSON(w.registryPath(), r); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	if r.Trees == nil {
		r.Trees = map[store.Key]Tree{}
	}
	return r, nil
}

// SaveRegistry persists the registry atomically.
func (w *Workspace) SaveRegistry(r *Registry) error {
	if err := writeJSON(w.registryPath(), r); err != nil {
		return fmt.Errorf("save registry: %w", err)
	}
	return nil
}

// LoadState reads the focus state, defaulting to Free when never written.
func (w *Workspace) LoadState() (*State, error) {
	s := &State{Mode: ModeFree}
	if err := readJSON(w.statePath(), s); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if s.Mode == "" {
		s.Mode = ModeFree
	}
	return s, nil
}

// SaveState persists the focus state atomically. The state on disk always
// reflects what was actually projected; it is written only after projection
// completed.
func (w *Workspace) SaveState(s *State) error {
	if err := writeJSON(w.statePath(), s); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// writeJSON persists via tmp+rename so a crash leaves the old file intact.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
