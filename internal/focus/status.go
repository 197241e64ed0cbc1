package focus

import (
	"errors"
	"os"
	"sort"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/mmrepo/mmr/internal/graph"
	"github.com/mmrepo/mmr/internal/store"
	"github.com/mmrepo/mmr/internal/workspace"
)

// TreeStatus is one registered tree's current position: the commit its store
// worktree sits at, or the error that prevented reading it.
type TreeStatus struct {
	Tree workspace.Tree
	Head string
	Err  error
}

// Status is a read-only snapshot of the workspace: focus state, the retained
// conflicts from the last applied map, and the HEAD of every registered tree.
type Status struct {
	State *workspace.State
	Trees []TreeStatus
}

// Status inspects the workspace without taking the projection lock.
func (c *Controller) Status() (*Status, error) {
	state, err := c.ws.LoadState()
	if err != nil {
		return nil, err
	}
	registry, err := c.ws.LoadRegistry()
	if err != nil {
		return nil, err
	}
	s := &Status{State: state}
	for _, key := range sortedTreeKeys(registry) {
		tree := registry.Trees[key]
		entry := c.st.EntryFor(key, tree.URL)
		ts := TreeStatus{Tree: tree}
		if _, statErr := os.Stat(entry.Dir); statErr != nil {
			ts.Err = errors.New("not materialized")
		} else {
			ts.Head, ts.Err = c.st.Head(entry)
		}
		s.Trees = append(s.Trees, ts)
	}
	return s, nil
}

// Drift re-discovers and re-resolves the focused span and returns a unified
// diff between the applied version map and the fresh one. An empty diff means
// the workspace still matches what was projected.
func (c *Controller) Drift() (string, error) {
	state, err := c.ws.LoadState()
	if err != nil {
		return "", err
	}
	if state.Applied == nil {
		return "", errors.New("nothing applied yet; no map to diff against")
	}
	registry, err := c.ws.LoadRegistry()
	if err != nil {
		return "", err
	}
	for key, tree := range registry.Trees {
		c.disc.RegisterURL(key, tree.URL)
	}
	g, _ := c.buildGraph(registry)
	fresh, err := graph.Resolve(g, state.Applied.Root)
	if err != nil {
		return "", err
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(state.Applied.Render()),
		B:        difflib.SplitLines(fresh.Render()),
		FromFile: "applied",
		ToFile:   "fresh",
		Context:  3,
	})
}

func sortedTreeKeys(r *workspace.Registry) []store.Key {
	keys := make([]store.Key, 0, len(r.Trees))
	for k := range r.Trees {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
