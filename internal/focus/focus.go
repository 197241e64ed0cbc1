// Package focus orchestrates discovery, resolution, and projection: it is
// the state machine that sets the workspace to match a resolved version map
// and releases it back to freely-floating per-repo HEADs.
package focus

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mmrepo/mmr/internal/discover"
	"github.com/mmrepo/mmr/internal/git"
	"github.com/mmrepo/mmr/internal/graph"
	"github.com/mmrepo/mmr/internal/project"
	"github.com/mmrepo/mmr/internal/store"
	"github.com/mmrepo/mmr/internal/workspace"
)

// Controller sequences resolver and projector against one workspace. All
// transitions are explicitly invoked; none happen on their own.
type Controller struct {
	ws   *workspace.Workspace
	st   *store.Store
	disc *discover.Discoverer
	proj *project.Projector
	jobs int
}

func New(ws *workspace.Workspace, backend git.Backend, jobs int) *Controller {
	st := store.New(ws.UniversePath(), backend)
	disc := discover.New(st, backend)
	return &Controller{
		ws:   ws,
		st:   st,
		disc: disc,
		proj: project.New(st, backend, disc.URL),
		jobs: jobs,
	}
}

// Workspace returns the workspace the controller operates on.
func (c *Controller) Workspace() *workspace.Workspace { return c.ws }

// Result reports one resolution-and-projection pass. Errors holds the
// per-entity failures collected along the way; a non-empty list means partial
// progress, not a wasted pass.
type Result struct {
	Map     *graph.VersionMap
	Entries []project.Entry
	Errors  []error
}

// Checkout registers url as a new root project, clones it into the store,
// links it into the workspace, and projects the dependency closure reachable
// from it. Conflicts are auto-resolved and reported, never silently dropped.
func (c *Controller) Checkout(url, localName string, force bool) (*Result, error) {
	unlock, err := c.ws.Lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	entry, err := c.st.Resolve(url)
	if err != nil {
		return nil, err
	}
	if localName == "" {
		localName = entry.Key.Base()
	}
	registry, err := c.ws.LoadRegistry()
	if err != nil {
		return nil, err
	}
	registry.Trees[entry.Key] = workspace.Tree{
		Key:  entry.Key,
		URL:  url,
		Link: localName,
		Root: true,
	}
	if err := c.ws.SaveRegistry(registry); err != nil {
		return nil, err
	}
	if err := c.st.EnsureCloned(entry); err != nil {
		return nil, err
	}
	return c.project(registry, entry.Key, projectOptions{force: force})
}

// Focus resolves a fresh version map for the named root and applies it,
// transitioning the workspace to Focused(root, map). Focusing while already
// focused on another root replaces the state through the same sequence. With
// strict set, a non-empty conflict list aborts before projection. With force
// set, owned-but-drifted links and store worktrees are overwritten instead of
// failing.
func (c *Controller) Focus(spec string, force, strict bool) (*Result, error) {
	unlock, err := c.ws.Lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	registry, err := c.ws.LoadRegistry()
	if err != nil {
		return nil, err
	}
	tree, err := registry.Lookup(spec)
	if err != nil {
		return nil, err
	}
	if !tree.Root {
		return nil, fmt.Errorf("tree %s is a dependency, not a checked-out root", tree.Key)
	}
	return c.project(registry, tree.Key, projectOptions{force: force, strict: strict, focus: true})
}

// Preview resolves a fresh version map for the named root and plans the
// projection without mutating links, flags, or focus state. It takes no
// workspace lock; only the store may fetch while reading metadata.
func (c *Controller) Preview(spec string) (*graph.VersionMap, []project.Entry, []error, error) {
	registry, err := c.ws.LoadRegistry()
	if err != nil {
		return nil, nil, nil, err
	}
	tree, err := registry.Lookup(spec)
	if err != nil {
		return nil, nil, nil, err
	}
	g, errs := c.buildGraph(registry)
	m, err := graph.Resolve(g, tree.Key)
	if err != nil {
		return nil, nil, errs, err
	}
	entries := c.proj.Preview(m, g, c.links(registry, m))
	return m, entries, errs, nil
}

// Defocus transitions Focused -> Free. Working trees and links stay exactly
// where they are; focus only constrains projection, it does not pin repos.
func (c *Controller) Defocus() error {
	unlock, err := c.ws.Lock()
	if err != nil {
		return err
	}
	defer unlock()

	state, err := c.ws.LoadState()
	if err != nil {
		return err
	}
	if state.Mode == workspace.ModeFree {
		return nil
	}
	state.Mode = workspace.ModeFree
	state.FocusRoot = ""
	return c.ws.SaveState(state)
}

// Fix re-applies the last applied version map: store checkouts, links, and
// skip-worktree flags are re-materialized after repository events (pull,
// hard reset) disturbed them. Applying the same map twice is idempotent.
func (c *Controller) Fix(force bool) (*Result, error) {
	unlock, err := c.ws.Lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	state, err := c.ws.LoadState()
	if err != nil {
		return nil, err
	}
	if state.Applied == nil {
		return nil, errors.New("nothing applied yet; run checkout or focus first")
	}
	c.registerKnownURLs()
	errs := c.proj.Reapply(state.Applied, state.Entries, project.Options{Force: force, Jobs: c.jobs})
	state.AppliedAt = time.Now().UTC()
	if err := c.ws.SaveState(state); err != nil {
		return nil, err
	}
	return &Result{Map: state.Applied, Entries: state.Entries, Errors: errs}, nil
}

type projectOptions struct {
	force  bool
	strict bool
	focus  bool
}

// project runs one discover -> build -> resolve -> apply pass for root and
// persists the resulting state. The caller holds the workspace lock.
func (c *Controller) project(registry *workspace.Registry, root store.Key, opts projectOptions) (*Result, error) {
	g, errs := c.buildGraph(registry)
	m, err := graph.Resolve(g, root)
	if err != nil {
		return nil, err
	}
	if opts.strict && len(m.Conflicts) > 0 {
		return nil, &graph.ConflictError{Conflicts: m.Conflicts}
	}
	for _, conflict := range m.Conflicts {
		slog.Warn("divergent pins",
			slog.String("key", conflict.Key.String()),
			slog.String("chosen", conflict.Chosen),
			slog.Int("demands", len(conflict.Demands)),
		)
	}

	// Dependencies discovered along the way become registered trees, so
	// status, fix, and dup see them without re-walking the graph.
	registryDirty := false
	for _, key := range m.Keys() {
		if _, ok := registry.Trees[key]; ok {
			continue
		}
		url, ok := c.disc.URL(key)
		if !ok {
			continue
		}
		registry.Trees[key] = workspace.Tree{Key: key, URL: url}
		registryDirty = true
	}
	if registryDirty {
		if err := c.ws.SaveRegistry(registry); err != nil {
			return nil, err
		}
	}

	state, err := c.ws.LoadState()
	if err != nil {
		return nil, err
	}
	var stale []project.Entry
	if state.Applied != nil && state.Applied.Root == root {
		stale = state.Entries
	}
	entries, applyErrs := c.proj.Apply(m, g, project.Options{
		Force: opts.force,
		Jobs:  c.jobs,
		Links: c.links(registry, m),
		Stale: stale,
	})
	errs = append(errs, applyErrs...)

	if opts.focus {
		state.Mode = workspace.ModeFocused
		state.FocusRoot = root
	}
	state.Applied = m
	state.Entries = entries
	state.AppliedAt = time.Now().UTC()
	if err := c.ws.SaveState(state); err != nil {
		return nil, err
	}
	return &Result{Map: m, Entries: entries, Errors: errs}, nil
}

// buildGraph discovers the dependency multigraph across every registered
// root at its current store HEAD. The graph is rebuilt from scratch each
// pass; stale edges from earlier discoveries cannot survive.
func (c *Controller) buildGraph(registry *workspace.Registry) (*graph.Graph, []error) {
	var roots []graph.RevisionRef
	var errs []error
	for _, tree := range registry.Roots() {
		c.disc.RegisterURL(tree.Key, tree.URL)
		entry := c.st.EntryFor(tree.Key, tree.URL)
		if err := c.st.EnsureCloned(entry); err != nil {
			errs = append(errs, err)
			continue
		}
		head, err := c.st.Head(entry)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		roots = append(roots, graph.RevisionRef{Key: tree.Key, Revision: head})
	}
	g, buildErrs := graph.Build(roots, c.disc.Discover)
	return g, append(errs, buildErrs...)
}

// links plans the explicit top-level symlinks for a map: one per-key link
// under all/ mirroring the canonical key, plus the named workspace link of
// every root project the map covers.
func (c *Controller) links(registry *workspace.Registry, m *graph.VersionMap) []project.Link {
	var links []project.Link
	for _, key := range m.Keys() {
		links = append(links, project.Link{
			Path: filepath.Join(c.ws.AllPath(), key.RelPath()),
			Key:  key,
		})
		tree, ok := registry.Trees[key]
		if ok && tree.Root && tree.Link != "" {
			links = append(links, project.Link{
				Path: filepath.Join(c.ws.Root(), tree.Link),
				Key:  key,
			})
		}
	}
	return links
}

// registerKnownURLs reloads remote URLs from the registry so store entries
// touched by a reapply can re-clone and fetch.
func (c *Controller) registerKnownURLs() {
	registry, err := c.ws.LoadRegistry()
	if err != nil {
		slog.Warn("load registry", slog.Any("error", err))
		return
	}
	for key, tree := range registry.Trees {
		c.disc.RegisterURL(key, tree.URL)
	}
}

// Verify checks the projected entries against the filesystem and returns
// those whose link is missing or points somewhere else. Read-only.
func (c *Controller) Verify() ([]project.Entry, error) {
	state, err := c.ws.LoadState()
	if err != nil {
		return nil, err
	}
	var drifted []project.Entry
	for _, entry := range state.Entries {
		target, err := os.Readlink(entry.Path)
		if err != nil || target != entry.Target {
			drifted = append(drifted, entry)
		}
	}
	return drifted, nil
}
