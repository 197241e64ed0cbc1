// Package project materializes a resolved version map onto the workspace: it
// brings the shared store clones to their target revisions, writes the
// symlinks that make every mount path resolve into the store, and suppresses
// git's own submodule working-tree management at those paths.
//
// The index entry stays owned by git metadata; path materialization is owned
// here. Flagging the gitlink skip-worktree keeps both owners intact instead
// of fighting over the same path.
package project

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/mmrepo/mmr/internal/git"
	"github.com/mmrepo/mmr/internal/graph"
	"github.com/mmrepo/mmr/internal/store"
)

// Entry is one projected symlink: a user-facing path resolving to a store
// clone, tagged with the repository and revision it currently reflects. For
// nested mounts, Parent and Mount identify the gitlink index entry whose
// working-tree handling is suppressed; both are empty for top-level links.
type Entry struct {
	Path     string    `json:"path"`
	Target   string    `json:"target"`
	Key      store.Key `json:"key"`
	Revision string    `json:"revision"`
	Parent   store.Key `json:"parent,omitempty"`
	Mount    string    `json:"mount,omitempty"`
}

// Link is an explicit top-level symlink request: path resolving to the store
// clone of key.
type Link struct {
	Path string
	Key  store.Key
}

// ConflictError reports a projection target occupied by content this system
// does not own. Fatal for that path; other paths are still projected.
type ConflictError struct {
	Path string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("workspace path %s exists and is not owned by mmr", e.Path)
}

// Options tunes one Apply pass.
type Options struct {
	// Force propagates to store checkouts and lets projection replace
	// owned links that have drifted from their recorded target.
	Force bool
	// Jobs bounds the store fetch/checkout fan-out. Zero means DefaultJobs.
	Jobs int
	// Links are top-level symlinks to maintain in addition to the mounts
	// derived from the map's live edges.
	Links []Link
	// Stale are previously projected entries; any not re-planned by this
	// pass are removed and their skip-worktree flags cleared.
	Stale []Entry
}

// DefaultJobs bounds concurrent store mutations when Options.Jobs is unset.
const DefaultJobs = 4

// Projector mutates the store and workspace symlinks to match a version map.
// urls supplies the remote URL a key was registered under, so a clone deleted
// out from under the store can be re-created during reapply.
type Projector struct {
	store *store.Store
	git   git.Backend
	urls  func(store.Key) (string, bool)
}

func New(s *store.Store, backend git.Backend, urls func(store.Key) (string, bool)) *Projector {
	return &Projector{store: s, git: backend, urls: urls}
}

func (p *Projector) entryFor(key store.Key) store.Entry {
	var url string
	if p.urls != nil {
		url, _ = p.urls(key)
	}
	return p.store.EntryFor(key, url)
}

// Preview plans the entries Apply would produce, without touching disk.
func (p *Projector) Preview(m *graph.VersionMap, g *graph.Graph, links []Link) []Entry {
	entries := make([]Entry, 0, len(links)+g.Len())
	for _, link := range links {
		ref, ok := m.Revisions[link.Key]
		if !ok {
			continue
		}
		entries = append(entries, Entry{
			Path:     link.Path,
			Target:   p.entryFor(link.Key).Dir,
			Key:      link.Key,
			Revision: ref.Revision,
		})
	}
	for _, e := range m.Edges(g) {
		resolved := m.Revisions[e.Child.Key]
		parentDir := p.entryFor(e.Parent.Key).Dir
		entries = append(entries, Entry{
			Path:     filepath.Join(parentDir, filepath.FromSlash(e.Mount)),
			Target:   p.entryFor(e.Child.Key).Dir,
			Key:      e.Child.Key,
			Revision: resolved.Revision,
			Parent:   e.Parent.Key,
			Mount:    e.Mount,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return dedupeEntries(entries)
}

// Apply projects the map: store clones are fetched and checked out at their
// resolved revisions in parallel, then symlinks and skip-worktree flags are
// written serially, each link via stage-then-rename so an interrupted pass
// leaves the old or the new link, never a half-written one. Per-entity
// failures collect into the returned error list; the rest of the projection
// proceeds.
func (p *Projector) Apply(m *graph.VersionMap, g *graph.Graph, opts Options) ([]Entry, []error) {
	failed := p.ensureStore(m, opts)
	errs := append([]error(nil), failed.errs...)

	planned := p.Preview(m, g, opts.Links)
	applied := make([]Entry, 0, len(planned))
	for _, entry := range planned {
		if _, ok := failed.keys[entry.Key]; ok {
			continue
		}
		// A failed parent has no clone on disk; writing its mount link
		// would squat a plain directory on the parent's store path.
		if _, ok := failed.keys[entry.Parent]; ok {
			continue
		}
		if err := ensureLink(entry.Path, entry.Target, opts.Force); err != nil {
			errs = append(errs, err)
			continue
		}
		applied = append(applied, entry)
		if entry.Parent == "" {
			continue
		}
		parentDir := p.entryFor(entry.Parent).Dir
		if err := p.git.SetSkipWorktree(parentDir, entry.Mount, true); err != nil {
			errs = append(errs, fmt.Errorf("suppress gitlink %s in %s: %w", entry.Mount, entry.Parent, err))
		}
	}

	errs = append(errs, p.removeStale(opts.Stale, applied)...)
	return applied, errs
}

// Reapply re-materializes previously projected entries from a persisted
// snapshot: clones are brought back to their mapped revisions and every
// recorded link and skip-worktree flag is written again. Running it against
// an undisturbed workspace changes nothing.
func (p *Projector) Reapply(m *graph.VersionMap, entries []Entry, opts Options) []error {
	failed := p.ensureStore(m, opts)
	errs := append([]error(nil), failed.errs...)
	for _, entry := range entries {
		if _, ok := failed.keys[entry.Key]; ok {
			continue
		}
		if _, ok := failed.keys[entry.Parent]; ok {
			continue
		}
		if err := ensureLink(entry.Path, entry.Target, opts.Force); err != nil {
			errs = append(errs, err)
			continue
		}
		if entry.Parent == "" {
			continue
		}
		parentDir := p.entryFor(entry.Parent).Dir
		if err := p.git.SetSkipWorktree(parentDir, entry.Mount, true); err != nil {
			errs = append(errs, fmt.Errorf("suppress gitlink %s in %s: %w", entry.Mount, entry.Parent, err))
		}
	}
	return errs
}

type ensureResult struct {
	keys map[store.Key]struct{}
	errs []error
}

// ensureStore brings every mapped clone to its resolved revision, fanning out
// across a bounded worker pool. Mutations per entry are serialized by the
// store's per-key locks.
func (p *Projector) ensureStore(m *graph.VersionMap, opts Options) ensureResult {
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = DefaultJobs
	}
	var (
		wg  sync.WaitGroup
		sem = make(chan struct{}, jobs)
		mu  sync.Mutex
		res = ensureResult{keys: map[store.Key]struct{}{}}
	)
	for _, key := range m.Keys() {
		ref := m.Revisions[key]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			err := p.ensureOne(ref, opts.Force)
			if err != nil {
				mu.Lock()
				res.keys[ref.Key] = struct{}{}
				res.errs = append(res.errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	sort.Slice(res.errs, func(i, j int) bool { return res.errs[i].Error() < res.errs[j].Error() })
	return res
}

func (p *Projector) ensureOne(ref graph.RevisionRef, force bool) error {
	entry := p.entryFor(ref.Key)
	if err := p.store.EnsureCloned(entry); err != nil {
		return err
	}
	if err := p.store.EnsureRevision(entry, ref.Revision); err != nil {
		return err
	}
	if err := p.store.Checkout(entry, ref.Revision, force); err != nil {
		return err
	}
	return nil
}

func (p *Projector) removeStale(stale, applied []Entry) []error {
	current := map[string]struct{}{}
	for _, e := range applied {
		current[e.Path] = struct{}{}
	}
	var errs []error
	for _, e := range stale {
		if _, ok := current[e.Path]; ok {
			continue
		}
		if err := removeLink(e.Path); err != nil {
			errs = append(errs, err)
			continue
		}
		slog.Debug("removed stale link", slog.String("path", e.Path))
		if e.Parent != "" {
			parentDir := p.entryFor(e.Parent).Dir
			if err := p.git.SetSkipWorktree(parentDir, e.Mount, false); err != nil {
				slog.Warn("clear skip-worktree", slog.String("path", e.Mount), slog.Any("error", err))
			}
		}
	}
	return errs
}

// ensureLink makes path a symlink to target. An existing correct link is a
// no-op. An owned link pointing elsewhere is replaced only under force; any
// non-symlink occupant is a conflict, never overwritten.
func ensureLink(path, target string, force bool) error {
	info, err := os.Lstat(path)
	switch {
	case err == nil && info.Mode()&os.ModeSymlink == 0:
		return &ConflictError{Path: path}
	case err == nil:
		existing, readErr := os.Readlink(path)
		if readErr == nil && existing == target {
			return nil
		}
		if !force {
			return &ConflictError{Path: path}
		}
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("inspect %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create link parent for %s: %w", path, err)
	}
	staged := filepath.Join(filepath.Dir(path), ".mmr-stage-"+filepath.Base(path))
	_ = os.Remove(staged)
	if err := os.Symlink(target, staged); err != nil {
		return fmt.Errorf("stage link %s: %w", path, err)
	}
	if err := os.Rename(staged, path); err != nil {
		_ = os.Remove(staged)
		return fmt.Errorf("commit link %s: %w", path, err)
	}
	return nil
}

// removeLink deletes path only when it is still a symlink; anything else has
// been taken over by the user and is left alone.
func removeLink(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("inspect %s: %w", path, err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return &ConflictError{Path: path}
	}
	return os.Remove(path)
}

func dedupeEntries(entries []Entry) []Entry {
	out := entries[:0]
	var prev string
	for i, e := range entries {
		if i > 0 && e.Path == prev {
			continue
		}
		out = append(out, e)
		prev = e.Path
	}
	return out
}
