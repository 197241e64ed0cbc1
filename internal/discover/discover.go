// Package discover reads the dependency declarations checked in at a
// revision, submodule gitlinks plus the optional .mmrdeps.json descriptor,
// and turns them into graph edges without touching any working tree.
package discover

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/mmrepo/mmr/internal/git"
	"github.com/mmrepo/mmr/internal/graph"
	"github.com/mmrepo/mmr/internal/store"
)

// DescriptorFile is the structured dependency descriptor a repository may
// check in alongside (or instead of) submodule gitlinks.
const DescriptorFile = ".mmrdeps.json"

// Error reports one malformed or unreadable dependency declaration. It is
// scoped to a single edge; discovery of the remaining edges continues.
type Error struct {
	Revision graph.RevisionRef
	Path     string
	Err      error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("discover %s: %v", e.Revision, e.Err)
	}
	return fmt.Sprintf("discover %s: path %q: %v", e.Revision, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type descriptor struct {
	Deps []descriptorDep `json:"deps"`
}

type descriptorDep struct {
	URL      string `json:"url"`
	Revision string `json:"revision"`
	Path     string `json:"path"`
}

// Discoverer resolves remote URLs through the store and reads declaration
// metadata at arbitrary historical revisions via object inspection. It
// remembers the origin URL of every repository it has seen so that children
// discovered through an edge can themselves be discovered later.
type Discoverer struct {
	store *store.Store
	git   git.Backend

	mu   sync.Mutex
	urls map[store.Key]string
}

func New(s *store.Store, backend git.Backend) *Discoverer {
	return &Discoverer{store: s, git: backend, urls: map[store.Key]string{}}
}

// RegisterURL records the remote URL a key was first seen under. The first
// registration wins; later URLs for the same canonical key are synonyms.
func (d *Discoverer) RegisterURL(key store.Key, url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.urls[key]; !ok {
		d.urls[key] = url
	}
}

// URL returns the remote URL registered for key.
func (d *Discoverer) URL(key store.Key) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	url, ok := d.urls[key]
	return url, ok
}

// Discover returns the edges declared at ref. The backing clone is fetched as
// needed so the revision's trees are readable; nothing is checked out. Gitlink
// and descriptor edges merge, exact duplicates collapse, and each malformed
// entry yields its own *Error while the rest of the edge set survives.
func (d *Discoverer) Discover(ref graph.RevisionRef) ([]graph.Edge, []error) {
	url, ok := d.URL(ref.Key)
	if !ok {
		return nil, []error{&Error{Revision: ref, Err: errors.New("no known remote URL")}}
	}
	entry := d.store.EntryFor(ref.Key, url)
	if err := d.store.EnsureCloned(entry); err != nil {
		return nil, []error{err}
	}
	if err := d.store.EnsureRevision(entry, ref.Revision); err != nil {
		return nil, []error{err}
	}

	seen := map[graph.Edge]struct{}{}
	var edges []graph.Edge
	var errs []error
	add := func(rawURL, revision, rawMount string) {
		mount, err := NormalizeMount(rawMount)
		if err != nil {
			errs = append(errs, &Error{Revision: ref, Path: rawMount, Err: err})
			return
		}
		if !git.IsCommitHash(revision) {
			errs = append(errs, &Error{Revision: ref, Path: mount, Err: fmt.Errorf("pinned revision %q is not a commit id", revision)})
			return
		}
		childKey, err := store.ParseKey(rawURL)
		if err != nil {
			errs = append(errs, &Error{Revision: ref, Path: mount, Err: err})
			return
		}
		d.RegisterURL(childKey, rawURL)
		e := graph.Edge{
			Parent: ref,
			Child:  graph.RevisionRef{Key: childKey, Revision: strings.ToLower(revision)},
			Mount:  mount,
		}
		if _, dup := seen[e]; dup {
			return
		}
		seen[e] = struct{}{}
		edges = append(edges, e)
	}

	subs, err := d.git.ListSubmodules(entry.Dir, ref.Revision)
	if err != nil {
		errs = append(errs, &Error{Revision: ref, Err: err})
	}
	for _, sub := range subs {
		if sub.Revision == "" {
			errs = append(errs, &Error{Revision: ref, Path: sub.Path, Err: errors.New("declared submodule has no gitlink in tree")})
			continue
		}
		add(sub.URL, sub.Revision, sub.Path)
	}

	deps, descErrs := d.readDescriptor(entry, ref)
	errs = append(errs, descErrs...)
	for _, dep := range deps {
		add(dep.URL, dep.Revision, dep.Path)
	}
	return edges, errs
}

func (d *Discoverer) readDescriptor(entry store.Entry, ref graph.RevisionRef) ([]descriptorDep, []error) {
	data, err := d.git.ReadObject(entry.Dir, ref.Revision, DescriptorFile)
	if err != nil {
		if errors.Is(err, git.ErrNotFound) {
			return nil, nil
		}
		return nil, []error{&Error{Revision: ref, Path: DescriptorFile, Err: err}}
	}
	var desc descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, []error{&Error{Revision: ref, Path: DescriptorFile, Err: fmt.Errorf("parse descriptor: %w", err)}}
	}
	var deps []descriptorDep
	var errs []error
	for i, dep := range desc.Deps {
		if dep.URL == "" || dep.Revision == "" || dep.Path == "" {
			errs = append(errs, &Error{Revision: ref, Path: DescriptorFile, Err: fmt.Errorf("deps[%d]: url, revision, and path are all required", i)})
			continue
		}
		deps = append(deps, dep)
	}
	return deps, errs
}

// NormalizeMount canonicalizes a declared mount path: slash-separated,
// cleaned, and strictly inside the parent worktree. Absolute paths and paths
// escaping the parent are rejected so projection stays deterministic.
func NormalizeMount(mount string) (string, error) {
	if strings.TrimSpace(mount) == "" {
		return "", errors.New("empty mount path")
	}
	cleaned := path.Clean(strings.ReplaceAll(mount, "\\", "/"))
	if path.IsAbs(cleaned) {
		return "", fmt.Errorf("mount path %q is absolute", mount)
	}
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("mount path %q escapes the parent tree", mount)
	}
	return cleaned, nil
}
