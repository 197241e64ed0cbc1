// Package store maps canonical repository identities to the single shared
// clone each one gets on disk, and serializes all mutations per entry so
// concurrent projections cannot corrupt a clone that several projects
// reference.
package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/mmrepo/mmr/internal/git"
)

// Entry binds a Key to the absolute path of its shared clone.
type Entry struct {
	Key Key
	URL string
	Dir string
}

// UnavailableError reports that a store entry's backing clone cannot be
// created or used. Fatal for operations needing that repository; other
// entries are unaffected.
type UnavailableError struct {
	Key Key
	Dir string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("store entry %s unavailable at %s: %v", e.Key, e.Dir, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Store owns the universe directory: one clone per canonical repository,
// shared by every project that references it.
type Store struct {
	root string
	git  git.Backend

	// mu guards locks; each entry mutex serializes clone/fetch/checkout
	// for its Key.
	mu    sync.Mutex
	locks map[Key]*sync.Mutex
}

func New(root string, backend git.Backend) *Store {
	return &Store{root: root, git: backend, locks: map[Key]*sync.Mutex{}}
}

// Root returns the universe directory.
func (s *Store) Root() string { return s.root }

// Resolve canonicalizes rawURL and returns the store entry it maps to. Pure
// and deterministic: the same canonical URL always yields the same path, no
// matter the call order. Nothing is created on disk.
func (s *Store) Resolve(rawURL string) (Entry, error) {
	key, err := ParseKey(rawURL)
	if err != nil {
		return Entry{}, err
	}
	return s.EntryFor(key, rawURL), nil
}

// EntryFor returns the entry for an already-canonicalized key.
func (s *Store) EntryFor(key Key, url string) Entry {
	return Entry{Key: key, URL: url, Dir: filepath.Join(s.root, key.RelPath())}
}

// EnsureCloned guarantees the backing clone exists. Safe to call
// concurrently for the same entry; the per-key mutex serializes the clone.
func (s *Store) EnsureCloned(e Entry) error {
	unlock := s.guard(e.Key)
	defer unlock()

	if ok, err := isRepoDir(e.Dir); err != nil {
		return &UnavailableError{Key: e.Key, Dir: e.Dir, Err: err}
	} else if ok {
		return nil
	}
	if _, err := os.Lstat(e.Dir); err == nil {
		return &UnavailableError{Key: e.Key, Dir: e.Dir, Err: fmt.Errorf("path exists but is not a git repository")}
	}
	if err := os.MkdirAll(filepath.Dir(e.Dir), 0o755); err != nil {
		return &UnavailableError{Key: e.Key, Dir: e.Dir, Err: err}
	}
	slog.Info("cloning into store", slog.String("key", e.Key.String()), slog.String("url", e.URL))
	if err := s.git.Clone(e.URL, e.Dir); err != nil {
		return &UnavailableError{Key: e.Key, Dir: e.Dir, Err: err}
	}
	return nil
}

// EnsureRevision makes the given commit available in the clone, fetching at
// most once. Requires EnsureCloned to have succeeded.
func (s *Store) EnsureRevision(e Entry, revision string) error {
	unlock := s.guard(e.Key)
	defer unlock()

	ok, err := s.git.HasRevision(e.Dir, revision)
	if err != nil {
		return &UnavailableError{Key: e.Key, Dir: e.Dir, Err: err}
	}
	if ok {
		return nil
	}
	slog.Debug("fetching store entry", slog.String("key", e.Key.String()), slog.String("revision", revision))
	if err := s.git.Fetch(e.Dir); err != nil {
		return &UnavailableError{Key: e.Key, Dir: e.Dir, Err: err}
	}
	ok, err = s.git.HasRevision(e.Dir, revision)
	if err != nil {
		return &UnavailableError{Key: e.Key, Dir: e.Dir, Err: err}
	}
	if !ok {
		return &UnavailableError{Key: e.Key, Dir: e.Dir, Err: fmt.Errorf("revision %s not present after fetch", revision)}
	}
	return nil
}

// Checkout detaches the clone's worktree at revision. Already being there is
// a no-op unless force is set, so re-applying a map does not churn worktrees.
func (s *Store) Checkout(e Entry, revision string, force bool) error {
	unlock := s.guard(e.Key)
	defer unlock()

	if !force {
		if head, err := s.git.Head(e.Dir); err == nil && head == revision {
			return nil
		}
	}
	if err := s.git.Checkout(e.Dir, revision, force); err != nil {
		return fmt.Errorf("checkout %s at %s: %w", e.Key, shortRev(revision), err)
	}
	return nil
}

// Head returns the commit the clone's worktree currently sits at.
func (s *Store) Head(e Entry) (string, error) {
	head, err := s.git.Head(e.Dir)
	if err != nil {
		return "", &UnavailableError{Key: e.Key, Dir: e.Dir, Err: err}
	}
	return head, nil
}

func (s *Store) guard(key Key) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func isRepoDir(dir string) (bool, error) {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func shortRev(revision string) string {
	if len(revision) > 12 {
		return revision[:12]
	}
	return revision
}
