package git

import "errors"

// ErrNotFound reports that a path or object does not exist at the requested
// revision.
var ErrNotFound = errors.New("object not found at revision")

// Submodule is one dependency declaration checked in at a parent revision:
// the .gitmodules entry plus the gitlink hash pinned by the parent tree.
// Revision is empty when .gitmodules names a path the tree does not pin.
type Submodule struct {
	Name     string
	Path     string // mount path relative to the parent worktree, slash-separated
	URL      string
	Revision string
}

// Backend abstracts the git plumbing the core depends on.
//
// The default implementation reads objects through go-git and shells out to
// the git executable for clone/fetch/checkout/index operations, so network
// access goes through the user's credential helpers and SSH configuration.
// The interface allows alternative implementations without changing callers.
type Backend interface {
	Clone(url, dest string) error
	CloneShared(src, dest string) error
	Fetch(dir string) error
	Checkout(dir, revision string, force bool) error
	SetSkipWorktree(dir, path string, skip bool) error
	SetRemoteURL(dir, url string) error
	IsDirty(dir string) (bool, error)

	Head(dir string) (string, error)
	ResolveRevision(dir, revision string) (string, error)
	HasRevision(dir, revision string) (bool, error)
	ReadObject(dir, revision, path string) ([]byte, error)
	ListSubmodules(dir, revision string) ([]Submodule, error)
}

// IsCommitHash reports whether s looks like a full object id (40 or 64 hex
// characters, covering sha1 and sha256 repositories).
func IsCommitHash(s string) bool {
	if len(s) != 40 && len(s) != 64 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
