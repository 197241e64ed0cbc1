package git

import (
	"errors"
	"fmt"
	"sort"

	gitlib "github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const gitmodulesFile = ".gitmodules"

func (s *System) Head(dir string) (string, error) {
	repo, err := openRepo(dir)
	if err != nil {
		return "", err
	}
	ref, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

func (s *System) ResolveRevision(dir, revision string) (string, error) {
	repo, err := openRepo(dir)
	if err != nil {
		return "", err
	}
	if IsCommitHash(revision) {
		return revision, nil
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", revision, err)
	}
	return hash.String(), nil
}

func (s *System) HasRevision(dir, revision string) (bool, error) {
	repo, err := openRepo(dir)
	if err != nil {
		return false, err
	}
	if !IsCommitHash(revision) {
		return false, fmt.Errorf("has revision: %q is not a commit id", revision)
	}
	if _, err := repo.CommitObject(plumbing.NewHash(revision)); err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("look up %s: %w", revision, err)
	}
	return true, nil
}

// ReadObject returns the contents of path as checked in at revision, without
// touching the working tree. Returns ErrNotFound when the revision has no
// such path.
func (s *System) ReadObject(dir, revision, path string) ([]byte, error) {
	tree, err := treeAt(dir, revision)
	if err != nil {
		return nil, err
	}
	file, err := tree.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, fmt.Errorf("read %s at %s: %w", path, revision, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s at %s: %w", path, revision, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return nil, fmt.Errorf("read %s at %s: %w", path, revision, err)
	}
	return []byte(contents), nil
}

// ListSubmodules reads the .gitmodules entries checked in at revision and
// pairs each with the gitlink hash the tree pins at its path. Entries whose
// path is not a gitlink in the tree are returned with an empty Revision so
// the caller can report them without losing the rest.
func (s *System) ListSubmodules(dir, revision string) ([]Submodule, error) {
	tree, err := treeAt(dir, revision)
	if err != nil {
		return nil, err
	}
	file, err := tree.File(gitmodulesFile)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s at %s: %w", gitmodulesFile, revision, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return nil, fmt.Errorf("read %s at %s: %w", gitmodulesFile, revision, err)
	}
	subs, err := parseModules([]byte(contents))
	if err != nil {
		return nil, fmt.Errorf("parse %s at %s: %w", gitmodulesFile, revision, err)
	}
	for i := range subs {
		entry, err := tree.FindEntry(subs[i].Path)
		if err != nil || entry.Mode != filemode.Submodule {
			continue
		}
		subs[i].Revision = entry.Hash.String()
	}
	return subs, nil
}

// parseModules decodes .gitmodules contents into submodule records sorted by
// mount path.
func parseModules(data []byte) ([]Submodule, error) {
	modules := gitcfg.NewModules()
	if err := modules.Unmarshal(data); err != nil {
		return nil, err
	}
	subs := make([]Submodule, 0, len(modules.Submodules))
	for _, m := range modules.Submodules {
		if m == nil || m.Path == "" {
			continue
		}
		subs = append(subs, Submodule{Name: m.Name, Path: m.Path, URL: m.URL})
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].Path < subs[j].Path })
	return subs, nil
}

func treeAt(dir, revision string) (*object.Tree, error) {
	repo, err := openRepo(dir)
	if err != nil {
		return nil, err
	}
	var hash plumbing.Hash
	if IsCommitHash(revision) {
		hash = plumbing.NewHash(revision)
	} else {
		resolved, err := repo.ResolveRevision(plumbing.Revision(revision))
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", revision, err)
		}
		hash = *resolved
	}
	commit, err := repo.CommitObject(hash)
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, fmt.Errorf("commit %s: %w", revision, ErrNotFound)
		}
		return nil, fmt.Errorf("commit %s: %w", revision, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("tree of %s: %w", revision, err)
	}
	return tree, nil
}

func openRepo(dir string) (*gitlib.Repository, error) {
	repo, err := gitlib.PlainOpenWithOptions(dir, &gitlib.PlainOpenOptions{DetectDotGit: false})
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", dir, err)
	}
	return repo, nil
}
