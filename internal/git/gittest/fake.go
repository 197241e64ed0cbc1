// Package gittest provides a func-field fake of the git plumbing backend for
// tests that must not shell out to a real git binary.
package gittest

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/mmrepo/mmr/internal/git"
)

// Fake implements git.Backend. Every method records its invocation and then
// delegates to the matching func field when set; unset fields fall back to a
// permissive default so orchestration tests only stub what they assert on.
// The zero value is ready to use.
type Fake struct {
	mu    sync.Mutex
	calls map[string]int

	Cloned       [][2]string // (url, dest) pairs in call order
	SharedClones [][2]string // (src, dest) pairs in call order
	Fetched      []string    // dirs in call order
	CheckedOut   []string    // "dir@revision" in call order
	SkipFlags    []string    // "dir:path=skip" in call order

	CloneFunc           func(url, dest string) error
	CloneSharedFunc     func(src, dest string) error
	FetchFunc           func(dir string) error
	CheckoutFunc        func(dir, revision string, force bool) error
	SetSkipWorktreeFunc func(dir, path string, skip bool) error
	SetRemoteURLFunc    func(dir, url string) error
	IsDirtyFunc         func(dir string) (bool, error)
	HeadFunc            func(dir string) (string, error)
	ResolveRevisionFunc func(dir, revision string) (string, error)
	HasRevisionFunc     func(dir, revision string) (bool, error)
	ReadObjectFunc      func(dir, revision, path string) ([]byte, error)
	ListSubmodulesFunc  func(dir, revision string) ([]git.Submodule, error)
}

var _ git.Backend = (*Fake)(nil)

func (f *Fake) record(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[method]++
}

// Count returns how many times the named method has been called.
func (f *Fake) Count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *Fake) Clone(url, dest string) error {
	f.record("Clone")
	f.mu.Lock()
	f.Cloned = append(f.Cloned, [2]string{url, dest})
	f.mu.Unlock()
	if f.CloneFunc != nil {
		return f.CloneFunc(url, dest)
	}
	return materializeClone(dest)
}

func (f *Fake) CloneShared(src, dest string) error {
	f.record("CloneShared")
	f.mu.Lock()
	f.SharedClones = append(f.SharedClones, [2]string{src, dest})
	f.mu.Unlock()
	if f.CloneSharedFunc != nil {
		return f.CloneSharedFunc(src, dest)
	}
	return materializeClone(dest)
}

func (f *Fake) Fetch(dir string) error {
	f.record("Fetch")
	f.mu.Lock()
	f.Fetched = append(f.Fetched, dir)
	f.mu.Unlock()
	if f.FetchFunc != nil {
		return f.FetchFunc(dir)
	}
	return nil
}

func (f *Fake) Checkout(dir, revision string, force bool) error {
	f.record("Checkout")
	f.mu.Lock()
	f.CheckedOut = append(f.CheckedOut, dir+"@"+revision)
	f.mu.Unlock()
	if f.CheckoutFunc != nil {
		return f.CheckoutFunc(dir, revision, force)
	}
	return nil
}

func (f *Fake) SetSkipWorktree(dir, path string, skip bool) error {
	f.record("SetSkipWorktree")
	f.mu.Lock()
	state := "=off"
	if skip {
		state = "=on"
	}
	f.SkipFlags = append(f.SkipFlags, dir+":"+path+state)
	f.mu.Unlock()
	if f.SetSkipWorktreeFunc != nil {
		return f.SetSkipWorktreeFunc(dir, path, skip)
	}
	return nil
}

func (f *Fake) SetRemoteURL(dir, url string) error {
	f.record("SetRemoteURL")
	if f.SetRemoteURLFunc != nil {
		return f.SetRemoteURLFunc(dir, url)
	}
	return nil
}

func (f *Fake) IsDirty(dir string) (bool, error) {
	f.record("IsDirty")
	if f.IsDirtyFunc != nil {
		return f.IsDirtyFunc(dir)
	}
	return false, nil
}

func (f *Fake) Head(dir string) (string, error) {
	f.record("Head")
	if f.HeadFunc != nil {
		return f.HeadFunc(dir)
	}
	return "", nil
}

func (f *Fake) ResolveRevision(dir, revision string) (string, error) {
	f.record("ResolveRevision")
	if f.ResolveRevisionFunc != nil {
		return f.ResolveRevisionFunc(dir, revision)
	}
	return revision, nil
}

func (f *Fake) HasRevision(dir, revision string) (bool, error) {
	f.record("HasRevision")
	if f.HasRevisionFunc != nil {
		return f.HasRevisionFunc(dir, revision)
	}
	return true, nil
}

func (f *Fake) ReadObject(dir, revision, path string) ([]byte, error) {
	f.record("ReadObject")
	if f.ReadObjectFunc != nil {
		return f.ReadObjectFunc(dir, revision, path)
	}
	return nil, git.ErrNotFound
}

func (f *Fake) ListSubmodules(dir, revision string) ([]git.Submodule, error) {
	f.record("ListSubmodules")
	if f.ListSubmodulesFunc != nil {
		return f.ListSubmodulesFunc(dir, revision)
	}
	return nil, nil
}

// materializeClone lays down enough of a repository shape that existence
// checks against the fake-cloned entry succeed.
func materializeClone(dest string) error {
	return os.MkdirAll(filepath.Join(dest, ".git"), 0o755)
}
