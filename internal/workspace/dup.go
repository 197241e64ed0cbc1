package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/mmrepo/mmr/internal/git"
	"github.com/mmrepo/mmr/internal/store"
)

// Dup initializes destDir as a new workspace sharing src's objects: every
// store entry is re-created with a shared clone from the source entry, so
// object storage rides on alternates instead of a second copy of history.
// origin is repointed at the canonical remote so fetches keep working. The
// registry carries over; the new workspace starts Free with nothing applied.
func Dup(src *Workspace, destDir string, backend git.Backend) (*Workspace, error) {
	dest, err := Init(destDir)
	if err != nil {
		return nil, err
	}
	registry, err := src.LoadRegistry()
	if err != nil {
		return nil, err
	}
	for _, key := range sortedKeys(registry) {
		tree := registry.Trees[key]
		srcClone := filepath.Join(src.UniversePath(), key.RelPath())
		destClone := filepath.Join(dest.UniversePath(), key.RelPath())
		if _, err := os.Stat(srcClone); err != nil {
			slog.Warn("skipping unmaterialized tree", slog.String("key", key.String()))
			continue
		}
		if err := os.MkdirAll(filepath.Dir(destClone), 0o755); err != nil {
			return nil, fmt.Errorf("dup %s: %w", key, err)
		}
		slog.Info("sharing clone", slog.String("key", key.String()))
		if err := backend.CloneShared(srcClone, destClone); err != nil {
			return nil, fmt.Errorf("dup %s: %w", key, err)
		}
		if tree.URL != "" {
			if err := backend.SetRemoteURL(destClone, tree.URL); err != nil {
				return nil, fmt.Errorf("dup %s: repoint origin: %w", key, err)
			}
		}
		if err := linkTree(dest, tree, destClone); err != nil {
			return nil, err
		}
	}
	if err := dest.SaveRegistry(registry); err != nil {
		return nil, err
	}
	if err := dest.SaveState(&State{Mode: ModeFree}); err != nil {
		return nil, err
	}
	return dest, nil
}

// linkTree recreates the all/ link for a tree and, for roots, the top-level
// workspace link.
func linkTree(w *Workspace, tree Tree, clone string) error {
	allLink := filepath.Join(w.AllPath(), tree.Key.RelPath())
	if err := symlinkUnlessPresent(allLink, clone); err != nil {
		return err
	}
	if tree.Root && tree.Link != "" {
		rootLink := filepath.Join(w.Root(), tree.Link)
		if err := symlinkUnlessPresent(rootLink, clone); err != nil {
			return err
		}
	}
	return nil
}

func symlinkUnlessPresent(path, target string) error {
	if _, err := os.Lstat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create link parent for %s: %w", path, err)
	}
	if err := os.Symlink(target, path); err != nil {
		return fmt.Errorf("link %s: %w", path, err)
	}
	return nil
}

func sortedKeys(r *Registry) []store.Key {
	keys := make([]store.Key, 0, len(r.Trees))
	for k := range r.Trees {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
