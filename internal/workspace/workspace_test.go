package workspace

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/mmrepo/mmr/internal/git/gittest"
	"github.com/mmrepo/mmr/internal/graph"
	"github.com/mmrepo/mmr/internal/project"
	"github.com/mmrepo/mmr/internal/store"
)

func TestInitAndFind(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ws, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if ws.Root() != dir {
		t.Fatalf("root = %s, want %s", ws.Root(), dir)
	}
	for _, p := range []string{ws.UniversePath(), ws.AllPath()} {
		if info, err := os.Stat(p); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", p, err)
		}
	}

	nested := filepath.Join(dir, "some", "deep", "path")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	found, err := Find(nested)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if found.Root() != dir {
		t.Fatalf("Find = %s, want %s", found.Root(), dir)
	}

	if _, err := Init(nested); err == nil {
		t.Fatal("Init inside an existing workspace must fail")
	}
}

func TestFind_NotInitialized(t *testing.T) {
	t.Parallel()

	if _, err := Find(t.TempDir()); err == nil {
		t.Fatal("expected an error outside any workspace")
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	t.Parallel()

	ws, err := Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	registry, err := ws.LoadRegistry()
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if len(registry.Trees) != 0 {
		t.Fatalf("fresh registry should be empty, got %v", registry.Trees)
	}
	registry.Trees["github.com/org/p"] = Tree{
		Key:  "github.com/org/p",
		URL:  "https://github.com/org/p.git",
		Link: "p",
		Root: true,
	}
	registry.Trees["github.com/org/q"] = Tree{
		Key: "github.com/org/q",
		URL: "https://github.com/org/q.git",
	}
	if err := ws.SaveRegistry(registry); err != nil {
		t.Fatalf("SaveRegistry: %v", err)
	}
	loaded, err := ws.LoadRegistry()
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if !reflect.DeepEqual(loaded, registry) {
		t.Fatalf("round trip mismatch:\n%+v\nvs\n%+v", loaded, registry)
	}
}

func TestRegistryLookup(t *testing.T) {
	t.Parallel()

	registry := &Registry{Trees: map[store.Key]Tree{
		"github.com/org/p":      {Key: "github.com/org/p", Link: "proj", Root: true},
		"github.com/org/q":      {Key: "github.com/org/q"},
		"example.com/mirrors/q": {Key: "example.com/mirrors/q"},
	}}

	if tree, err := registry.Lookup("github.com/org/p"); err != nil || tree.Key != "github.com/org/p" {
		t.Fatalf("lookup by key: %+v %v", tree, err)
	}
	if tree, err := registry.Lookup("proj"); err != nil || tree.Key != "github.com/org/p" {
		t.Fatalf("lookup by link: %+v %v", tree, err)
	}
	if tree, err := registry.Lookup("p"); err != nil || tree.Key != "github.com/org/p" {
		t.Fatalf("lookup by base: %+v %v", tree, err)
	}
	if _, err := registry.Lookup("q"); err == nil {
		t.Fatal("ambiguous base must fail")
	}
	if _, err := registry.Lookup("nope"); err == nil {
		t.Fatal("unknown spec must fail")
	}
}

func TestStateRoundTrip(t *testing.T) {
	t.Parallel()

	ws, err := Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	state, err := ws.LoadState()
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if state.Mode != ModeFree {
		t.Fatalf("fresh state mode = %s, want free", state.Mode)
	}

	revision := strings.Repeat("a", 40)
	state = &State{
		Mode:      ModeFocused,
		FocusRoot: "github.com/org/p",
		Applied: &graph.VersionMap{
			Root: "github.com/org/p",
			Revisions: map[store.Key]graph.RevisionRef{
				"github.com/org/p": {Key: "github.com/org/p", Revision: revision},
			},
			Conflicts: []graph.Conflict{{
				Key:    "github.com/org/r",
				Chosen: revision,
				Demands: []graph.Demand{
					{Revision: revision, Depth: 1},
					{Revision: strings.Repeat("b", 40), Depth: 2},
				},
			}},
		},
		Entries: []project.Entry{{
			Path:     "/ws/p",
			Target:   "/ws/.mmrepo/universe/github.com/org/p",
			Key:      "github.com/org/p",
			Revision: revision,
		}},
		AppliedAt: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
	}
	if err := ws.SaveState(state); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	loaded, err := ws.LoadState()
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if !reflect.DeepEqual(loaded, state) {
		t.Fatalf("round trip mismatch:\n%+v\nvs\n%+v", loaded, state)
	}
}

func TestLock(t *testing.T) {
	t.Parallel()

	ws, err := Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	release, err := ws.Lock()
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	release()

	// Re-acquire after release.
	release, err = ws.Lock()
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	defer release()
}

func TestDup_SharesClones(t *testing.T) {
	t.Parallel()

	srcDir := t.TempDir()
	src, err := Init(srcDir)
	if err != nil {
		t.Fatal(err)
	}
	registry, err := src.LoadRegistry()
	if err != nil {
		t.Fatal(err)
	}
	registry.Trees["github.com/org/p"] = Tree{
		Key:  "github.com/org/p",
		URL:  "https://github.com/org/p.git",
		Link: "p",
		Root: true,
	}
	registry.Trees["github.com/org/q"] = Tree{
		Key: "github.com/org/q",
		URL: "https://github.com/org/q.git",
	}
	if err := src.SaveRegistry(registry); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"github.com/org/p", "github.com/org/q"} {
		if err := os.MkdirAll(filepath.Join(src.UniversePath(), key, ".git"), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	fake := &gittest.Fake{}
	destDir := filepath.Join(t.TempDir(), "copy")
	dest, err := Dup(src, destDir, fake)
	if err != nil {
		t.Fatalf("Dup: %v", err)
	}

	// Objects are shared, never re-cloned from the network.
	if fake.Count("Clone") != 0 {
		t.Fatalf("Dup must not clone from remotes, got %d", fake.Count("Clone"))
	}
	if fake.Count("CloneShared") != 2 {
		t.Fatalf("expected 2 shared clones, got %d", fake.Count("CloneShared"))
	}
	if fake.Count("SetRemoteURL") != 2 {
		t.Fatalf("expected origin repointed twice, got %d", fake.Count("SetRemoteURL"))
	}

	destRegistry, err := dest.LoadRegistry()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(destRegistry, registry) {
		t.Fatal("registry must carry over")
	}
	state, err := dest.LoadState()
	if err != nil {
		t.Fatal(err)
	}
	if state.Mode != ModeFree {
		t.Fatalf("dest must start free, got %s", state.Mode)
	}
	if _, err := os.Lstat(filepath.Join(dest.Root(), "p")); err != nil {
		t.Fatalf("root link missing: %v", err)
	}
	if _, err := os.Lstat(filepath.Join(dest.AllPath(), "github.com", "org", "q")); err != nil {
		t.Fatalf("all/ link missing: %v", err)
	}
}
