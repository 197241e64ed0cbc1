package graph

import (
	"errors"
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"github.com/mmrepo/mmr/internal/store"
)

func rev(c byte) string {
	return strings.Repeat(string(c), 40)
}

func ref(key string, c byte) RevisionRef {
	return RevisionRef{Key: store.Key(key), Revision: rev(c)}
}

// discoverFrom builds a DiscoverFunc over a fixed synthetic edge table.
func discoverFrom(edges []Edge) DiscoverFunc {
	byParent := map[RevisionRef][]Edge{}
	for _, e := range edges {
		byParent[e.Parent] = append(byParent[e.Parent], e)
	}
	return func(r RevisionRef) ([]Edge, []error) {
		return byParent[r], nil
	}
}

func TestBuild_OrderIndependent(t *testing.T) {
	t.Parallel()

	// Fixed synthetic graph: three roots, a shared dependency, a diamond.
	edges := []Edge{
		{Parent: ref("h/p", 'a'), Child: ref("h/q", '1'), Mount: "third_party/q"},
		{Parent: ref("h/p", 'a'), Child: ref("h/r", '2'), Mount: "third_party/r"},
		{Parent: ref("h/q", '1'), Child: ref("h/r", '3'), Mount: "deps/r"},
		{Parent: ref("h/s", 'b'), Child: ref("h/q", '1'), Mount: "q"},
		{Parent: ref("h/t", 'c'), Child: ref("h/s", 'b'), Mount: "s"},
	}
	roots := []RevisionRef{ref("h/p", 'a'), ref("h/s", 'b'), ref("h/t", 'c')}

	first, errs := Build(roots, discoverFrom(edges))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]RevisionRef(nil), roots...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		g, errs := Build(shuffled, discoverFrom(edges))
		if len(errs) != 0 {
			t.Fatalf("unexpected errors: %v", errs)
		}
		if !reflect.DeepEqual(g.Edges(), first.Edges()) {
			t.Fatalf("edge set depends on root order:\n%v\nvs\n%v", g.Edges(), first.Edges())
		}
	}
}

func TestBuild_CycleTerminates(t *testing.T) {
	t.Parallel()

	// A pins B, B pins A, at fixed revisions.
	edges := []Edge{
		{Parent: ref("h/a", 'a'), Child: ref("h/b", 'b'), Mount: "b"},
		{Parent: ref("h/b", 'b'), Child: ref("h/a", 'a'), Mount: "a"},
	}
	g, errs := Build([]RevisionRef{ref("h/a", 'a')}, discoverFrom(edges))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if g.Len() != 2 {
		t.Fatalf("expected 2 edges, got %d", g.Len())
	}

	m, err := Resolve(g, "h/a")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(m.Revisions) != 2 {
		t.Fatalf("expected both repositories in the map, got %v", m.Revisions)
	}
	if m.Revisions["h/a"].Revision != rev('a') || m.Revisions["h/b"].Revision != rev('b') {
		t.Fatalf("unexpected resolutions: %v", m.Revisions)
	}
}

func TestBuild_DuplicateEdgesCollapse(t *testing.T) {
	t.Parallel()

	e := Edge{Parent: ref("h/p", 'a'), Child: ref("h/q", '1'), Mount: "q"}
	g, _ := Build([]RevisionRef{ref("h/p", 'a')}, func(r RevisionRef) ([]Edge, []error) {
		if r == ref("h/p", 'a') {
			return []Edge{e, e, e}, nil
		}
		return nil, nil
	})
	if g.Len() != 1 {
		t.Fatalf("expected duplicates to collapse to 1 edge, got %d", g.Len())
	}
}

func TestBuild_CollectsDiscoveryErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("bad descriptor entry")
	edges := []Edge{
		{Parent: ref("h/p", 'a'), Child: ref("h/q", '1'), Mount: "q"},
	}
	g, errs := Build([]RevisionRef{ref("h/p", 'a')}, func(r RevisionRef) ([]Edge, []error) {
		if r == ref("h/p", 'a') {
			return edges, []error{boom}
		}
		return nil, nil
	})
	if len(errs) != 1 || !errors.Is(errs[0], boom) {
		t.Fatalf("expected the discovery error to be collected, got %v", errs)
	}
	if g.Len() != 1 {
		t.Fatalf("expected graph build to continue past the error, got %d edges", g.Len())
	}
}
