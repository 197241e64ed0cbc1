// Package graph models the dependency graph implied by submodule pins across
// an arbitrary number of checked-out projects, and resolves it into one
// revision per repository relative to a chosen focus root.
package graph

import (
	"sort"

	"github.com/mmrepo/mmr/internal/store"
)

// RevisionRef is an immutable (repository, commit) pair. The revision is an
// opaque object id; it is never mutated once recorded.
type RevisionRef struct {
	Key      store.Key `json:"key"`
	Revision string    `json:"revision"`
}

func (r RevisionRef) String() string {
	rev := r.Revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	return r.Key.String() + "@" + rev
}

// Edge records that Parent, at its revision, pins Child at the child revision,
// mounted at Mount relative to the parent worktree. Duplicate edges collapse.
type Edge struct {
	Parent RevisionRef `json:"parent"`
	Child  RevisionRef `json:"child"`
	Mount  string      `json:"mount"`
}

// Graph is the aggregated multigraph of discovered edges. It tolerates cycles
// and diamonds; it is rebuilt from scratch on every discovery pass, never
// patched incrementally, so stale edges cannot survive.
type Graph struct {
	roots []RevisionRef
	edges map[Edge]struct{}
}

// Roots returns the root refs the graph was built from, in registration order.
func (g *Graph) Roots() []RevisionRef {
	return g.roots
}

// Edges returns the edge set in a deterministic order.
func (g *Graph) Edges() []Edge {
	edges := make([]Edge, 0, len(g.edges))
	for e := range g.edges {
		edges = append(edges, e)
	}
	sortEdges(edges)
	return edges
}

// Len returns the number of distinct edges.
func (g *Graph) Len() int { return len(g.edges) }

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.Parent != b.Parent {
			if a.Parent.Key != b.Parent.Key {
				return a.Parent.Key < b.Parent.Key
			}
			return a.Parent.Revision < b.Parent.Revision
		}
		if a.Mount != b.Mount {
			return a.Mount < b.Mount
		}
		if a.Child.Key != b.Child.Key {
			return a.Child.Key < b.Child.Key
		}
		return a.Child.Revision < b.Child.Revision
	})
}

// DiscoverFunc yields the edges declared at one revision. Per-edge failures
// come back in the error slice; discovery of the remaining edges continues.
type DiscoverFunc func(RevisionRef) ([]Edge, []error)

// Build walks the graph from every root, discovering each (repository,
// revision) pair exactly once. Memoizing on the pair guarantees termination on
// cycles, and because edges land in a set, the result is identical for any
// traversal order. Discovery errors are collected, not fatal.
func Build(roots []RevisionRef, discover DiscoverFunc) (*Graph, []error) {
	g := &Graph{edges: map[Edge]struct{}{}}
	visited := map[RevisionRef]struct{}{}
	var errs []error

	queue := make([]RevisionRef, 0, len(roots))
	for _, root := range roots {
		g.roots = append(g.roots, root)
		queue = append(queue, root)
	}
	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]
		if _, seen := visited[ref]; seen {
			continue
		}
		visited[ref] = struct{}{}

		edges, discErrs := discover(ref)
		errs = append(errs, discErrs...)
		for _, e := range edges {
			g.edges[e] = struct{}{}
			queue = append(queue, e.Child)
		}
	}
	return g, errs
}
