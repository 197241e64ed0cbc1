package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mmrepo/mmr/internal/store"
)

// Demand is one side of a diamond: a revision requested for a repository, the
// shortest distance from the focus root at which it was requested, and the
// edges that requested it.
type Demand struct {
	Revision string `json:"revision"`
	Depth    int    `json:"depth"`
	Edges    []Edge `json:"edges,omitempty"`
}

// Conflict records a repository reachable with divergent pins. The chosen
// revision is the one demanded closest to the root, ties broken by the
// lexicographically smallest commit id. The record is retained even though the
// conflict is auto-resolved, so callers can treat diamonds as fatal.
type Conflict struct {
	Key     store.Key `json:"key"`
	Chosen  string    `json:"chosen"`
	Demands []Demand  `json:"demands"`
}

// ConflictError is the strict-mode surface for unresolved diamonds.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	keys := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		keys[i] = c.Key.String()
	}
	return fmt.Sprintf("divergent revisions for %s", strings.Join(keys, ", "))
}

// VersionMap assigns one resolved revision per repository reachable from the
// focus root. Conflicts are surfaced, never silently dropped.
type VersionMap struct {
	Root      store.Key                 `json:"root"`
	Revisions map[store.Key]RevisionRef `json:"revisions"`
	Conflicts []Conflict                `json:"conflicts,omitempty"`
}

// Keys returns the mapped repository keys in sorted order.
func (m *VersionMap) Keys() []store.Key {
	keys := make([]store.Key, 0, len(m.Revisions))
	for k := range m.Revisions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Render produces the canonical textual form of the map, one "key=revision"
// line per repository in key order. Two maps render identically iff they
// assign the same revisions, which makes the rendering diffable.
func (m *VersionMap) Render() string {
	var b strings.Builder
	for _, k := range m.Keys() {
		b.WriteString(k.String())
		b.WriteString("=")
		b.WriteString(m.Revisions[k].Revision)
		b.WriteString("\n")
	}
	return b.String()
}

// Edges returns the graph edges that are live under the map: those whose
// parent pin matches the resolved revision of the parent repository.
func (m *VersionMap) Edges(g *Graph) []Edge {
	var live []Edge
	for _, e := range g.Edges() {
		resolved, ok := m.Revisions[e.Parent.Key]
		if !ok || resolved.Revision != e.Parent.Revision {
			continue
		}
		live = append(live, e)
	}
	return live
}

// Resolve restricts the graph to what is reachable from focusRoot and assigns
// each reachable repository exactly one revision. It is a pure function of
// (graph, focusRoot): same inputs, same map, same conflict list. Roots not
// reachable from focusRoot stay out of the map by design; consistency is
// scoped to one focus span, not the whole universe.
func Resolve(g *Graph, focusRoot store.Key) (*VersionMap, error) {
	var start []RevisionRef
	for _, root := range g.roots {
		if root.Key == focusRoot {
			start = append(start, root)
		}
	}
	if len(start) == 0 {
		return nil, fmt.Errorf("focus root %s is not a root of the graph", focusRoot)
	}

	// Shortest distance from the root per reachable ref, breadth-first.
	byChild := map[RevisionRef][]Edge{}
	for e := range g.edges {
		byChild[e.Parent] = append(byChild[e.Parent], e)
	}
	depth := map[RevisionRef]int{}
	queue := make([]RevisionRef, 0, len(start))
	for _, ref := range start {
		depth[ref] = 0
		queue = append(queue, ref)
	}
	// Edges demanding each reachable ref, for conflict reporting.
	demandEdges := map[RevisionRef][]Edge{}
	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]
		for _, e := range byChild[ref] {
			demandEdges[e.Child] = append(demandEdges[e.Child], e)
			if _, seen := depth[e.Child]; seen {
				continue
			}
			depth[e.Child] = depth[ref] + 1
			queue = append(queue, e.Child)
		}
	}

	// Group reachable refs by repository and pick one revision each.
	demands := map[store.Key][]Demand{}
	for ref, d := range depth {
		edges := append([]Edge(nil), demandEdges[ref]...)
		sortEdges(edges)
		demands[ref.Key] = append(demands[ref.Key], Demand{
			Revision: ref.Revision,
			Depth:    d,
			Edges:    edges,
		})
	}

	m := &VersionMap{Root: focusRoot, Revisions: map[store.Key]RevisionRef{}}
	for key, ds := range demands {
		sort.Slice(ds, func(i, j int) bool {
			if ds[i].Depth != ds[j].Depth {
				return ds[i].Depth < ds[j].Depth
			}
			return ds[i].Revision < ds[j].Revision
		})
		m.Revisions[key] = RevisionRef{Key: key, Revision: ds[0].Revision}
		if len(ds) > 1 {
			m.Conflicts = append(m.Conflicts, Conflict{
				Key:     key,
				Chosen:  ds[0].Revision,
				Demands: ds,
			})
		}
	}
	sort.Slice(m.Conflicts, func(i, j int) bool { return m.Conflicts[i].Key < m.Conflicts[j].Key })
	return m, nil
}
