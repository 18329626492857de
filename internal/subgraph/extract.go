// Package subgraph extracts the bounded region of the note graph that a
// single view displays.
//
// Extraction is a round-based breadth-first expansion from a root note.
// Each round expands every note discovered in the previous one, so depth
// counts expansion rounds rather than hops on the final edge list:
// terminator notes are kept when reached but never expanded.
package subgraph

import (
	"github.com/Benny93/notemap/internal/graph"
)

// Adjacency is the read side of a note graph needed for extraction.
type Adjacency interface {
	Links(id string) []graph.Link
}

// NoteLookup resolves note metadata by ID.
type NoteLookup interface {
	GetNote(id string) *graph.Note
}

// NodeFilter reports whether a note may take part in the subgraph.
type NodeFilter func(id string) bool

// KindFilter reports whether references of a kind may be followed.
type KindFilter func(kind graph.RefKind) bool

// Options holds the filter predicates of an extraction. Nil predicates
// accept everything (or, for IsTerminator, nothing).
type Options struct {
	NodeFilter   NodeFilter
	KindFilter   KindFilter
	IsTerminator NodeFilter
}

// Edge is one resolved reference in a subgraph. Strength is always positive.
type Edge struct {
	Source   string        `json:"source"`
	Target   string        `json:"target"`
	Strength float64       `json:"strength"`
	Kind     graph.RefKind `json:"kind"`
}

// Subgraph is the extraction result: the notes to display, root first in
// discovery order, and the deduplicated references between them.
type Subgraph struct {
	Root  string   `json:"root"`
	Nodes []string `json:"nodes"`
	Edges []Edge   `json:"edges"`
}

// Contains reports whether id is one of the subgraph's nodes.
func (s Subgraph) Contains(id string) bool {
	for _, n := range s.Nodes {
		if n == id {
			return true
		}
	}
	return false
}

// Empty reports whether there is nothing to lay out.
func (s Subgraph) Empty() bool {
	return len(s.Nodes) == 0
}

// ParentChildOnly restricts expansion to hierarchical references.
func ParentChildOnly(kind graph.RefKind) bool {
	return kind.IsHierarchical()
}

// CategoryFilter accepts notes whose category is one of categories. It
// returns nil, accepting everything, when no category is given.
func CategoryFilter(notes NoteLookup, categories ...string) NodeFilter {
	if len(categories) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(categories))
	for _, c := range categories {
		allowed[c] = true
	}
	return func(id string) bool {
		n := notes.GetNote(id)
		return n != nil && allowed[n.Category]
	}
}

// TerminatorFilter flags notes whose metadata marks them as terminators.
func TerminatorFilter(notes NoteLookup) NodeFilter {
	return func(id string) bool {
		n := notes.GetNote(id)
		return n != nil && n.Terminator
	}
}

// orderedSet is an insertion-ordered string set.
type orderedSet struct {
	index map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{index: make(map[string]struct{})}
}

func (s *orderedSet) add(id string) bool {
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = struct{}{}
	s.items = append(s.items, id)
	return true
}

func (s *orderedSet) len() int {
	return len(s.items)
}

// Extract computes the subgraph around root. Up to depth rounds of
// expansion are performed; extraction stops early once a round discovers
// nothing new.
func Extract(g Adjacency, root string, depth int, opts Options) Subgraph {
	accept := opts.NodeFilter
	if accept == nil {
		accept = func(string) bool { return true }
	}
	follow := opts.KindFilter
	if follow == nil {
		follow = func(graph.RefKind) bool { return true }
	}
	isTerminator := opts.IsTerminator
	if isTerminator == nil {
		isTerminator = func(string) bool { return false }
	}

	result := Subgraph{Root: root}
	reached := newOrderedSet()
	visited := make(map[string]bool)
	raw := newEdgeSet()

	future := newOrderedSet()
	if accept(root) {
		future.add(root)
		reached.add(root)
	}

	for round := 0; round < depth && future.len() > 0; round++ {
		active := make([]string, 0, future.len())
		for _, id := range future.items {
			if !visited[id] && !isTerminator(id) {
				active = append(active, id)
			}
		}
		future = newOrderedSet()

		for _, id := range active {
			for _, l := range g.Links(id) {
				if !accept(l.Neighbor) || !follow(l.Kind) {
					continue
				}
				raw.add(Edge{Source: id, Target: l.Neighbor, Strength: l.Strength, Kind: l.Kind})
				if !visited[l.Neighbor] {
					future.add(l.Neighbor)
					reached.add(l.Neighbor)
				}
			}
			visited[id] = true
		}
	}

	result.Nodes = reached.items
	result.Edges = Dedup(raw.items)
	return result
}

// edgeSet records raw directed records once each, in first-seen order.
type edgeSet struct {
	index map[Edge]struct{}
	items []Edge
}

func newEdgeSet() *edgeSet {
	return &edgeSet{index: make(map[Edge]struct{})}
}

func (s *edgeSet) add(e Edge) {
	if _, ok := s.index[e]; ok {
		return
	}
	s.index[e] = struct{}{}
	s.items = append(s.items, e)
}
