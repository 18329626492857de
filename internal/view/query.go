package view

import (
	"fmt"

	"github.com/Benny93/notemap/internal/frame"
	"github.com/Benny93/notemap/internal/graph"
	"github.com/Benny93/notemap/internal/layout"
	"github.com/Benny93/notemap/internal/subgraph"
)

const (
	// DefaultDepth is used when a query leaves the depth unset.
	DefaultDepth = 2

	// MaxDepth caps the expansion rounds of a query.
	MaxDepth = 8
)

// Query selects the subgraph a view displays.
type Query struct {
	Root            string   `json:"root"`
	Depth           int      `json:"depth,omitempty"`
	Categories      []string `json:"categories,omitempty"`
	ParentChildOnly bool     `json:"parent_child_only,omitempty"`
}

// Normalized fills defaults and clamps the depth.
func (q Query) Normalized() Query {
	if q.Depth <= 0 {
		q.Depth = DefaultDepth
	}
	if q.Depth > MaxDepth {
		q.Depth = MaxDepth
	}
	return q
}

// Extract runs the query against g. An unknown root is an error.
func Extract(g *graph.FullGraph, q Query) (subgraph.Subgraph, error) {
	q = q.Normalized()
	if !g.HasNote(q.Root) {
		return subgraph.Subgraph{}, fmt.Errorf("root %q: %w", q.Root, graph.ErrNoteNotFound)
	}

	opts := subgraph.Options{
		NodeFilter:   subgraph.CategoryFilter(g, q.Categories...),
		IsTerminator: subgraph.TerminatorFilter(g),
	}
	if q.ParentChildOnly {
		opts.KindFilter = subgraph.ParentChildOnly
	}
	return subgraph.Extract(g, q.Root, q.Depth, opts), nil
}

// Specs converts a subgraph into simulation input, sizing labels from
// note titles. It also returns the metadata of every node.
func Specs(g *graph.FullGraph, sub subgraph.Subgraph) ([]layout.NodeSpec, []layout.LinkSpec, map[string]*graph.Note) {
	nodes := make([]layout.NodeSpec, 0, len(sub.Nodes))
	notes := make(map[string]*graph.Note, len(sub.Nodes))
	for _, id := range sub.Nodes {
		label := id
		if note := g.GetNote(id); note != nil {
			notes[id] = note
			label = note.Label()
		}
		w, h := layout.LabelFootprint(label)
		nodes = append(nodes, layout.NodeSpec{ID: id, Width: w, Height: h})
	}

	links := make([]layout.LinkSpec, 0, len(sub.Edges))
	for _, e := range sub.Edges {
		links = append(links, layout.LinkSpec{Source: e.Source, Target: e.Target, Strength: e.Strength, Kind: e.Kind})
	}
	return nodes, links, notes
}

// Compute lays out a query headless and returns the settled frame. The
// frame reports Running when maxFrames ran out first.
func Compute(g *graph.FullGraph, q Query, params layout.Params, maxFrames int) (Frame, error) {
	sub, err := Extract(g, q)
	if err != nil {
		return Frame{}, err
	}
	nodes, links, notes := Specs(g, sub)

	sim := layout.New(params)
	sim.SetGraph(nodes, links)
	frame.Settle(sim, maxFrames, nil)

	return buildFrame("", sub.Root, sim.Snapshot(), notes), nil
}
