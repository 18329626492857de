package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/Benny93/notemap/internal/graph"
	"github.com/Benny93/notemap/internal/ingestion"
	"github.com/Benny93/notemap/internal/storage"
	"github.com/Benny93/notemap/internal/subgraph"
	"github.com/Benny93/notemap/internal/view"
)

// StatsCmd shows the shape of the stored graph.
type StatsCmd struct{}

// Run executes the stats command.
func (c *StatsCmd) Run(g *Globals) error {
	ctx := context.Background()
	store, err := g.openStore(true)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	full, err := store.LoadGraph(ctx)
	if err != nil {
		return fmt.Errorf("loading graph: %w", err)
	}
	summary := ingestion.Summarize(full)

	w := g.out()
	fmt.Fprintf(w, "Store %s\n", g.Store)
	if meta, err := readMeta(g.Store); err == nil {
		fmt.Fprintf(w, "  Source:       %s\n", meta.Source)
		fmt.Fprintf(w, "  Imported:     %s\n", meta.ImportedAt)
	}
	fmt.Fprintf(w, "  Notes:        %d\n", summary.Notes)
	fmt.Fprintf(w, "  Links:        %d\n", summary.Links)
	fmt.Fprintf(w, "  Terminators:  %d\n", summary.Terminators)
	fmt.Fprintf(w, "  Orphans:      %d\n", summary.Orphans)

	categories := full.Categories()
	fmt.Fprintf(w, "  Categories:   %d\n", len(categories))
	for _, cat := range categories {
		fmt.Fprintf(w, "    %-20s %d\n", cat, full.CountByCategory(cat))
	}
	return nil
}

// SearchCmd searches notes by title.
type SearchCmd struct {
	Query string `arg:"" help:"Search query"`
	Limit int    `short:"n" default:"20" help:"Maximum results"`
}

// Run executes the search command.
func (c *SearchCmd) Run(g *Globals) error {
	ctx := context.Background()
	store, err := g.openStore(true)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	results, err := store.SearchNotes(ctx, c.Query, c.Limit)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}

	w := g.out()
	if len(results) == 0 {
		fmt.Fprintln(w, "No results found")
		return nil
	}

	for i, r := range results {
		fmt.Fprintf(w, "%d. %s (%s)", i+1, r.Title, r.NoteID)
		if r.Category != "" {
			fmt.Fprintf(w, " [%s]", r.Category)
		}
		fmt.Fprintf(w, " score %.0f\n", r.Score)
	}
	return nil
}

// NoteCmd shows a note with its references.
type NoteCmd struct {
	Note string `arg:"" help:"Note ID or title"`
}

// Run executes the note command.
func (c *NoteCmd) Run(g *Globals) error {
	ctx := context.Background()
	store, err := g.openStore(true)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	w := g.out()
	id, err := findNote(ctx, store, c.Note)
	if err != nil {
		return err
	}
	if id == "" {
		fmt.Fprintf(w, "Note '%s' not found.\n", c.Note)
		return nil
	}

	note, err := store.GetNote(ctx, id)
	if err != nil {
		return err
	}
	links, err := store.GetLinks(ctx, id)
	if err != nil {
		return err
	}

	color.New(color.Bold).Fprintf(w, "%s", note.Label())
	fmt.Fprintf(w, " (%s)\n", note.ID)
	if note.Category != "" {
		fmt.Fprintf(w, "Category: %s\n", note.Category)
	}
	if note.Terminator {
		fmt.Fprintln(w, "Terminator: traversal stops here")
	}
	fmt.Fprintln(w)

	var outgoing, incoming []graph.Link
	for _, l := range links {
		if l.Forward() {
			outgoing = append(outgoing, l)
		} else {
			incoming = append(incoming, l)
		}
	}

	fmt.Fprintf(w, "References (%d)\n", len(outgoing))
	for _, l := range outgoing {
		fmt.Fprintf(w, "  -> %s (%s, %g)\n", l.Neighbor, l.Kind, l.Strength)
	}
	fmt.Fprintf(w, "Referenced by (%d)\n", len(incoming))
	for _, l := range incoming {
		fmt.Fprintf(w, "  <- %s (%s, %g)\n", l.Neighbor, l.Kind.Opposing(), -l.Strength)
	}
	return nil
}

// QueryFlags select the notes around a root.
type QueryFlags struct {
	Depth       int      `short:"d" default:"2" help:"Expansion rounds (max 8)"`
	Category    []string `short:"c" help:"Only include notes of these categories"`
	ParentChild bool     `help:"Follow parent/child references only"`
}

func (f QueryFlags) query(root string) view.Query {
	return view.Query{
		Root:            root,
		Depth:           f.Depth,
		Categories:      f.Category,
		ParentChildOnly: f.ParentChild,
	}.Normalized()
}

// loadQueryGraph loads the stored graph and resolves root.
func loadQueryGraph(ctx context.Context, store storage.Backend, root string) (*graph.FullGraph, string, error) {
	id, err := findNote(ctx, store, root)
	if err != nil {
		return nil, "", err
	}
	if id == "" {
		return nil, "", fmt.Errorf("note '%s': %w", root, graph.ErrNoteNotFound)
	}
	full, err := store.LoadGraph(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("loading graph: %w", err)
	}
	return full, id, nil
}

// SubgraphCmd prints the notes and references around a root.
type SubgraphCmd struct {
	Root   string     `arg:"" help:"Root note ID or title"`
	Query  QueryFlags `embed:""`
	Format string     `short:"f" enum:"table,json" default:"table" help:"Output format (table|json)"`
}

// Run executes the subgraph command.
func (c *SubgraphCmd) Run(g *Globals) error {
	ctx := context.Background()
	store, err := g.openStore(true)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	full, root, err := loadQueryGraph(ctx, store, c.Root)
	if err != nil {
		return err
	}
	q := c.Query.query(root)
	sub, err := view.Extract(full, q)
	if err != nil {
		return err
	}

	if c.Format == "json" {
		return writeIndentedJSON(g.out(), sub)
	}
	printSubgraph(g.out(), full, q, sub)
	return nil
}

func printSubgraph(w io.Writer, full *graph.FullGraph, q view.Query, sub subgraph.Subgraph) {
	fmt.Fprintf(w, "Subgraph around %s (depth %d): %d notes, %d references\n\n",
		sub.Root, q.Depth, len(sub.Nodes), len(sub.Edges))

	fmt.Fprintln(w, "Notes")
	for _, id := range sub.Nodes {
		label := id
		if note := full.GetNote(id); note != nil {
			label = note.Label()
		}
		fmt.Fprintf(w, "  %-30s %s\n", label, id)
	}

	fmt.Fprintln(w, "References")
	for _, e := range sub.Edges {
		fmt.Fprintf(w, "  %s -> %s (%s, %g)\n", e.Source, e.Target, e.Kind, e.Strength)
	}
}

// LayoutCmd settles a layout headless and prints node positions.
type LayoutCmd struct {
	Root      string     `arg:"" help:"Root note ID or title"`
	Query     QueryFlags `embed:""`
	MaxFrames int        `default:"1000" help:"Give up after this many ticks"`
	Format    string     `short:"f" enum:"table,json" default:"table" help:"Output format (table|json)"`
}

// Run executes the layout command.
func (c *LayoutCmd) Run(g *Globals) error {
	params, err := g.Sim.Params()
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := g.openStore(true)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	full, root, err := loadQueryGraph(ctx, store, c.Root)
	if err != nil {
		return err
	}
	f, err := view.Compute(full, c.Query.query(root), params, c.MaxFrames)
	if err != nil {
		return err
	}
	return printFrame(g.out(), f, c.Format)
}

func printFrame(w io.Writer, f view.Frame, format string) error {
	if format == "json" {
		return writeIndentedJSON(w, f)
	}

	fmt.Fprintf(w, "%-30s %10s %10s\n", "NOTE", "X", "Y")
	for _, n := range f.Nodes {
		title := n.Title
		if len(title) > 30 {
			title = title[:27] + "..."
		}
		fmt.Fprintf(w, "%-30s %10.1f %10.1f\n", title, n.X, n.Y)
	}

	if f.Running {
		color.New(color.FgYellow).Fprintf(w, "Stopped after %d ticks before settling\n", f.Tick)
	} else {
		fmt.Fprintf(w, "Settled after %d ticks\n", f.Tick)
	}
	return nil
}

func writeIndentedJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
