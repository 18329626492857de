package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/Benny93/notemap/internal/graph"
	"github.com/Benny93/notemap/internal/storage"
)

// Source produces a complete note graph.
type Source interface {
	Load(ctx context.Context) (*graph.FullGraph, error)
	String() string
}

// PathSource reads a document file or a directory of documents.
type PathSource struct {
	Path string
}

// Load implements Source.
func (s PathSource) Load(ctx context.Context) (*graph.FullGraph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return LoadPath(s.Path)
}

func (s PathSource) String() string {
	return s.Path
}

// ImportResult summarizes an import run.
type ImportResult struct {
	Notes        int     `json:"notes"`
	Links        int     `json:"links"`
	Categories   int     `json:"categories"`
	Terminators  int     `json:"terminators"`
	Orphans      int     `json:"orphans"`
	DurationSecs float64 `json:"duration_secs"`
}

// ProgressCallback is called with phase name and progress (0.0-1.0).
type ProgressCallback func(phase string, progress float64)

// Import loads src and replaces the contents of store with it.
func Import(ctx context.Context, src Source, store storage.Backend, progress ProgressCallback) (*graph.FullGraph, *ImportResult, error) {
	start := time.Now()
	report := func(phase string, p float64) {
		if progress != nil {
			progress(phase, p)
		}
	}

	report("Reading notes", 0.0)
	g, err := src.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", src, err)
	}
	report("Reading notes", 1.0)

	report("Analyzing graph", 0.0)
	result := Summarize(g)
	report("Analyzing graph", 1.0)

	report("Storing", 0.0)
	if err := store.BulkLoad(ctx, g); err != nil {
		return nil, nil, fmt.Errorf("storing graph: %w", err)
	}
	report("Storing", 1.0)

	result.DurationSecs = time.Since(start).Seconds()
	return g, result, nil
}

// Summarize counts the notes, links and shape of g.
func Summarize(g *graph.FullGraph) *ImportResult {
	result := &ImportResult{
		Notes:      g.NoteCount(),
		Links:      g.LinkCount(),
		Categories: len(g.Categories()),
	}
	for note := range g.IterNotes() {
		if note.Terminator {
			result.Terminators++
		}
		if g.Degree(note.ID) == 0 {
			result.Orphans++
		}
	}
	return result
}
