// Package storage persists the note graph.
//
// It defines the Backend contract shared by the on-disk Badger store and
// the in-memory store, along with the title search both of them serve.
package storage

import (
	"context"

	"github.com/Benny93/notemap/internal/graph"
)

// SearchResult is a note matched by a title search.
type SearchResult struct {
	// NoteID is the ID of the matching note.
	NoteID string `json:"id"`

	// Title is the display label of the note.
	Title string `json:"title"`

	// Category is the note category, if any.
	Category string `json:"category,omitempty"`

	// Score is the number of matched tokens (higher is better).
	Score float64 `json:"score"`
}

// Backend defines the interface for storage implementations.
//
// Implementations must be thread-safe. Links are stored once, in their
// canonical direction; GetLinks expands them into the adjacency records
// the extractor walks.
type Backend interface {
	// Lifecycle methods

	// Initialize opens or creates the store at the given path.
	// If readOnly is true, writes fail.
	Initialize(path string, readOnly bool) error

	// Close releases all resources held by the backend.
	Close() error

	// Bulk operations

	// BulkLoad replaces the entire store with the contents of the graph.
	BulkLoad(ctx context.Context, g *graph.FullGraph) error

	// LoadGraph reads the entire store into a new graph.
	LoadGraph(ctx context.Context) (*graph.FullGraph, error)

	// Note operations

	// AddNotes inserts or replaces notes.
	AddNotes(ctx context.Context, notes []*graph.Note) error

	// GetNote returns a single note by ID, or nil if not found.
	GetNote(ctx context.Context, id string) (*graph.Note, error)

	// RemoveNote deletes a note together with every link touching it and
	// returns the number of links removed.
	RemoveNote(ctx context.Context, id string) (int, error)

	// Link operations

	// AddLinks inserts links between existing notes. A link with the same
	// endpoints and kind replaces the stored one.
	AddLinks(ctx context.Context, links []graph.Connection) error

	// GetLinks returns the adjacency records of a note: outgoing links
	// first, then mirrored incoming links.
	GetLinks(ctx context.Context, id string) ([]graph.Link, error)

	// Search

	// SearchNotes finds notes whose title matches the query.
	SearchNotes(ctx context.Context, query string, limit int) ([]SearchResult, error)

	// Counts

	NoteCount() int
	LinkCount() int
}
