package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Benny93/notemap/internal/graph"
)

// MemoryBackend is an in-memory implementation of Backend with the same
// ordering and replacement rules as BadgerBackend.
type MemoryBackend struct {
	mu      sync.RWMutex
	notes   map[string]*graph.Note
	links   map[string]graph.Connection
	index   *titleIndex
	indexed bool
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates a new in-memory storage backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		notes: make(map[string]*graph.Note),
		links: make(map[string]graph.Connection),
		index: newTitleIndex(),
	}
}

// Initialize implements Backend.
func (m *MemoryBackend) Initialize(path string, readOnly bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexed = true
	return nil
}

// IsIndexed reports whether Initialize or BulkLoad ran.
func (m *MemoryBackend) IsIndexed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indexed
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes = make(map[string]*graph.Note)
	m.links = make(map[string]graph.Connection)
	m.index = newTitleIndex()
	return nil
}

// BulkLoad implements Backend.
func (m *MemoryBackend) BulkLoad(ctx context.Context, g *graph.FullGraph) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.notes = make(map[string]*graph.Note)
	m.links = make(map[string]graph.Connection)
	m.index = newTitleIndex()

	for _, note := range g.Notes() {
		m.notes[note.ID] = note
		m.index.add(note)
	}
	for _, c := range g.Connections() {
		m.links[linkID(c)] = c
	}
	m.indexed = true
	return nil
}

// LoadGraph implements Backend.
func (m *MemoryBackend) LoadGraph(ctx context.Context) (*graph.FullGraph, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g := graph.NewFullGraph()
	for _, note := range m.notes {
		g.AddNote(note)
	}

	ids := make([]string, 0, len(m.links))
	for id := range m.links {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		c := m.links[id]
		if err := g.AddConnection(c); err != nil {
			return nil, fmt.Errorf("loading link %s -> %s: %w", c.From, c.To, err)
		}
	}
	return g, nil
}

// AddNotes implements Backend.
func (m *MemoryBackend) AddNotes(ctx context.Context, notes []*graph.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, note := range notes {
		m.notes[note.ID] = note
		m.index.add(note)
	}
	return nil
}

// GetNote implements Backend.
func (m *MemoryBackend) GetNote(ctx context.Context, id string) (*graph.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.notes[id], nil
}

// RemoveNote implements Backend.
func (m *MemoryBackend) RemoveNote(ctx context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.notes[id]; !ok {
		return 0, fmt.Errorf("note %q: %w", id, graph.ErrNoteNotFound)
	}

	removed := 0
	for lid, c := range m.links {
		if c.From == id || c.To == id {
			delete(m.links, lid)
			removed++
		}
	}
	delete(m.notes, id)
	m.index.remove(id)
	return removed, nil
}

// AddLinks implements Backend.
func (m *MemoryBackend) AddLinks(ctx context.Context, links []graph.Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range links {
		if err := validateConnection(c); err != nil {
			return err
		}
		for _, end := range []string{c.From, c.To} {
			if _, ok := m.notes[end]; !ok {
				return fmt.Errorf("link %s -> %s: note %q: %w", c.From, c.To, end, graph.ErrNoteNotFound)
			}
		}
	}
	for _, c := range links {
		m.links[linkID(c)] = c
	}
	return nil
}

// GetLinks implements Backend.
func (m *MemoryBackend) GetLinks(ctx context.Context, id string) ([]graph.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out, in []string
	for lid, c := range m.links {
		if c.From == id {
			out = append(out, lid)
		}
		if c.To == id {
			in = append(in, lid)
		}
	}
	sort.Strings(out)
	sort.Strings(in)

	var links []graph.Link
	for _, lid := range out {
		c := m.links[lid]
		links = append(links, graph.Link{Neighbor: c.To, Kind: c.Kind, Strength: c.Strength})
	}
	for _, lid := range in {
		c := m.links[lid]
		links = append(links, graph.Link{Neighbor: c.From, Kind: c.Kind.Opposing(), Strength: -c.Strength})
	}
	return links, nil
}

// SearchNotes implements Backend.
func (m *MemoryBackend) SearchNotes(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.index.search(query, limit, func(id string) *graph.Note {
		return m.notes[id]
	}), nil
}

// NoteCount implements Backend.
func (m *MemoryBackend) NoteCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.notes)
}

// LinkCount implements Backend.
func (m *MemoryBackend) LinkCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.links)
}
