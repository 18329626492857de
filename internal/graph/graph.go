package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrNoteNotFound is returned when a note ID is not present in a graph or store.
	ErrNoteNotFound = errors.New("note not found")

	// ErrInvalidLink is returned for links with an unknown kind or a
	// non-positive strength.
	ErrInvalidLink = errors.New("invalid link")
)

// FullGraph is the process-wide adjacency structure of all notes.
//
// Every reference is stored as two directed records: the canonical one at
// its source with positive strength, and a mirrored one at its target with
// the opposing kind and negated strength. Adjacency lists keep insertion
// order so traversals over the graph are deterministic.
type FullGraph struct {
	mu        sync.RWMutex
	notes     map[string]*Note
	adjacency map[string][]Link

	// Secondary index kept in sync by the add/remove helpers.
	byCategory map[string]map[string]*Note
	linkCount  int
}

// NewFullGraph creates a new empty graph.
func NewFullGraph() *FullGraph {
	return &FullGraph{
		notes:      make(map[string]*Note),
		adjacency:  make(map[string][]Link),
		byCategory: make(map[string]map[string]*Note),
	}
}

// NoteCount returns the number of notes.
func (g *FullGraph) NoteCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.notes)
}

// LinkCount returns the number of canonical references. Mirrored records
// are not counted.
func (g *FullGraph) LinkCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.linkCount
}

// CountByCategory returns the number of notes in the given category.
func (g *FullGraph) CountByCategory(category string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.byCategory[category])
}

// AddNote adds a note, replacing any existing note with the same ID.
func (g *FullGraph) AddNote(note *Note) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if old, ok := g.notes[note.ID]; ok && old.Category != note.Category {
		delete(g.byCategory[old.Category], note.ID)
	}

	g.notes[note.ID] = note

	if g.byCategory[note.Category] == nil {
		g.byCategory[note.Category] = make(map[string]*Note)
	}
	g.byCategory[note.Category][note.ID] = note
}

// GetNote returns the note with the given ID, or nil if it does not exist.
func (g *FullGraph) GetNote(id string) *Note {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.notes[id]
}

// HasNote reports whether a note with the given ID exists.
func (g *FullGraph) HasNote(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.notes[id]
	return ok
}

// AddLink records a reference from one note to another. It stores the
// canonical record at from and the mirrored record at to.
func (g *FullGraph) AddLink(from, to string, kind RefKind, strength float64) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: kind %q", ErrInvalidLink, kind)
	}
	if !(strength > 0) {
		return fmt.Errorf("%w: strength %v must be positive", ErrInvalidLink, strength)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.adjacency[from] = append(g.adjacency[from], Link{Neighbor: to, Kind: kind, Strength: strength})
	g.adjacency[to] = append(g.adjacency[to], Link{Neighbor: from, Kind: kind.Opposing(), Strength: -strength})
	g.linkCount++
	return nil
}

// AddConnection is AddLink for a Connection value.
func (g *FullGraph) AddConnection(c Connection) error {
	return g.AddLink(c.From, c.To, c.Kind, c.Strength)
}

// Links returns a copy of the ordered adjacency records stored at id.
func (g *FullGraph) Links(id string) []Link {
	g.mu.RLock()
	defer g.mu.RUnlock()

	links := g.adjacency[id]
	if len(links) == 0 {
		return nil
	}
	out := make([]Link, len(links))
	copy(out, links)
	return out
}

// Degree returns the number of adjacency records at id, mirrored ones included.
func (g *FullGraph) Degree(id string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.adjacency[id])
}

// Connections returns every canonical reference, ordered by source note ID
// and then by insertion order.
func (g *FullGraph) Connections() []Connection {
	g.mu.RLock()
	defer g.mu.RUnlock()

	sources := make([]string, 0, len(g.adjacency))
	for id := range g.adjacency {
		sources = append(sources, id)
	}
	sort.Strings(sources)

	out := make([]Connection, 0, g.linkCount)
	for _, from := range sources {
		for _, l := range g.adjacency[from] {
			if l.Forward() {
				out = append(out, Connection{From: from, To: l.Neighbor, Kind: l.Kind, Strength: l.Strength})
			}
		}
	}
	return out
}

// RemoveNote removes a note and every adjacency record that references it,
// on both endpoints. Returns true if the note or any of its records existed.
func (g *FullGraph) RemoveNote(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	note, hadNote := g.notes[id]
	if hadNote {
		delete(g.notes, id)
		delete(g.byCategory[note.Category], id)
	}

	links, hadLinks := g.adjacency[id]
	for _, l := range links {
		if l.Forward() {
			g.linkCount--
		}
		if l.Neighbor == id {
			continue
		}
		g.adjacency[l.Neighbor] = dropNeighbor(g.adjacency[l.Neighbor], id, &g.linkCount)
		if len(g.adjacency[l.Neighbor]) == 0 {
			delete(g.adjacency, l.Neighbor)
		}
	}
	delete(g.adjacency, id)

	return hadNote || hadLinks
}

// dropNeighbor filters out records pointing at id. Forward records removed
// here belong to the neighbor and are subtracted from count.
func dropNeighbor(links []Link, id string, count *int) []Link {
	kept := links[:0]
	for _, l := range links {
		if l.Neighbor == id {
			if l.Forward() {
				*count--
			}
			continue
		}
		kept = append(kept, l)
	}
	return kept
}

// IterNotes returns a channel that yields all notes.
func (g *FullGraph) IterNotes() <-chan *Note {
	g.mu.RLock()
	ch := make(chan *Note, len(g.notes))
	for _, note := range g.notes {
		ch <- note
	}
	close(ch)
	g.mu.RUnlock()
	return ch
}

// Notes returns all notes sorted by ID.
func (g *FullGraph) Notes() []*Note {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*Note, 0, len(g.notes))
	for _, n := range g.notes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NotesByCategory returns all notes in the given category.
func (g *FullGraph) NotesByCategory(category string) []*Note {
	g.mu.RLock()
	defer g.mu.RUnlock()

	notes, ok := g.byCategory[category]
	if !ok {
		return nil
	}
	result := make([]*Note, 0, len(notes))
	for _, n := range notes {
		result = append(result, n)
	}
	return result
}

// Categories returns the distinct non-empty categories, sorted.
func (g *FullGraph) Categories() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]string, 0, len(g.byCategory))
	for c, notes := range g.byCategory {
		if c != "" && len(notes) > 0 {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// Stats returns a summary of graph size.
func (g *FullGraph) Stats() map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return map[string]int{
		"notes": len(g.notes),
		"links": g.linkCount,
	}
}
