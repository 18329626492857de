// Package ingestion reads note graphs from their sources.
//
// Notes come from JSON documents on disk, a directory of such documents or
// a Neo4j database. Import runs a source into a storage backend and Watch
// reloads a path whenever it changes.
package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Benny93/notemap/internal/graph"
)

// NoteRecord is a note as written in a document.
type NoteRecord struct {
	ID         string `json:"id"`
	Title      string `json:"title,omitempty"`
	Category   string `json:"category,omitempty"`
	Terminator bool   `json:"terminator,omitempty"`
}

// LinkRecord is a reference as written in a document. Kind defaults to
// "ref" and Strength to 1.
type LinkRecord struct {
	From     string   `json:"from"`
	To       string   `json:"to"`
	Kind     string   `json:"kind,omitempty"`
	Strength *float64 `json:"strength,omitempty"`
}

// Document is the on-disk form of a note graph.
type Document struct {
	Notes []NoteRecord `json:"notes"`
	Links []LinkRecord `json:"links"`
}

// DecodeDocument parses one JSON document.
func DecodeDocument(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	return &doc, nil
}

// Merge appends the notes and links of other.
func (d *Document) Merge(other *Document) {
	d.Notes = append(d.Notes, other.Notes...)
	d.Links = append(d.Links, other.Links...)
}

// AddTo adds every note and then every link to g. Links may only reference
// notes that are in g once all notes are added.
func (d *Document) AddTo(g *graph.FullGraph) error {
	for i, n := range d.Notes {
		if n.ID == "" {
			return fmt.Errorf("note %d: missing id", i)
		}
		g.AddNote(&graph.Note{ID: n.ID, Title: n.Title, Category: n.Category, Terminator: n.Terminator})
	}

	var errs []error
	for _, l := range d.Links {
		c, err := l.Connection()
		if err == nil {
			for _, end := range []string{c.From, c.To} {
				if !g.HasNote(end) {
					err = fmt.Errorf("note %q: %w", end, graph.ErrNoteNotFound)
					break
				}
			}
		}
		if err == nil {
			err = g.AddConnection(c)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("link %s -> %s: %w", l.From, l.To, err))
		}
	}
	return errors.Join(errs...)
}

// Connection converts the record, applying defaults.
func (l LinkRecord) Connection() (graph.Connection, error) {
	kind, err := graph.ParseRefKind(l.Kind)
	if err != nil {
		return graph.Connection{}, fmt.Errorf("%w: %v", graph.ErrInvalidLink, err)
	}
	strength := 1.0
	if l.Strength != nil {
		strength = *l.Strength
	}
	return graph.Connection{From: l.From, To: l.To, Kind: kind, Strength: strength}, nil
}

// LoadDocument reads a single document into a new graph.
func LoadDocument(r io.Reader) (*graph.FullGraph, error) {
	doc, err := DecodeDocument(r)
	if err != nil {
		return nil, err
	}
	g := graph.NewFullGraph()
	if err := doc.AddTo(g); err != nil {
		return nil, err
	}
	return g, nil
}

// LoadFile reads the document at path.
func LoadFile(path string) (*graph.FullGraph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	g, err := LoadDocument(f)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return g, nil
}
