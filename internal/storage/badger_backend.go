package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/Benny93/notemap/internal/graph"
)

// Key prefixes for different data types
const (
	prefixNote     = "n:"     // note data
	prefixLink     = "l:"     // canonical link data
	prefixOutgoing = "i:out:" // outgoing links of a note
	prefixIncoming = "i:in:"  // incoming links of a note
)

// keySep separates the parts of composite keys. Note IDs never contain it.
const keySep = "\x00"

var (
	errNotInitialized = errors.New("storage not initialized")
	errReadOnly       = errors.New("storage opened read-only")
)

// BadgerBackend is a BadgerDB-backed storage implementation.
type BadgerBackend struct {
	db          *badger.DB
	initialized bool
	readOnly    bool
	mu          sync.RWMutex
	noteCount   int
	linkCount   int
	index       *titleIndex
}

var _ Backend = (*BadgerBackend)(nil)

// NewBadgerBackend creates a new BadgerDB backend.
func NewBadgerBackend() *BadgerBackend {
	return &BadgerBackend{index: newTitleIndex()}
}

// Initialize opens or creates the BadgerDB database at the given path.
func (b *BadgerBackend) Initialize(path string, readOnly bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	opts := badger.DefaultOptions(path).
		WithNumCompactors(2).
		WithNumMemtables(5).
		WithLoggingLevel(badger.ERROR) // Suppress INFO/WARNING logs

	if readOnly {
		opts = opts.WithReadOnly(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("opening badger DB: %w", err)
	}

	b.db = db
	b.readOnly = readOnly
	b.initialized = true

	if err := b.rebuildFromDB(); err != nil {
		_ = b.db.Close()
		b.db = nil
		b.initialized = false
		return err
	}
	return nil
}

// rebuildFromDB recounts stored records and rebuilds the title index.
func (b *BadgerBackend) rebuildFromDB() error {
	b.index = newTitleIndex()
	b.noteCount = 0
	b.linkCount = 0

	return b.db.View(func(txn *badger.Txn) error {
		err := iteratePrefix(txn, prefixNote, func(_ []byte, val []byte) error {
			var note graph.Note
			if err := json.Unmarshal(val, &note); err != nil {
				return fmt.Errorf("unmarshaling note: %w", err)
			}
			b.noteCount++
			b.index.add(&note)
			return nil
		})
		if err != nil {
			return err
		}

		return iteratePrefix(txn, prefixLink, func([]byte, []byte) error {
			b.linkCount++
			return nil
		})
	})
}

// Close releases all resources held by the backend.
func (b *BadgerBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}

	err := b.db.Close()
	b.db = nil
	b.initialized = false
	return err
}

func (b *BadgerBackend) checkWritable() error {
	if !b.initialized {
		return errNotInitialized
	}
	if b.readOnly {
		return errReadOnly
	}
	return nil
}

// BulkLoad replaces the entire store with the contents of the graph.
func (b *BadgerBackend) BulkLoad(ctx context.Context, g *graph.FullGraph) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkWritable(); err != nil {
		return err
	}
	if err := b.db.DropAll(); err != nil {
		return fmt.Errorf("clearing store: %w", err)
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	b.noteCount = 0
	b.linkCount = 0
	b.index = newTitleIndex()

	for _, note := range g.Notes() {
		data, err := json.Marshal(note)
		if err != nil {
			return fmt.Errorf("marshaling note: %w", err)
		}
		if err := wb.Set(noteKey(note.ID), data); err != nil {
			return fmt.Errorf("setting note: %w", err)
		}
		b.noteCount++
		b.index.add(note)
	}

	written := make(map[string]bool)
	for _, c := range g.Connections() {
		if err := ctx.Err(); err != nil {
			return err
		}

		id := linkID(c)
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshaling link: %w", err)
		}
		if err := wb.Set(linkKey(id), data); err != nil {
			return fmt.Errorf("setting link: %w", err)
		}
		if err := wb.Set(outKey(c.From, id), []byte(id)); err != nil {
			return fmt.Errorf("setting outgoing index: %w", err)
		}
		if err := wb.Set(inKey(c.To, id), []byte(id)); err != nil {
			return fmt.Errorf("setting incoming index: %w", err)
		}
		if !written[id] {
			written[id] = true
			b.linkCount++
		}
	}

	return wb.Flush()
}

// LoadGraph reads every note and link into a new graph.
func (b *BadgerBackend) LoadGraph(ctx context.Context) (*graph.FullGraph, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.initialized {
		return nil, errNotInitialized
	}

	g := graph.NewFullGraph()
	err := b.db.View(func(txn *badger.Txn) error {
		err := iteratePrefix(txn, prefixNote, func(_ []byte, val []byte) error {
			var note graph.Note
			if err := json.Unmarshal(val, &note); err != nil {
				return fmt.Errorf("unmarshaling note: %w", err)
			}
			g.AddNote(&note)
			return nil
		})
		if err != nil {
			return err
		}

		return iteratePrefix(txn, prefixLink, func(_ []byte, val []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var c graph.Connection
			if err := json.Unmarshal(val, &c); err != nil {
				return fmt.Errorf("unmarshaling link: %w", err)
			}
			if err := g.AddConnection(c); err != nil {
				return fmt.Errorf("loading link %s -> %s: %w", c.From, c.To, err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// AddNotes inserts or replaces notes.
func (b *BadgerBackend) AddNotes(ctx context.Context, notes []*graph.Note) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkWritable(); err != nil {
		return err
	}

	txn := b.db.NewTransaction(true)
	defer txn.Discard()

	added := 0
	for _, note := range notes {
		exists, err := hasKey(txn, noteKey(note.ID))
		if err != nil {
			return err
		}

		data, err := json.Marshal(note)
		if err != nil {
			return fmt.Errorf("marshaling note: %w", err)
		}
		if err := txn.Set(noteKey(note.ID), data); err != nil {
			return fmt.Errorf("setting note: %w", err)
		}
		if !exists {
			added++
		}
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("committing notes: %w", err)
	}

	b.noteCount += added
	for _, note := range notes {
		b.index.add(note)
	}
	return nil
}

// GetNote returns a single note by ID, or nil if not found.
func (b *BadgerBackend) GetNote(ctx context.Context, id string) (*graph.Note, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.initialized {
		return nil, errNotInitialized
	}

	txn := b.db.NewTransaction(false)
	defer txn.Discard()

	return getNote(txn, id)
}

// RemoveNote deletes a note and every link touching it.
func (b *BadgerBackend) RemoveNote(ctx context.Context, id string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkWritable(); err != nil {
		return 0, err
	}

	txn := b.db.NewTransaction(true)
	defer txn.Discard()

	exists, err := hasKey(txn, noteKey(id))
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, fmt.Errorf("note %q: %w", id, graph.ErrNoteNotFound)
	}

	var ids []string
	seen := make(map[string]bool)
	collect := func(_ []byte, val []byte) error {
		if lid := string(val); !seen[lid] {
			seen[lid] = true
			ids = append(ids, lid)
		}
		return nil
	}
	if err := iteratePrefix(txn, prefixOutgoing+id+keySep, collect); err != nil {
		return 0, err
	}
	if err := iteratePrefix(txn, prefixIncoming+id+keySep, collect); err != nil {
		return 0, err
	}

	for _, lid := range ids {
		c, err := getLink(txn, lid)
		if err != nil {
			return 0, err
		}
		for _, key := range [][]byte{linkKey(lid), outKey(c.From, lid), inKey(c.To, lid)} {
			if err := txn.Delete(key); err != nil {
				return 0, fmt.Errorf("deleting link: %w", err)
			}
		}
	}
	if err := txn.Delete(noteKey(id)); err != nil {
		return 0, fmt.Errorf("deleting note: %w", err)
	}

	if err := txn.Commit(); err != nil {
		return 0, fmt.Errorf("committing removal: %w", err)
	}

	b.noteCount--
	b.linkCount -= len(ids)
	b.index.remove(id)
	return len(ids), nil
}

// AddLinks inserts links between stored notes.
func (b *BadgerBackend) AddLinks(ctx context.Context, links []graph.Connection) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkWritable(); err != nil {
		return err
	}

	txn := b.db.NewTransaction(true)
	defer txn.Discard()

	added := 0
	for _, c := range links {
		if err := validateConnection(c); err != nil {
			return err
		}
		for _, end := range []string{c.From, c.To} {
			ok, err := hasKey(txn, noteKey(end))
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("link %s -> %s: note %q: %w", c.From, c.To, end, graph.ErrNoteNotFound)
			}
		}

		id := linkID(c)
		exists, err := hasKey(txn, linkKey(id))
		if err != nil {
			return err
		}

		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshaling link: %w", err)
		}
		if err := txn.Set(linkKey(id), data); err != nil {
			return fmt.Errorf("setting link: %w", err)
		}
		if err := txn.Set(outKey(c.From, id), []byte(id)); err != nil {
			return fmt.Errorf("setting outgoing index: %w", err)
		}
		if err := txn.Set(inKey(c.To, id), []byte(id)); err != nil {
			return fmt.Errorf("setting incoming index: %w", err)
		}
		if !exists {
			added++
		}
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("committing links: %w", err)
	}
	b.linkCount += added
	return nil
}

// GetLinks returns the adjacency records of a note.
func (b *BadgerBackend) GetLinks(ctx context.Context, id string) ([]graph.Link, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.initialized {
		return nil, errNotInitialized
	}

	txn := b.db.NewTransaction(false)
	defer txn.Discard()

	var links []graph.Link
	err := iteratePrefix(txn, prefixOutgoing+id+keySep, func(_ []byte, val []byte) error {
		c, err := getLink(txn, string(val))
		if err != nil {
			return err
		}
		links = append(links, graph.Link{Neighbor: c.To, Kind: c.Kind, Strength: c.Strength})
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = iteratePrefix(txn, prefixIncoming+id+keySep, func(_ []byte, val []byte) error {
		c, err := getLink(txn, string(val))
		if err != nil {
			return err
		}
		links = append(links, graph.Link{Neighbor: c.From, Kind: c.Kind.Opposing(), Strength: -c.Strength})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return links, nil
}

// SearchNotes finds notes by title tokens.
func (b *BadgerBackend) SearchNotes(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.initialized {
		return nil, errNotInitialized
	}

	txn := b.db.NewTransaction(false)
	defer txn.Discard()

	var lookupErr error
	results := b.index.search(query, limit, func(id string) *graph.Note {
		note, err := getNote(txn, id)
		if err != nil && lookupErr == nil {
			lookupErr = err
		}
		return note
	})
	if lookupErr != nil {
		return nil, lookupErr
	}
	return results, nil
}

// NoteCount returns the note count.
func (b *BadgerBackend) NoteCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.noteCount
}

// LinkCount returns the link count.
func (b *BadgerBackend) LinkCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.linkCount
}

// iteratePrefix calls fn with a copy of the key and the value of every
// item under prefix, in key order.
func iteratePrefix(txn *badger.Txn, prefix string, fn func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("reading %s: %w", item.Key(), err)
		}
		if err := fn(item.KeyCopy(nil), val); err != nil {
			return err
		}
	}
	return nil
}

func hasKey(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading key: %w", err)
	}
	return true, nil
}

func getNote(txn *badger.Txn, id string) (*graph.Note, error) {
	item, err := txn.Get(noteKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting note: %w", err)
	}

	var note graph.Note
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &note)
	}); err != nil {
		return nil, fmt.Errorf("unmarshaling note: %w", err)
	}
	return &note, nil
}

func getLink(txn *badger.Txn, id string) (graph.Connection, error) {
	var c graph.Connection
	item, err := txn.Get(linkKey(id))
	if err != nil {
		return c, fmt.Errorf("getting link: %w", err)
	}
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &c)
	}); err != nil {
		return c, fmt.Errorf("unmarshaling link: %w", err)
	}
	return c, nil
}

// linkID identifies a canonical link by its endpoints and kind.
func linkID(c graph.Connection) string {
	return c.From + keySep + c.To + keySep + string(c.Kind)
}

func noteKey(id string) []byte {
	return []byte(prefixNote + id)
}

func linkKey(id string) []byte {
	return []byte(prefixLink + id)
}

func outKey(from, id string) []byte {
	return []byte(prefixOutgoing + from + keySep + id)
}

func inKey(to, id string) []byte {
	return []byte(prefixIncoming + to + keySep + id)
}

func validateConnection(c graph.Connection) error {
	if !c.Kind.Valid() {
		return fmt.Errorf("link %s -> %s: %w: kind %q", c.From, c.To, graph.ErrInvalidLink, c.Kind)
	}
	if !(c.Strength > 0) {
		return fmt.Errorf("link %s -> %s: %w: strength %v must be positive", c.From, c.To, graph.ErrInvalidLink, c.Strength)
	}
	return nil
}
