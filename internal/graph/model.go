// Package graph provides the note-link data model for notemap.
//
// It defines the notes of a personal knowledge base and the typed
// references between them. References are undirected relationships that
// are stored twice, once per endpoint, with a signed strength telling the
// canonical direction apart from its mirror.
package graph

import "fmt"

// RefKind represents the type of reference between two notes.
type RefKind string

const (
	RefGeneric    RefKind = "ref"
	RefToParent   RefKind = "ref_to_parent"
	RefToChild    RefKind = "ref_to_child"
	RefInContrast RefKind = "ref_in_contrast"
	RefCritical   RefKind = "ref_critical"
)

// RefKinds lists every known kind in declaration order.
var RefKinds = []RefKind{RefGeneric, RefToParent, RefToChild, RefInContrast, RefCritical}

// Opposing returns the kind seen when the reference is read from its other
// endpoint. Parent and child swap; every other kind is its own opposite.
func (k RefKind) Opposing() RefKind {
	switch k {
	case RefToParent:
		return RefToChild
	case RefToChild:
		return RefToParent
	default:
		return k
	}
}

// IsHierarchical reports whether the kind expresses a parent/child relation.
func (k RefKind) IsHierarchical() bool {
	return k == RefToParent || k == RefToChild
}

// Valid reports whether k is one of the known kinds.
func (k RefKind) Valid() bool {
	for _, known := range RefKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseRefKind converts a raw string into a RefKind. The empty string maps
// to RefGeneric.
func ParseRefKind(s string) (RefKind, error) {
	if s == "" {
		return RefGeneric, nil
	}
	k := RefKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown reference kind %q", s)
	}
	return k, nil
}

// Note is a node in the note graph.
type Note struct {
	// ID is the unique identifier for the note.
	ID string `json:"id"`

	// Title is the display label.
	Title string `json:"title,omitempty"`

	// Category groups notes (e.g. "idea", "person", "article").
	Category string `json:"category,omitempty"`

	// Terminator marks a traversal boundary: the note is shown when reached
	// but its own references are never followed.
	Terminator bool `json:"terminator,omitempty"`
}

// Label returns the title, falling back to the ID.
func (n *Note) Label() string {
	if n.Title != "" {
		return n.Title
	}
	return n.ID
}

// Link is one directed adjacency record stored at a note.
//
// Strength is positive for the canonical direction and negative for the
// mirrored view held by the other endpoint.
type Link struct {
	Neighbor string  `json:"neighbor"`
	Kind     RefKind `json:"kind"`
	Strength float64 `json:"strength"`
}

// Forward reports whether the record is the canonical direction.
func (l Link) Forward() bool {
	return l.Strength > 0
}

// Connection is a canonical (forward) reference between two notes.
type Connection struct {
	From     string  `json:"from"`
	To       string  `json:"to"`
	Kind     RefKind `json:"kind"`
	Strength float64 `json:"strength"`
}
