package view

import (
	"github.com/Benny93/notemap/internal/graph"
	"github.com/Benny93/notemap/internal/layout"
)

// FrameNode is a positioned note as handed to renderers.
type FrameNode struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Category   string  `json:"category,omitempty"`
	Terminator bool    `json:"terminator,omitempty"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Pinned     bool    `json:"pinned,omitempty"`
}

// FrameEdge carries everything needed to draw one reference.
type FrameEdge struct {
	Source   string        `json:"source"`
	Target   string        `json:"target"`
	Kind     graph.RefKind `json:"kind"`
	Strength float64       `json:"strength"`
	X1       float64       `json:"x1"`
	Y1       float64       `json:"y1"`
	X2       float64       `json:"x2"`
	Y2       float64       `json:"y2"`

	// Arrow is set for hierarchical kinds, drawn with a head at Target.
	Arrow bool `json:"arrow,omitempty"`
}

// Frame is one rendered state of a view.
type Frame struct {
	ViewID     string            `json:"view_id"`
	Root       string            `json:"root"`
	Generation layout.Generation `json:"generation"`
	Tick       int               `json:"tick"`
	Alpha      float64           `json:"alpha"`
	Running    bool              `json:"running"`
	Nodes      []FrameNode       `json:"nodes"`
	Edges      []FrameEdge       `json:"edges"`
}

// buildFrame joins a snapshot with note metadata.
func buildFrame(viewID, root string, snap layout.Snapshot, notes map[string]*graph.Note) Frame {
	f := Frame{
		ViewID:     viewID,
		Root:       root,
		Generation: snap.Generation,
		Tick:       snap.Ticks,
		Alpha:      snap.Alpha,
		Running:    snap.Running,
		Nodes:      make([]FrameNode, len(snap.Nodes)),
		Edges:      make([]FrameEdge, len(snap.Edges)),
	}

	for i, n := range snap.Nodes {
		fn := FrameNode{ID: n.ID, Title: n.ID, X: n.X, Y: n.Y, Pinned: n.Pinned}
		if note := notes[n.ID]; note != nil {
			fn.Title = note.Label()
			fn.Category = note.Category
			fn.Terminator = note.Terminator
		}
		f.Nodes[i] = fn
	}

	for i, e := range snap.Edges {
		src, tgt := snap.Nodes[e.Source], snap.Nodes[e.Target]
		f.Edges[i] = FrameEdge{
			Source:   src.ID,
			Target:   tgt.ID,
			Kind:     e.Kind,
			Strength: e.Strength,
			X1:       src.X,
			Y1:       src.Y,
			X2:       tgt.X,
			Y2:       tgt.Y,
			Arrow:    e.Kind.IsHierarchical(),
		}
	}
	return f
}

// Node returns the frame node with the given ID.
func (f Frame) Node(id string) (FrameNode, bool) {
	for _, n := range f.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return FrameNode{}, false
}
