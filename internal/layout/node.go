package layout

import (
	"github.com/Benny93/notemap/internal/graph"
)

// Generation identifies one Run of a Simulation. Only the latest
// generation may advance the simulation.
type Generation uint64

// Status is the state of the step machine.
type Status int

const (
	Stopped Status = iota
	Running
)

func (s Status) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Node is the mutable simulation record of one visible note.
type Node struct {
	ID     string
	X, Y   float64
	VX, VY float64

	// FX, FY hold the pinned position while Pinned is set.
	FX, FY float64
	Pinned bool

	// Width and Height are the label footprint used by label collision.
	Width, Height float64
}

// Edge is a link between two nodes of the current simulation. Source and
// Target index the node slice.
type Edge struct {
	Source, Target int
	Strength       float64
	Kind           graph.RefKind
}

// NodeSpec describes a node handed to SetGraph.
type NodeSpec struct {
	ID     string
	Width  float64
	Height float64
}

// LinkSpec describes a link handed to SetGraph.
type LinkSpec struct {
	Source   string
	Target   string
	Strength float64
	Kind     graph.RefKind
}

// NodeState is the read-only view of a node in a Snapshot.
type NodeState struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Pinned bool    `json:"pinned,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

// EdgeState is the read-only view of an edge in a Snapshot. Source and
// Target index Snapshot.Nodes.
type EdgeState struct {
	Source   int           `json:"source"`
	Target   int           `json:"target"`
	Strength float64       `json:"strength"`
	Kind     graph.RefKind `json:"kind"`
}

// Snapshot is a copy of the simulation state handed to renderers.
type Snapshot struct {
	Generation Generation  `json:"generation"`
	Alpha      float64     `json:"alpha"`
	Ticks      int         `json:"ticks"`
	Running    bool        `json:"running"`
	Nodes      []NodeState `json:"nodes"`
	Edges      []EdgeState `json:"edges"`
}

// Position returns the coordinates of the node with the given ID.
func (s Snapshot) Position(id string) (x, y float64, ok bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n.X, n.Y, true
		}
	}
	return 0, 0, false
}

// Stats are the cumulative statistics of the current run.
type Stats struct {
	Ticks int
	Alpha float64
	MaxVX float64
	MaxVY float64
}
