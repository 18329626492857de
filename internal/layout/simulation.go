// Package layout implements the force-directed simulation that positions
// the notes of a subgraph.
//
// A Simulation is a two-state machine. Run moves it to Running and issues a
// new Generation; the host then calls Step with that generation once per
// frame until Step reports that the simulation stopped. A later Run
// supersedes every earlier generation, whose Step calls become no-ops.
// Pin and Unpin may be called between frames from any goroutine.
package layout

import (
	"math/rand/v2"
	"sync"
)

// TickFunc receives the state after every tick that did not stop the simulation.
type TickFunc func(snap Snapshot, gen Generation)

// RunningFunc is told when run gen starts and when it stops on its own.
// Reports are delivered outside the lock, so a stop report can arrive after
// a later Run; hosts compare gen with Generation to discard it.
type RunningFunc func(running bool, gen Generation)

// Option configures a Simulation.
type Option func(*Simulation)

// WithRand sets the source used to break coincident positions.
func WithRand(rng *rand.Rand) Option {
	return func(s *Simulation) {
		s.rng = rng
	}
}

// Simulation owns the nodes and edges of one view and advances them one
// tick per Step.
type Simulation struct {
	mu     sync.Mutex
	params Params
	decay  float64
	rng    *rand.Rand

	nodes []Node
	index map[string]int
	edges []Edge

	// per-edge link force coefficients, recomputed whenever edges change
	bias     []float64
	strength []float64

	alpha        float64
	ticks        int
	maxVX, maxVY float64

	generation Generation
	status     Status
	onTick     TickFunc
	onRunning  RunningFunc
}

// New creates an empty simulation.
func New(p Params, opts ...Option) *Simulation {
	s := &Simulation{
		params: p,
		decay:  p.AlphaDecay(),
		index:  make(map[string]int),
		alpha:  1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

// Params returns the constants the simulation was created with.
func (s *Simulation) Params() Params {
	return s.params
}

// SetGraph replaces the node and edge set. Nodes already present keep
// their position, velocity and pin; new nodes start unplaced and are
// positioned by the next Run. Links whose endpoints are not among nodes
// are dropped.
func (s *Simulation) SetGraph(nodes []NodeSpec, links []LinkSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]Node, 0, len(nodes))
	index := make(map[string]int, len(nodes))
	for _, spec := range nodes {
		if _, dup := index[spec.ID]; dup {
			continue
		}
		n := Node{ID: spec.ID}
		if i, ok := s.index[spec.ID]; ok {
			n = s.nodes[i]
		}
		n.Width, n.Height = spec.Width, spec.Height
		index[spec.ID] = len(next)
		next = append(next, n)
	}

	edges := make([]Edge, 0, len(links))
	for _, l := range links {
		src, ok := index[l.Source]
		if !ok {
			continue
		}
		tgt, ok := index[l.Target]
		if !ok {
			continue
		}
		edges = append(edges, Edge{Source: src, Target: tgt, Strength: l.Strength, Kind: l.Kind})
	}

	s.nodes, s.index, s.edges = next, index, edges
	s.prepareLinks()
}

// Run starts a new generation, superseding any running one. With no nodes
// or no edges it stops without ever reporting Running.
func (s *Simulation) Run(onTick TickFunc, onRunning RunningFunc) Generation {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.onTick, s.onRunning = onTick, onRunning

	if len(s.nodes) == 0 || len(s.edges) == 0 {
		s.status = Stopped
		s.mu.Unlock()
		return gen
	}

	s.initialize()
	s.status = Running
	s.mu.Unlock()

	if onRunning != nil {
		onRunning(true, gen)
	}
	return gen
}

// Step advances generation gen by one tick and reports whether another
// frame should be scheduled. A stale generation or a stopped simulation
// is left untouched.
func (s *Simulation) Step(gen Generation) bool {
	s.mu.Lock()
	if gen != s.generation || s.status != Running {
		s.mu.Unlock()
		return false
	}

	if !s.tick() {
		s.status = Stopped
		onRunning := s.onRunning
		s.mu.Unlock()
		if onRunning != nil {
			onRunning(false, gen)
		}
		return false
	}

	snap := s.snapshotLocked()
	onTick := s.onTick
	s.mu.Unlock()

	if onTick != nil {
		onTick(snap, gen)
	}
	return true
}

// Pin fixes a node at (x, y) until Unpin. It returns false for unknown IDs.
func (s *Simulation) Pin(id string, x, y float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return false
	}
	n := &s.nodes[i]
	n.FX, n.FY, n.Pinned = x, y, true
	return true
}

// Unpin releases a pinned node. It returns false for unknown IDs.
func (s *Simulation) Unpin(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return false
	}
	n := &s.nodes[i]
	n.FX, n.FY, n.Pinned = 0, 0, false
	return true
}

// Snapshot returns a copy of the current state.
func (s *Simulation) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Status returns the state of the step machine.
func (s *Simulation) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Generation returns the most recently issued generation.
func (s *Simulation) Generation() Generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Alpha returns the current temperature.
func (s *Simulation) Alpha() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alpha
}

// Stats returns the statistics of the current run.
func (s *Simulation) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Ticks: s.ticks, Alpha: s.alpha, MaxVX: s.maxVX, MaxVY: s.maxVY}
}

// NodeCount returns the number of nodes.
func (s *Simulation) NodeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes)
}

func (s *Simulation) snapshotLocked() Snapshot {
	snap := Snapshot{
		Generation: s.generation,
		Alpha:      s.alpha,
		Ticks:      s.ticks,
		Running:    s.status == Running,
		Nodes:      make([]NodeState, len(s.nodes)),
		Edges:      make([]EdgeState, len(s.edges)),
	}
	for i, n := range s.nodes {
		snap.Nodes[i] = NodeState{ID: n.ID, X: n.X, Y: n.Y, Pinned: n.Pinned, Width: n.Width, Height: n.Height}
	}
	for i, e := range s.edges {
		snap.Edges[i] = EdgeState{Source: e.Source, Target: e.Target, Strength: e.Strength, Kind: e.Kind}
	}
	return snap
}

// initialize prepares a run: unplaced nodes go on the spiral, pinned nodes
// snap to their pin and non-finite velocities are cleared.
func (s *Simulation) initialize() {
	for i := range s.nodes {
		n := &s.nodes[i]
		if unplaced(n.X, n.Y) {
			n.X, n.Y = spiralPosition(i, s.params.SpiralRadius)
		}
		if n.Pinned {
			n.X, n.Y = n.FX, n.FY
		}
		if !finite(n.VX) || !finite(n.VY) {
			n.VX, n.VY = 0, 0
		}
	}
	s.prepareLinks()
	s.alpha = 1
	s.ticks = 0
	s.maxVX, s.maxVY = 0, 0
}

// prepareLinks computes the bias and strength of every edge from node
// degrees. Self-loops count toward no degree and get no coefficients.
func (s *Simulation) prepareLinks() {
	degree := make([]int, len(s.nodes))
	for _, e := range s.edges {
		if e.Source == e.Target {
			continue
		}
		degree[e.Source]++
		degree[e.Target]++
	}

	s.bias = make([]float64, len(s.edges))
	s.strength = make([]float64, len(s.edges))
	for k, e := range s.edges {
		if e.Source == e.Target {
			continue
		}
		ds, dt := float64(degree[e.Source]), float64(degree[e.Target])
		s.bias[k] = ds / (ds + dt)
		s.strength[k] = 1 / min(ds, dt)
	}
}
