// Package view connects extracted subgraphs to running simulations.
//
// A View is one on-screen graph: the query that selected it, the notes it
// shows and the simulation that positions them. Every tick is turned into
// a Frame and fanned out to subscribers. Dragging is modelled as Pin
// followed by Unpin; both restart the simulation so a settled layout wakes
// up again.
package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Benny93/notemap/internal/frame"
	"github.com/Benny93/notemap/internal/graph"
	"github.com/Benny93/notemap/internal/layout"
	"github.com/Benny93/notemap/internal/subgraph"
)

var (
	// ErrViewNotFound is returned for unknown view IDs.
	ErrViewNotFound = errors.New("view not found")

	// ErrNodeNotInView is returned when pinning a note the view does not show.
	ErrNodeNotInView = errors.New("node not in view")
)

// subscriberBuffer is the per-subscriber frame backlog; frames beyond it are dropped.
const subscriberBuffer = 64

// View is one laid-out subgraph.
type View struct {
	ID    string
	Query Query

	sim    *layout.Simulation
	driver *frame.Driver
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	// runMu orders restarts against close so no frame loop starts after
	// close has begun waiting for them.
	runMu   sync.Mutex
	stopped bool

	mu      sync.RWMutex
	sub     subgraph.Subgraph
	notes   map[string]*graph.Note
	running bool
	closed  bool
	subs    map[string]chan Frame
}

func newView(q Query, params layout.Params, logger *slog.Logger, driverOpts ...frame.Option) *View {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()
	sim := layout.New(params)
	logger = logger.With("view", id)

	return &View{
		ID:     id,
		Query:  q,
		sim:    sim,
		driver: frame.NewDriver(sim, append(driverOpts, frame.WithLogger(logger))...),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		notes:  make(map[string]*graph.Note),
		subs:   make(map[string]chan Frame),
	}
}

// Subgraph returns the currently displayed subgraph.
func (v *View) Subgraph() subgraph.Subgraph {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.sub
}

// Running reports whether the simulation is still moving.
func (v *View) Running() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.running
}

// Frame returns the current state.
func (v *View) Frame() Frame {
	snap := v.sim.Snapshot()
	v.mu.RLock()
	defer v.mu.RUnlock()
	return buildFrame(v.ID, v.sub.Root, snap, v.notes)
}

// Pin holds a node at (x, y) and restarts the simulation.
func (v *View) Pin(nodeID string, x, y float64) error {
	if !v.sim.Pin(nodeID, x, y) {
		return fmt.Errorf("pin %q: %w", nodeID, ErrNodeNotInView)
	}
	v.restart()
	return nil
}

// Unpin releases a held node and restarts the simulation.
func (v *View) Unpin(nodeID string) error {
	if !v.sim.Unpin(nodeID) {
		return fmt.Errorf("unpin %q: %w", nodeID, ErrNodeNotInView)
	}
	v.restart()
	return nil
}

// Subscribe registers a frame subscriber. The channel is closed when the
// view is deleted or Unsubscribe is called.
func (v *View) Subscribe() (string, <-chan Frame) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := uuid.New().String()
	ch := make(chan Frame, subscriberBuffer)
	if v.closed {
		close(ch)
		return id, ch
	}
	v.subs[id] = ch
	v.logger.Debug("subscriber added", "subscriber", id, "total", len(v.subs))
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (v *View) Unsubscribe(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if ch, ok := v.subs[id]; ok {
		close(ch)
		delete(v.subs, id)
		v.logger.Debug("subscriber removed", "subscriber", id, "total", len(v.subs))
	}
}

// SubscriberCount returns the number of subscribers.
func (v *View) SubscriberCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.subs)
}

// update swaps in a new subgraph and restarts the simulation. Nodes shown
// before and after keep their positions.
func (v *View) update(g *graph.FullGraph, sub subgraph.Subgraph) {
	nodes, links, notes := Specs(g, sub)

	v.mu.Lock()
	v.sub = sub
	v.notes = notes
	v.mu.Unlock()

	v.sim.SetGraph(nodes, links)
	v.restart()
}

func (v *View) restart() {
	v.runMu.Lock()
	defer v.runMu.Unlock()
	if v.stopped {
		return
	}

	gen := v.driver.Start(v.ctx, v.onTick, v.onRunning)
	v.logger.Debug("simulation started", "generation", gen, "nodes", v.sim.NodeCount())

	// A subgraph without edges stops inside Run and reports nothing.
	if v.sim.Status() != layout.Running {
		v.onRunning(false, gen)
	}
}

func (v *View) onTick(snap layout.Snapshot, _ layout.Generation) {
	v.mu.RLock()
	f := buildFrame(v.ID, v.sub.Root, snap, v.notes)
	v.mu.RUnlock()
	v.broadcast(f)
}

// onRunning publishes the settled state once the simulation stops, since
// the terminal tick produces no onTick. Reports from superseded generations
// are ignored.
func (v *View) onRunning(running bool, gen layout.Generation) {
	v.mu.Lock()
	if gen != v.sim.Generation() {
		v.mu.Unlock()
		return
	}
	v.running = running
	v.mu.Unlock()

	if !running {
		f := v.Frame()
		v.logger.Debug("simulation settled", "generation", f.Generation, "ticks", f.Tick)
		v.broadcast(f)
	}
}

func (v *View) broadcast(f Frame) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.closed {
		return
	}
	for id, ch := range v.subs {
		select {
		case ch <- f:
		default:
			v.logger.Debug("dropping frame for slow subscriber", "subscriber", id, "tick", f.Tick)
		}
	}
}

// close stops the frame loops and releases subscribers.
func (v *View) close() {
	v.runMu.Lock()
	v.stopped = true
	v.cancel()
	v.runMu.Unlock()
	v.driver.Wait()

	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	for id, ch := range v.subs {
		close(ch)
		delete(v.subs, id)
	}
}
