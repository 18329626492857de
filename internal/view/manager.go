package view

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Benny93/notemap/internal/frame"
	"github.com/Benny93/notemap/internal/graph"
	"github.com/Benny93/notemap/internal/layout"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithFrameInterval sets the frame interval of every view.
func WithFrameInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.driverOpts = append(m.driverOpts, frame.WithInterval(d))
	}
}

// WithTicker replaces the frame clock of every view.
func WithTicker(f frame.TickerFunc) Option {
	return func(m *Manager) {
		m.driverOpts = append(m.driverOpts, frame.WithTicker(f))
	}
}

// Manager owns the views laid out against one note graph.
type Manager struct {
	mu         sync.RWMutex
	graph      *graph.FullGraph
	params     layout.Params
	views      map[string]*View
	logger     *slog.Logger
	driverOpts []frame.Option
}

// NewManager creates a manager over g.
func NewManager(g *graph.FullGraph, params layout.Params, opts ...Option) *Manager {
	m := &Manager{
		graph:  g,
		params: params,
		views:  make(map[string]*View),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Graph returns the current note graph.
func (m *Manager) Graph() *graph.FullGraph {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.graph
}

// Params returns the simulation constants used for new views.
func (m *Manager) Params() layout.Params {
	return m.params
}

// Create extracts the query's subgraph and starts laying it out.
func (m *Manager) Create(q Query) (*View, error) {
	q = q.Normalized()
	g := m.Graph()

	sub, err := Extract(g, q)
	if err != nil {
		return nil, fmt.Errorf("creating view: %w", err)
	}

	v := newView(q, m.params, m.logger, m.driverOpts...)
	m.mu.Lock()
	m.views[v.ID] = v
	m.mu.Unlock()

	m.logger.Info("view created", "view", v.ID, "root", q.Root, "depth", q.Depth,
		"nodes", len(sub.Nodes), "edges", len(sub.Edges))
	v.update(g, sub)
	return v, nil
}

// Get returns the view with the given ID.
func (m *Manager) Get(id string) (*View, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.views[id]
	if !ok {
		return nil, fmt.Errorf("view %q: %w", id, ErrViewNotFound)
	}
	return v, nil
}

// List returns all views ordered by ID.
func (m *Manager) List() []*View {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*View, 0, len(m.views))
	for _, v := range m.views {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of views.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.views)
}

// Delete discards a view and stops its simulation.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	v, ok := m.views[id]
	delete(m.views, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("view %q: %w", id, ErrViewNotFound)
	}
	v.close()
	m.logger.Info("view deleted", "view", id)
	return nil
}

// Refresh swaps in a new note graph and re-extracts every view. A view
// whose root disappeared keeps its last layout.
func (m *Manager) Refresh(g *graph.FullGraph) error {
	m.mu.Lock()
	m.graph = g
	m.mu.Unlock()

	var errs []error
	for _, v := range m.List() {
		sub, err := Extract(g, v.Query)
		if err != nil {
			m.logger.Warn("view not refreshed", "view", v.ID, "error", err)
			errs = append(errs, fmt.Errorf("refreshing view %s: %w", v.ID, err))
			continue
		}
		v.update(g, sub)
	}
	m.logger.Info("views refreshed", "views", m.Count(), "notes", g.NoteCount(), "links", g.LinkCount())
	return errors.Join(errs...)
}

// Close discards every view.
func (m *Manager) Close() {
	for _, v := range m.List() {
		_ = m.Delete(v.ID)
	}
}
