package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/Benny93/notemap/internal/graph"
	"github.com/Benny93/notemap/internal/ingestion"
	"github.com/Benny93/notemap/internal/server"
	"github.com/Benny93/notemap/internal/view"
	"github.com/Benny93/notemap/mcp"
)

// WatchCmd re-lays out a note source whenever it changes.
type WatchCmd struct {
	Path      string        `arg:"" type:"existingpath" help:"Note document or directory to watch"`
	Root      string        `arg:"" help:"Root note ID"`
	Query     QueryFlags    `embed:""`
	MaxFrames int           `default:"1000" help:"Give up after this many ticks"`
	Debounce  time.Duration `default:"500ms" help:"Quiet period before reloading"`
	Format    string        `short:"f" enum:"table,json" default:"table" help:"Output format (table|json)"`
}

// Run executes the watch command.
func (c *WatchCmd) Run(g *Globals) error {
	ctx, stop := signalContext()
	defer stop()
	return c.run(ctx, g)
}

func (c *WatchCmd) run(ctx context.Context, g *Globals) error {
	params, err := g.Sim.Params()
	if err != nil {
		return err
	}
	logger := g.logger()
	w := g.out()

	relayout := func(full *graph.FullGraph) {
		f, err := view.Compute(full, c.Query.query(c.Root), params, c.MaxFrames)
		if err != nil {
			color.New(color.FgRed).Fprintf(w, "Layout failed: %v\n", err)
			return
		}
		if err := printFrame(w, f, c.Format); err != nil {
			logger.Warn("printing layout failed", "error", err)
		}
	}

	full, err := ingestion.LoadPath(c.Path)
	if err != nil {
		return err
	}
	if !g.Quiet {
		color.New(color.FgGreen).Fprintf(w, "Loaded %d notes from %s\n", full.NoteCount(), c.Path)
	}
	relayout(full)

	err = ingestion.Watch(ctx, c.Path, func(full *graph.FullGraph) {
		if !g.Quiet {
			color.New(color.FgGreen).Fprintf(w, "\nReloaded %d notes\n", full.NoteCount())
		}
		relayout(full)
	},
		ingestion.WithDebounce(c.Debounce),
		ingestion.WithWatchLogger(logger),
		ingestion.WithReloadErrors(func(err error) {
			color.New(color.FgRed).Fprintf(w, "Reload failed, keeping the previous layout: %v\n", err)
		}),
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watch error: %w", err)
	}
	return nil
}

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Addr     string  `default:"127.0.0.1:8080" env:"NOTEMAP_ADDR" help:"Listen address"`
	Watch    string  `type:"path" help:"Re-import notes from this path on change"`
	PinRate  float64 `default:"240" help:"Pin requests per second"`
	PinBurst int     `default:"480" help:"Pin request burst"`
}

// Run executes the serve command.
func (c *ServeCmd) Run(g *Globals) error {
	ctx, stop := signalContext()
	defer stop()
	return c.run(ctx, g)
}

func (c *ServeCmd) run(ctx context.Context, g *Globals) error {
	params, err := g.Sim.Params()
	if err != nil {
		return err
	}
	logger := g.logger()

	store, err := g.openStore(c.Watch == "")
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	full, err := store.LoadGraph(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading graph: %w", err)
	}

	manager := view.NewManager(full, params, view.WithLogger(logger))
	srv := server.New(manager, store,
		server.WithLogger(logger),
		server.WithVersion(Version),
		server.WithPinRate(c.PinRate, c.PinBurst),
	)

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	if c.Watch != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := ingestion.Watch(ctx, c.Watch, func(next *graph.FullGraph) {
				if err := store.BulkLoad(ctx, next); err != nil {
					logger.Error("storing reloaded notes failed", "error", err)
					return
				}
				if err := manager.Refresh(next); err != nil {
					logger.Warn("some views kept their previous layout", "error", err)
				}
			},
				ingestion.WithWatchLogger(logger),
			)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("watch stopped", "error", err)
			}
		}()
		logger.Info("watching notes", "path", c.Watch)
	}

	return srv.ListenAndServe(ctx, c.Addr)
}

// MCPCmd starts the MCP server.
type MCPCmd struct{}

// Run executes the mcp command.
func (c *MCPCmd) Run(g *Globals) error {
	ctx, stop := signalContext()
	defer stop()
	// No output to stderr: the MCP server uses stdio for JSON-RPC only.
	return c.run(ctx, g, os.Stdin, os.Stdout)
}

func (c *MCPCmd) run(ctx context.Context, g *Globals, stdin io.Reader, stdout io.Writer) error {
	params, err := g.Sim.Params()
	if err != nil {
		return err
	}
	store, err := g.openStore(true)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	return mcp.NewServer(store, params).Run(ctx, stdin, stdout)
}
