package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fatih/color"

	"github.com/Benny93/notemap/internal/ingestion"
)

// ImportCmd loads notes from JSON documents into the store.
type ImportCmd struct {
	Path string `arg:"" type:"existingpath" help:"Note document or directory of documents"`
}

// Run executes the import command.
func (c *ImportCmd) Run(g *Globals) error {
	path, err := filepath.Abs(c.Path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}

	ctx, stop := signalContext()
	defer stop()
	return runImport(ctx, g, ingestion.PathSource{Path: path})
}

// ImportNeo4jCmd loads notes from a Neo4j database into the store.
type ImportNeo4jCmd struct {
	URI      string `default:"bolt://localhost:7687" env:"NEO4J_URI" help:"Neo4j connection URI"`
	User     string `default:"neo4j" env:"NEO4J_USER" help:"Neo4j user"`
	Password string `env:"NEO4J_PASSWORD" help:"Neo4j password"`
	Database string `env:"NEO4J_DATABASE" help:"Database name, empty for the default"`
}

// Run executes the import-neo4j command.
func (c *ImportNeo4jCmd) Run(g *Globals) error {
	src, err := ingestion.NewNeo4jSource(c.URI, c.User, c.Password, c.Database)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close(context.Background()) }()

	ctx, stop := signalContext()
	defer stop()
	return runImport(ctx, g, src)
}

// runImport replaces the store contents with src and records meta.json.
func runImport(ctx context.Context, g *Globals, src ingestion.Source) error {
	w := g.out()
	if !g.Quiet {
		color.New(color.FgGreen).Fprintf(w, "Importing %s\n", src)
	}

	store, err := g.openStore(false)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	progress := func(phase string, pct float64) {
		if !g.Quiet {
			fmt.Fprintf(w, "\r\033[K%s (%.0f%%)", phase, pct*100)
		}
	}

	_, result, err := ingestion.Import(ctx, src, store, progress)
	if !g.Quiet {
		fmt.Fprintln(w) // Newline after progress
	}
	if err != nil {
		return fmt.Errorf("importing: %w", err)
	}

	if err := writeMeta(g.Store, src.String(), result); err != nil {
		return err
	}

	color.New(color.FgGreen).Fprintln(w, "✓ Import complete")
	fmt.Fprintf(w, "  Notes:        %d\n", result.Notes)
	fmt.Fprintf(w, "  Links:        %d\n", result.Links)
	fmt.Fprintf(w, "  Categories:   %d\n", result.Categories)
	fmt.Fprintf(w, "  Terminators:  %d\n", result.Terminators)
	fmt.Fprintf(w, "  Orphans:      %d\n", result.Orphans)
	fmt.Fprintf(w, "  Duration:     %.2fs\n", result.DurationSecs)

	return nil
}
