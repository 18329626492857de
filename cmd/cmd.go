// Package cmd provides CLI command implementations for notemap.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/Benny93/notemap/internal/ingestion"
	"github.com/Benny93/notemap/internal/layout"
	"github.com/Benny93/notemap/internal/storage"
)

// Version is set at build time via ldflags.
var Version = "dev"

// defaultConfigPath is read before command-line flags when it exists.
const defaultConfigPath = "~/.config/notemap/config.json"

// SimFlags exposes the layout constants as flags.
type SimFlags struct {
	RestLength        float64 `default:"30" env:"REST_LENGTH" help:"Rest length of a link"`
	Charge            float64 `default:"-900" env:"CHARGE" help:"Many-body charge, negative repels"`
	MinDistance2      float64 `name:"min-distance2" default:"1" env:"MIN_DISTANCE2" help:"Squared distance floor of the charge force"`
	CollideRadius     float64 `default:"40" env:"COLLIDE_RADIUS" help:"Collision padding around labels"`
	CenterX           float64 `default:"0.1" env:"CENTER_X" help:"Horizontal pull toward the origin"`
	CenterY           float64 `default:"0.12" env:"CENTER_Y" help:"Vertical pull toward the origin"`
	VelocityDecay     float64 `default:"0.03" env:"VELOCITY_DECAY" help:"Velocity decay per tick"`
	AlphaMin          float64 `default:"0.001" env:"ALPHA_MIN" help:"Stop once alpha cools below this"`
	CoolingTicks      int     `default:"300" env:"COOLING_TICKS" help:"Ticks needed to cool from 1 to alpha-min"`
	VelocityThreshold float64 `default:"0.6" env:"VELOCITY_THRESHOLD" help:"Stop once every velocity is below this"`
	MinTicks          int     `default:"5" env:"MIN_TICKS" help:"Ticks before the velocity check applies"`
	SpiralRadius      float64 `default:"10" env:"SPIRAL_RADIUS" help:"Scale of the initial placement spiral"`
}

// Params converts the flags into validated simulation params.
func (f SimFlags) Params() (layout.Params, error) {
	p := layout.Params{
		RestLength:        f.RestLength,
		Charge:            f.Charge,
		MinDistance2:      f.MinDistance2,
		CollideRadius:     f.CollideRadius,
		CenterX:           f.CenterX,
		CenterY:           f.CenterY,
		VelocityDecay:     f.VelocityDecay,
		AlphaMin:          f.AlphaMin,
		CoolingTicks:      f.CoolingTicks,
		VelocityThreshold: f.VelocityThreshold,
		MinTicks:          f.MinTicks,
		SpiralRadius:      f.SpiralRadius,
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("invalid simulation flags: %w", err)
	}
	return p, nil
}

// Globals are the flags shared by every command.
type Globals struct {
	Store   string `default:".notemap" env:"NOTEMAP_STORE" help:"Directory holding the note store"`
	Verbose bool   `short:"v" help:"Enable verbose output"`
	Quiet   bool   `short:"q" help:"Suppress non-essential output"`

	Sim SimFlags `embed:"" prefix:"sim-" envprefix:"NOTEMAP_SIM_" group:"Simulation"`

	stdout io.Writer
}

func (g *Globals) out() io.Writer {
	if g.stdout != nil {
		return g.stdout
	}
	return os.Stdout
}

// logger builds the slog logger for long-running commands. It writes to
// stderr so stdout stays clean for results.
func (g *Globals) logger() *slog.Logger {
	level := slog.LevelInfo
	switch {
	case g.Verbose:
		level = slog.LevelDebug
	case g.Quiet:
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func (g *Globals) badgerPath() string {
	return filepath.Join(g.Store, "badger")
}

// openStore opens the Badger store. Read-only opens require an existing
// store.
func (g *Globals) openStore(readOnly bool) (*storage.BadgerBackend, error) {
	dbPath := g.badgerPath()
	if readOnly {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("no store found at %s. Run 'notemap import' first", g.Store)
		}
	} else if err := os.MkdirAll(g.Store, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	store := storage.NewBadgerBackend()
	if err := store.Initialize(dbPath, readOnly); err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	return store, nil
}

// storeMeta is written next to the store after every import.
type storeMeta struct {
	Version    string                  `json:"version"`
	Source     string                  `json:"source"`
	Stats      *ingestion.ImportResult `json:"stats"`
	ImportedAt string                  `json:"imported_at"`
}

func writeMeta(dir, source string, result *ingestion.ImportResult) error {
	meta := storeMeta{
		Version:    Version,
		Source:     source,
		Stats:      result,
		ImportedAt: time.Now().UTC().Format(time.RFC3339),
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding meta.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), metaJSON, 0o644); err != nil {
		return fmt.Errorf("writing meta.json: %w", err)
	}
	return nil
}

func readMeta(dir string) (*storeMeta, error) {
	metaBytes, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return nil, err
	}
	var meta storeMeta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, fmt.Errorf("parsing meta.json: %w", err)
	}
	return &meta, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// findNote resolves a note ID or title. An empty ID means no match.
func findNote(ctx context.Context, store storage.Backend, ref string) (string, error) {
	note, err := store.GetNote(ctx, ref)
	if err != nil {
		return "", err
	}
	if note != nil {
		return note.ID, nil
	}

	results, err := store.SearchNotes(ctx, ref, 10)
	if err != nil {
		return "", err
	}
	for _, r := range results {
		if strings.EqualFold(r.Title, ref) {
			return r.NoteID, nil
		}
	}
	if len(results) > 0 {
		return results[0].NoteID, nil
	}
	return "", nil
}

func toJSON(v any) string {
	bytes, _ := json.Marshal(v)
	return string(bytes)
}

// CLI is the root Kong command structure.
type CLI struct {
	Globals

	Version kong.VersionFlag `help:"Show version information"`
	Config  kong.ConfigFlag  `help:"Load flag values from a JSON file"`

	// Commands
	Import      ImportCmd      `cmd:"" help:"Import notes from a JSON file or directory"`
	ImportNeo4j ImportNeo4jCmd `cmd:"" name:"import-neo4j" help:"Import notes from a Neo4j database"`
	Stats       StatsCmd       `cmd:"" help:"Show statistics of the stored graph"`
	Search      SearchCmd      `cmd:"" help:"Search notes by title"`
	Note        NoteCmd        `cmd:"" help:"Show a note and its references"`
	Subgraph    SubgraphCmd    `cmd:"" help:"Extract the subgraph around a note"`
	Layout      LayoutCmd      `cmd:"" help:"Lay out the subgraph around a note"`
	Watch       WatchCmd       `cmd:"" help:"Re-layout a note file or directory on change"`
	Serve       ServeCmd       `cmd:"" help:"Start the HTTP server with live layouts"`
	MCP         MCPCmd         `cmd:"" help:"Start MCP server (stdio transport)"`
	Setup       SetupCmd       `cmd:"" help:"Configure MCP for Claude Code / Cursor"`
	Clean       CleanCmd       `cmd:"" help:"Delete the note store"`
}

// NewCLI creates a new CLI instance.
func NewCLI() *CLI {
	return &CLI{}
}

func (c *CLI) parser(options ...kong.Option) (*kong.Kong, error) {
	options = append([]kong.Option{
		kong.Name("notemap"),
		kong.Description("Force-directed layouts for note graphs"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Configuration(kong.JSON, defaultConfigPath),
		kong.Vars{
			"version": Version,
		},
	}, options...)
	return kong.New(c, options...)
}

// Execute parses command-line arguments and executes the selected command.
func (c *CLI) Execute(args []string) error {
	parser, err := c.parser()
	if err != nil {
		return err
	}
	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return kongCtx.Run(&c.Globals)
}
