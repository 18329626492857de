package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/notemap/internal/graph"
	"github.com/Benny93/notemap/internal/layout"
	"github.com/Benny93/notemap/internal/subgraph"
	"github.com/Benny93/notemap/internal/view"
)

const notesDocument = `{
  "notes": [
    {"id": "stoa", "title": "Stoicism", "category": "idea"},
    {"id": "seneca", "title": "Seneca the Younger", "category": "person"},
    {"id": "letters", "title": "Moral Letters", "category": "article"},
    {"id": "lonely", "title": "Lonely Thought", "category": "idea", "terminator": true}
  ],
  "links": [
    {"from": "stoa", "to": "seneca", "kind": "ref_to_child"},
    {"from": "seneca", "to": "letters", "strength": 2}
  ]
}`

func simFlagsFrom(p layout.Params) SimFlags {
	return SimFlags{
		RestLength:        p.RestLength,
		Charge:            p.Charge,
		MinDistance2:      p.MinDistance2,
		CollideRadius:     p.CollideRadius,
		CenterX:           p.CenterX,
		CenterY:           p.CenterY,
		VelocityDecay:     p.VelocityDecay,
		AlphaMin:          p.AlphaMin,
		CoolingTicks:      p.CoolingTicks,
		VelocityThreshold: p.VelocityThreshold,
		MinTicks:          p.MinTicks,
		SpiralRadius:      p.SpiralRadius,
	}
}

// testGlobals returns globals over an empty store that capture output.
func testGlobals(t *testing.T) (*Globals, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	g := &Globals{
		Store:  filepath.Join(t.TempDir(), ".notemap"),
		Quiet:  true,
		Sim:    simFlagsFrom(layout.DefaultParams()),
		stdout: &out,
	}
	return g, &out
}

func writeNotes(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.json"), []byte(notesDocument), 0o644))
	return dir
}

// importedGlobals returns globals over a store holding notesDocument.
func importedGlobals(t *testing.T) (*Globals, *bytes.Buffer) {
	t.Helper()
	g, out := testGlobals(t)
	require.NoError(t, (&ImportCmd{Path: writeNotes(t)}).Run(g))
	out.Reset()
	return g, out
}

func TestImportCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("ImportDirectory", func(t *testing.T) {
		t.Parallel()
		g, out := testGlobals(t)
		g.Quiet = false
		dir := writeNotes(t)

		err := (&ImportCmd{Path: dir}).Run(g)
		require.NoError(t, err)

		assert.Contains(t, out.String(), "Import complete")
		assert.Contains(t, out.String(), "Notes:        4")
		assert.Contains(t, out.String(), "Orphans:      1")

		meta, err := readMeta(g.Store)
		require.NoError(t, err)
		assert.Equal(t, dir, meta.Source)
		assert.Equal(t, Version, meta.Version)
		require.NotNil(t, meta.Stats)
		assert.Equal(t, 2, meta.Stats.Links)
		assert.Equal(t, 3, meta.Stats.Categories)
		assert.Equal(t, 1, meta.Stats.Terminators)
	})

	t.Run("InvalidDocument", func(t *testing.T) {
		t.Parallel()
		g, _ := testGlobals(t)
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))

		err := (&ImportCmd{Path: dir}).Run(g)
		assert.ErrorContains(t, err, "importing")
	})

	t.Run("Reimport", func(t *testing.T) {
		t.Parallel()
		g, out := importedGlobals(t)
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "one.json"),
			[]byte(`{"notes":[{"id":"solo"}]}`), 0o644))

		require.NoError(t, (&ImportCmd{Path: dir}).Run(g))
		out.Reset()

		require.NoError(t, (&StatsCmd{}).Run(g))
		assert.Contains(t, out.String(), "Notes:        1")
	})
}

func TestCommands_NoStore(t *testing.T) {
	t.Parallel()

	commands := []struct {
		name string
		run  func(g *Globals) error
	}{
		{"Stats", (&StatsCmd{}).Run},
		{"Search", (&SearchCmd{Query: "stoa", Limit: 10}).Run},
		{"Note", (&NoteCmd{Note: "stoa"}).Run},
		{"Subgraph", (&SubgraphCmd{Root: "stoa", Format: "table"}).Run},
		{"Layout", (&LayoutCmd{Root: "stoa", MaxFrames: 10, Format: "table"}).Run},
	}

	for _, tc := range commands {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			g, _ := testGlobals(t)

			err := tc.run(g)
			assert.ErrorContains(t, err, "no store found")
		})
	}
}

func TestStatsCmd_Run(t *testing.T) {
	t.Parallel()
	g, out := importedGlobals(t)

	require.NoError(t, (&StatsCmd{}).Run(g))

	text := out.String()
	assert.Contains(t, text, "Store "+g.Store)
	assert.Contains(t, text, "Notes:        4")
	assert.Contains(t, text, "Links:        2")
	assert.Contains(t, text, "Terminators:  1")
	assert.Contains(t, text, "Categories:   3")
	assert.Contains(t, text, "person")
}

func TestSearchCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("Matches", func(t *testing.T) {
		t.Parallel()
		g, out := importedGlobals(t)

		require.NoError(t, (&SearchCmd{Query: "seneca", Limit: 10}).Run(g))
		assert.Equal(t, "1. Seneca the Younger (seneca) [person] score 1\n", out.String())
	})

	t.Run("NoResults", func(t *testing.T) {
		t.Parallel()
		g, out := importedGlobals(t)

		require.NoError(t, (&SearchCmd{Query: "epicurus", Limit: 10}).Run(g))
		assert.Equal(t, "No results found\n", out.String())
	})
}

func TestNoteCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("ByID", func(t *testing.T) {
		t.Parallel()
		g, out := importedGlobals(t)

		require.NoError(t, (&NoteCmd{Note: "seneca"}).Run(g))

		text := out.String()
		assert.Contains(t, text, "Seneca the Younger (seneca)")
		assert.Contains(t, text, "Category: person")
		assert.Contains(t, text, "References (1)")
		assert.Contains(t, text, "-> letters (ref, 2)")
		assert.Contains(t, text, "Referenced by (1)")
		assert.Contains(t, text, "<- stoa")
	})

	t.Run("ByTitle", func(t *testing.T) {
		t.Parallel()
		g, out := importedGlobals(t)

		require.NoError(t, (&NoteCmd{Note: "Moral Letters"}).Run(g))
		assert.Contains(t, out.String(), "Moral Letters (letters)")
	})

	t.Run("Terminator", func(t *testing.T) {
		t.Parallel()
		g, out := importedGlobals(t)

		require.NoError(t, (&NoteCmd{Note: "lonely"}).Run(g))
		assert.Contains(t, out.String(), "Terminator: traversal stops here")
		assert.Contains(t, out.String(), "References (0)")
	})

	t.Run("NotFound", func(t *testing.T) {
		t.Parallel()
		g, out := importedGlobals(t)

		require.NoError(t, (&NoteCmd{Note: "nope"}).Run(g))
		assert.Equal(t, "Note 'nope' not found.\n", out.String())
	})
}

func TestSubgraphCmd_Run(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		cmd   SubgraphCmd
		nodes []string
	}{
		{
			name:  "Default",
			cmd:   SubgraphCmd{Root: "stoa", Query: QueryFlags{Depth: 2}},
			nodes: []string{"stoa", "seneca", "letters"},
		},
		{
			name:  "ByTitle",
			cmd:   SubgraphCmd{Root: "Moral Letters", Query: QueryFlags{Depth: 1}},
			nodes: []string{"letters", "seneca"},
		},
		{
			name:  "ParentChild",
			cmd:   SubgraphCmd{Root: "stoa", Query: QueryFlags{Depth: 2, ParentChild: true}},
			nodes: []string{"stoa", "seneca"},
		},
		{
			name:  "Category",
			cmd:   SubgraphCmd{Root: "stoa", Query: QueryFlags{Depth: 2, Category: []string{"idea", "person"}}},
			nodes: []string{"stoa", "seneca"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g, out := importedGlobals(t)
			cmd := tt.cmd
			cmd.Format = "json"

			require.NoError(t, cmd.Run(g))

			var sub subgraph.Subgraph
			require.NoError(t, json.Unmarshal(out.Bytes(), &sub))
			assert.Equal(t, tt.nodes, sub.Nodes)
		})
	}

	t.Run("Table", func(t *testing.T) {
		t.Parallel()
		g, out := importedGlobals(t)

		cmd := SubgraphCmd{Root: "stoa", Query: QueryFlags{Depth: 2}, Format: "table"}
		require.NoError(t, cmd.Run(g))

		text := out.String()
		assert.True(t, strings.HasPrefix(text, "Subgraph around stoa (depth 2): 3 notes, 2 references"))
		assert.Contains(t, text, "stoa -> seneca (ref_to_child, 1)")
		assert.Contains(t, text, "seneca -> letters (ref, 2)")
	})

	t.Run("UnknownRoot", func(t *testing.T) {
		t.Parallel()
		g, _ := importedGlobals(t)

		cmd := SubgraphCmd{Root: "epicurus", Query: QueryFlags{Depth: 2}, Format: "table"}
		err := cmd.Run(g)
		assert.ErrorIs(t, err, graph.ErrNoteNotFound)
	})
}

func TestLayoutCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("JSON", func(t *testing.T) {
		t.Parallel()
		g, out := importedGlobals(t)

		cmd := LayoutCmd{Root: "seneca", Query: QueryFlags{Depth: 2}, MaxFrames: 1000, Format: "json"}
		require.NoError(t, cmd.Run(g))

		var f view.Frame
		require.NoError(t, json.Unmarshal(out.Bytes(), &f))
		assert.Equal(t, "seneca", f.Root)
		assert.Len(t, f.Nodes, 3)
		assert.Len(t, f.Edges, 2)
		assert.Positive(t, f.Tick)
	})

	t.Run("Table", func(t *testing.T) {
		t.Parallel()
		g, out := importedGlobals(t)

		cmd := LayoutCmd{Root: "stoa", Query: QueryFlags{Depth: 1}, MaxFrames: 1000, Format: "table"}
		require.NoError(t, cmd.Run(g))

		text := out.String()
		assert.Contains(t, text, "NOTE")
		assert.Contains(t, text, "Stoicism")
		assert.Contains(t, text, "Seneca the Younger")
		assert.Contains(t, text, "ticks")
	})

	t.Run("InvalidParams", func(t *testing.T) {
		t.Parallel()
		g, _ := importedGlobals(t)
		g.Sim.CoolingTicks = 0

		cmd := LayoutCmd{Root: "stoa", MaxFrames: 10, Format: "table"}
		assert.ErrorContains(t, cmd.Run(g), "invalid simulation flags")
	})
}

func TestWatchCmd_Run(t *testing.T) {
	t.Parallel()
	g, out := testGlobals(t)
	g.Quiet = false
	dir := writeNotes(t)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	cmd := WatchCmd{Path: dir, Root: "stoa", Query: QueryFlags{Depth: 2}, MaxFrames: 1000, Format: "table"}
	require.NoError(t, cmd.run(ctx, g))

	assert.Contains(t, out.String(), "Loaded 4 notes")
	assert.Contains(t, out.String(), "Moral Letters")
}

func TestServeCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("StopsOnCancel", func(t *testing.T) {
		t.Parallel()
		g, _ := importedGlobals(t)

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		cmd := ServeCmd{Addr: "127.0.0.1:0", PinRate: 240, PinBurst: 480}
		assert.NoError(t, cmd.run(ctx, g))
	})

	t.Run("WithWatch", func(t *testing.T) {
		t.Parallel()
		g, _ := importedGlobals(t)

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		cmd := ServeCmd{Addr: "127.0.0.1:0", Watch: writeNotes(t), PinRate: 240, PinBurst: 480}
		assert.NoError(t, cmd.run(ctx, g))
	})

	t.Run("StopsAfterServing", func(t *testing.T) {
		t.Parallel()
		g, _ := importedGlobals(t)

		ctx, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
		defer cancel()

		cmd := ServeCmd{Addr: "127.0.0.1:0", PinRate: 240, PinBurst: 480}
		assert.NoError(t, cmd.run(ctx, g))
	})

	t.Run("NoStore", func(t *testing.T) {
		t.Parallel()
		g, _ := testGlobals(t)

		cmd := ServeCmd{Addr: "127.0.0.1:0"}
		assert.ErrorContains(t, cmd.run(t.Context(), g), "no store found")
	})
}

func TestMCPCmd_Run(t *testing.T) {
	t.Parallel()
	g, _ := importedGlobals(t)

	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n")
	var out bytes.Buffer

	require.NoError(t, (&MCPCmd{}).run(t.Context(), g, in, &out))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, float64(1), resp["id"])
	assert.NotContains(t, resp, "error")
}

func TestCleanCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("Force", func(t *testing.T) {
		t.Parallel()
		g, out := importedGlobals(t)

		require.NoError(t, (&CleanCmd{Force: true}).Run(g))
		assert.NoDirExists(t, g.Store)
		assert.Contains(t, out.String(), "Deleted "+g.Store)
	})

	t.Run("NoStore", func(t *testing.T) {
		t.Parallel()
		g, _ := testGlobals(t)

		assert.ErrorContains(t, (&CleanCmd{Force: true}).Run(g), "Nothing to clean")
	})
}

func TestCLI_Parse(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		c := NewCLI()
		parser, err := c.parser()
		require.NoError(t, err)

		kctx, err := parser.Parse([]string{"stats"})
		require.NoError(t, err)
		assert.Equal(t, "stats", kctx.Command())
		assert.Equal(t, ".notemap", c.Store)

		params, err := c.Sim.Params()
		require.NoError(t, err)
		assert.Equal(t, layout.DefaultParams(), params)
	})

	t.Run("Flags", func(t *testing.T) {
		c := NewCLI()
		parser, err := c.parser()
		require.NoError(t, err)

		_, err = parser.Parse([]string{
			"--store", "/tmp/notes", "--sim-charge=-400",
			"subgraph", "stoa", "-d", "3", "-c", "idea", "--parent-child", "-f", "json",
		})
		require.NoError(t, err)

		assert.Equal(t, "/tmp/notes", c.Store)
		assert.Equal(t, -400.0, c.Sim.Charge)
		assert.Equal(t, "stoa", c.Subgraph.Root)
		assert.Equal(t, QueryFlags{Depth: 3, Category: []string{"idea"}, ParentChild: true}, c.Subgraph.Query)
		assert.Equal(t, "json", c.Subgraph.Format)
	})

	t.Run("Environment", func(t *testing.T) {
		t.Setenv("NOTEMAP_STORE", "/srv/notes")
		t.Setenv("NOTEMAP_SIM_COOLING_TICKS", "120")

		c := NewCLI()
		parser, err := c.parser()
		require.NoError(t, err)

		_, err = parser.Parse([]string{"stats"})
		require.NoError(t, err)
		assert.Equal(t, "/srv/notes", c.Store)
		assert.Equal(t, 120, c.Sim.CoolingTicks)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"store": "/var/notes", "sim_charge": -500}`), 0o644))

		c := NewCLI()
		parser, err := c.parser(kong.Configuration(kong.JSON, path))
		require.NoError(t, err)

		_, err = parser.Parse([]string{"stats"})
		require.NoError(t, err)
		assert.Equal(t, "/var/notes", c.Store)
		assert.Equal(t, -500.0, c.Sim.Charge)
	})

	t.Run("InvalidFormat", func(t *testing.T) {
		c := NewCLI()
		parser, err := c.parser()
		require.NoError(t, err)

		_, err = parser.Parse([]string{"layout", "stoa", "-f", "yaml"})
		assert.Error(t, err)
	})
}
