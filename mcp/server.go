// Package mcp provides the MCP (Model Context Protocol) server for notemap.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Benny93/notemap/internal/graph"
	"github.com/Benny93/notemap/internal/layout"
	"github.com/Benny93/notemap/internal/storage"
	"github.com/Benny93/notemap/internal/view"
)

const (
	serverName    = "notemap"
	serverVersion = "0.1.0"

	// defaultLayoutFrames bounds notemap_layout.
	defaultLayoutFrames = 600
)

// Server represents the MCP server.
type Server struct {
	storage StorageBackend
	params  layout.Params
	server  *mcp.Server

	mu    sync.Mutex
	graph *graph.FullGraph
}

// StorageBackend defines the storage the server answers from.
type StorageBackend interface {
	SearchNotes(ctx context.Context, query string, limit int) ([]storage.SearchResult, error)
	GetNote(ctx context.Context, id string) (*graph.Note, error)
	GetLinks(ctx context.Context, id string) ([]graph.Link, error)
	LoadGraph(ctx context.Context) (*graph.FullGraph, error)
	NoteCount() int
	LinkCount() int
}

// Tool represents an MCP tool.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// Resource represents an MCP resource.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
}

// NewServer creates a new MCP server. Subgraph and layout tools run with
// the given simulation params.
func NewServer(storage StorageBackend, params layout.Params) *Server {
	s := &Server{
		storage: storage,
		params:  params,
	}

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)
	s.register()

	return s
}

func queryProperties() map[string]*jsonschema.Schema {
	return map[string]*jsonschema.Schema{
		"root":  {Type: "string", Description: "Note ID or title of the root note"},
		"depth": {Type: "integer", Description: "Expansion rounds (default 2, max 8)"},
		"categories": {
			Type:        "array",
			Items:       &jsonschema.Schema{Type: "string"},
			Description: "Only include notes of these categories",
		},
		"parent_child": {Type: "boolean", Description: "Follow parent/child references only"},
	}
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []Tool {
	return []Tool{
		{
			Name:        "notemap_search",
			Description: "Search notes by title. Returns ranked notes matching the query.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"query": {Type: "string", Description: "Search query text"},
					"limit": {Type: "integer", Description: "Maximum number of results"},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        "notemap_note",
			Description: "Show a note with its category and every incoming and outgoing reference.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"note": {Type: "string", Description: "Note ID or title"},
				},
				Required: []string{"note"},
			},
		},
		{
			Name:        "notemap_subgraph",
			Description: "Extract the notes and references around a root note.",
			InputSchema: &jsonschema.Schema{
				Type:       "object",
				Properties: queryProperties(),
				Required:   []string{"root"},
			},
		},
		{
			Name:        "notemap_layout",
			Description: "Lay out the subgraph around a root note and return the settled node positions.",
			InputSchema: &jsonschema.Schema{
				Type:       "object",
				Properties: queryProperties(),
				Required:   []string{"root"},
			},
		},
	}
}

// ListResources returns all registered resources.
func (s *Server) ListResources() []Resource {
	return []Resource{
		{
			URI:         "notemap://overview",
			Name:        "Note Graph Overview",
			Description: "Note, link and category counts of the stored graph",
			MimeType:    "text/plain",
		},
		{
			URI:         "notemap://schema",
			Name:        "Graph Schema",
			Description: "Description of notes and reference kinds",
			MimeType:    "text/plain",
		},
	}
}

// CallTool executes a tool with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "notemap_search":
		query, _ := args["query"].(string)
		limit, _ := args["limit"].(float64)
		if limit <= 0 {
			limit = 20
		}
		return handleSearch(ctx, s.storage, query, int(limit))
	case "notemap_note":
		note, _ := args["note"].(string)
		return handleNote(ctx, s.storage, note)
	case "notemap_subgraph":
		return s.handleSubgraph(ctx, queryFromArgs(args))
	case "notemap_layout":
		return s.handleLayout(ctx, queryFromArgs(args))
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

// ReadResource reads a resource by URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (string, error) {
	switch uri {
	case "notemap://overview":
		return s.getOverview(ctx)
	case "notemap://schema":
		return getSchema(), nil
	default:
		return "", fmt.Errorf("unknown resource: %s", uri)
	}
}

// Run serves one MCP session over stdin and stdout. It returns when the
// client closes stdin or ctx ends.
func (s *Server) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	if stdin == nil || stdout == nil {
		return fmt.Errorf("stdin and stdout must not be nil")
	}

	err := s.server.Run(ctx, &mcp.IOTransport{
		Reader: io.NopCloser(stdin),
		Writer: nopWriteCloser{stdout},
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Connect serves one MCP session over t and returns without waiting for
// it to end.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// register publishes ListTools and ListResources on the protocol server.
func (s *Server) register() {
	for _, tool := range s.ListTools() {
		s.server.AddTool(&mcp.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		}, s.toolHandler(tool.Name))
	}
	for _, res := range s.ListResources() {
		s.server.AddResource(&mcp.Resource{
			URI:         res.URI,
			Name:        res.Name,
			Description: res.Description,
			MIMEType:    res.MimeType,
		}, s.resourceHandler)
	}
}

// toolHandler adapts CallTool. Tool failures are reported in the result
// rather than as protocol errors.
func (s *Server) toolHandler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := map[string]any{}
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return nil, fmt.Errorf("decoding %s arguments: %w", name, err)
			}
		}

		text, err := s.CallTool(ctx, name, args)
		if err != nil {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
				IsError: true,
			}, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, nil
	}
}

func (s *Server) resourceHandler(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	text, err := s.ReadResource(ctx, uri)
	if err != nil {
		return nil, err
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: "text/plain", Text: text}},
	}, nil
}

// fullGraph loads the stored graph on first use.
func (s *Server) fullGraph(ctx context.Context) (*graph.FullGraph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.graph != nil {
		return s.graph, nil
	}
	g, err := s.storage.LoadGraph(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading graph: %w", err)
	}
	s.graph = g
	return g, nil
}

// queryFromArgs reads a view query from tool arguments. JSON numbers
// arrive as float64.
func queryFromArgs(args map[string]any) view.Query {
	q := view.Query{}
	q.Root, _ = args["root"].(string)
	if depth, ok := args["depth"].(float64); ok {
		q.Depth = int(depth)
	}
	if cats, ok := args["categories"].([]any); ok {
		for _, c := range cats {
			if cat, ok := c.(string); ok {
				q.Categories = append(q.Categories, cat)
			}
		}
	}
	q.ParentChildOnly, _ = args["parent_child"].(bool)
	return q.Normalized()
}

// Tool Handlers

func handleSearch(ctx context.Context, storage StorageBackend, query string, limit int) (string, error) {
	if query == "" {
		return "No query provided", nil
	}

	results, err := storage.SearchNotes(ctx, query, limit)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "No results found", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d notes for '%s':\n\n", len(results), query))
	for i, r := range results {
		sb.WriteString(fmt.Sprintf("%d. **%s** (`%s`)", i+1, r.Title, r.NoteID))
		if r.Category != "" {
			sb.WriteString(" [" + r.Category + "]")
		}
		sb.WriteString(fmt.Sprintf(" score %.0f\n", r.Score))
	}
	sb.WriteString("\nNext: Use `notemap_subgraph` with a note ID as root to see its neighbourhood.")

	return sb.String(), nil
}

// resolveNoteID accepts a note ID or falls back to the best title match.
func resolveNoteID(ctx context.Context, storage StorageBackend, ref string) (string, error) {
	note, err := storage.GetNote(ctx, ref)
	if err != nil {
		return "", err
	}
	if note != nil {
		return note.ID, nil
	}

	results, err := storage.SearchNotes(ctx, ref, 10)
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

	return "", fmt.Errorf("note '%s': %w", ref, graph.ErrNoteNotFound)
}

func handleNote(ctx context.Context, storage StorageBackend, ref string) (string, error) {
	if ref == "" {
		return "No note provided", nil
	}

	id, err := resolveNoteID(ctx, storage, ref)
	if err != nil {
		return fmt.Sprintf("Note '%s' not found", ref), nil
	}
	note, err := storage.GetNote(ctx, id)
	if err != nil {
		return "", err
	}
	links, err := storage.GetLinks(ctx, id)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Note: **%s** (`%s`)\n", note.Label(), note.ID))
	if note.Category != "" {
		sb.WriteString(fmt.Sprintf("Category: %s\n", note.Category))
	}
	if note.Terminator {
		sb.WriteString("Terminator: traversal stops here\n")
	}
	sb.WriteString("\n")

	var outgoing, incoming []graph.Link
	for _, l := range links {
		if l.Forward() {
			outgoing = append(outgoing, l)
		} else {
			incoming = append(incoming, l)
		}
	}

	if len(outgoing) > 0 {
		sb.WriteString(fmt.Sprintf("## References (%d)\n", len(outgoing)))
		for _, l := range outgoing {
			sb.WriteString(fmt.Sprintf("- %s (%s, strength %g)\n", l.Neighbor, l.Kind, l.Strength))
		}
		sb.WriteString("\n")
	}
	if len(incoming) > 0 {
		sb.WriteString(fmt.Sprintf("## Referenced by (%d)\n", len(incoming)))
		for _, l := range incoming {
			sb.WriteString(fmt.Sprintf("- %s (%s, strength %g)\n", l.Neighbor, l.Kind.Opposing(), -l.Strength))
		}
		sb.WriteString("\n")
	}
	if len(links) == 0 {
		sb.WriteString("No references. The note is an orphan.\n")
	}

	sb.WriteString("\nNext: Use `notemap_layout` to position this note's neighbourhood.")
	return sb.String(), nil
}

func (s *Server) handleSubgraph(ctx context.Context, q view.Query) (string, error) {
	if q.Root == "" {
		return "No root provided", nil
	}
	root, err := resolveNoteID(ctx, s.storage, q.Root)
	if err != nil {
		return fmt.Sprintf("Note '%s' not found", q.Root), nil
	}
	q.Root = root

	g, err := s.fullGraph(ctx)
	if err != nil {
		return "", err
	}
	sub, err := view.Extract(g, q)
	if err != nil {
		return fmt.Sprintf("Note '%s' not found", q.Root), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Subgraph around **%s** (depth %d)\n\n", root, q.Depth))
	sb.WriteString(fmt.Sprintf("## Notes (%d)\n", len(sub.Nodes)))
	for _, id := range sub.Nodes {
		label := id
		if note := g.GetNote(id); note != nil {
			label = note.Label()
		}
		sb.WriteString(fmt.Sprintf("- %s (`%s`)\n", label, id))
	}
	sb.WriteString(fmt.Sprintf("\n## References (%d)\n", len(sub.Edges)))
	for _, e := range sub.Edges {
		sb.WriteString(fmt.Sprintf("- %s -> %s (%s, strength %g)\n", e.Source, e.Target, e.Kind, e.Strength))
	}

	return sb.String(), nil
}

func (s *Server) handleLayout(ctx context.Context, q view.Query) (string, error) {
	if q.Root == "" {
		return "No root provided", nil
	}
	root, err := resolveNoteID(ctx, s.storage, q.Root)
	if err != nil {
		return fmt.Sprintf("Note '%s' not found", q.Root), nil
	}
	q.Root = root

	g, err := s.fullGraph(ctx)
	if err != nil {
		return "", err
	}
	f, err := view.Compute(g, q, s.params, defaultLayoutFrames)
	if err != nil {
		return fmt.Sprintf("Note '%s' not found", q.Root), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Layout around **%s** after %d ticks", root, f.Tick))
	if f.Running {
		sb.WriteString(" (not settled)")
	}
	sb.WriteString("\n\n| Note | X | Y |\n|------|---|---|\n")
	for _, n := range f.Nodes {
		sb.WriteString(fmt.Sprintf("| %s | %.1f | %.1f |\n", n.Title, n.X, n.Y))
	}

	return sb.String(), nil
}

// Resource Handlers

func (s *Server) getOverview(ctx context.Context) (string, error) {
	g, err := s.fullGraph(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("# notemap Graph Overview\n\n")
	sb.WriteString(fmt.Sprintf("**Notes:** %d\n", s.storage.NoteCount()))
	sb.WriteString(fmt.Sprintf("**Links:** %d\n", s.storage.LinkCount()))

	categories := g.Categories()
	if len(categories) > 0 {
		sb.WriteString("\n## Categories\n\n")
		for _, c := range categories {
			sb.WriteString(fmt.Sprintf("- %s: %d\n", c, g.CountByCategory(c)))
		}
	}
	return sb.String(), nil
}

func getSchema() string {
	var sb strings.Builder
	sb.WriteString("# notemap Graph Schema\n\n")
	sb.WriteString("## Note\n\n")
	sb.WriteString("| Field | Description |\n")
	sb.WriteString("|-------|-------------|\n")
	sb.WriteString("| `id` | Unique note identifier |\n")
	sb.WriteString("| `title` | Display label, defaults to the ID |\n")
	sb.WriteString("| `category` | Optional grouping such as idea or person |\n")
	sb.WriteString("| `terminator` | Shown when reached, never expanded |\n")
	sb.WriteString("\n## Reference Kinds\n\n")
	sb.WriteString("| Kind | Meaning |\n")
	sb.WriteString("|------|---------|\n")
	sb.WriteString(fmt.Sprintf("| `%s` | Generic reference |\n", graph.RefGeneric))
	sb.WriteString(fmt.Sprintf("| `%s` | Points at a parent note |\n", graph.RefToParent))
	sb.WriteString(fmt.Sprintf("| `%s` | Points at a child note |\n", graph.RefToChild))
	sb.WriteString(fmt.Sprintf("| `%s` | Contrasting note |\n", graph.RefInContrast))
	sb.WriteString(fmt.Sprintf("| `%s` | Critique of the target |\n", graph.RefCritical))
	sb.WriteString("\nEvery link is stored once with a positive strength and mirrored at the\n")
	sb.WriteString("target with the opposing kind and negated strength.\n")

	return sb.String()
}
