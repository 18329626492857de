package ingestion

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Benny93/notemap/internal/graph"
)

const (
	notesCypher = `MATCH (n:Note)
		RETURN n.id AS id, n.title AS title, n.category AS category,
		       coalesce(n.terminator, false) AS terminator`

	linksCypher = `MATCH (a:Note)-[r:LINKS]->(b:Note)
		RETURN a.id AS from, b.id AS to, r.kind AS kind, r.strength AS strength`
)

// Neo4jSource reads (:Note) nodes and [:LINKS] relationships from Neo4j.
type Neo4jSource struct {
	driver   neo4j.DriverWithContext
	uri      string
	database string
}

// NewNeo4jSource creates a source for the database at uri. An empty
// database selects the server default.
func NewNeo4jSource(uri, user, password, database string) (*Neo4jSource, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	return &Neo4jSource{driver: driver, uri: uri, database: database}, nil
}

// Close releases the underlying Neo4j driver resources.
func (s *Neo4jSource) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Neo4jSource) String() string {
	return s.uri
}

// Load implements Source.
func (s *Neo4jSource) Load(ctx context.Context) (*graph.FullGraph, error) {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", s.uri, err)
	}

	notes, err := s.query(ctx, notesCypher)
	if err != nil {
		return nil, fmt.Errorf("reading notes: %w", err)
	}
	links, err := s.query(ctx, linksCypher)
	if err != nil {
		return nil, fmt.Errorf("reading links: %w", err)
	}

	doc, err := documentFromRecords(notes, links)
	if err != nil {
		return nil, err
	}

	g := graph.NewFullGraph()
	if err := doc.AddTo(g); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *Neo4jSource) query(ctx context.Context, cypher string) ([]*neo4j.Record, error) {
	var opts []neo4j.ExecuteQueryConfigurationOption
	if s.database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(s.database))
	}
	res, err := neo4j.ExecuteQuery(ctx, s.driver, cypher, nil, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// documentFromRecords converts query rows into a Document.
func documentFromRecords(notes, links []*neo4j.Record) (*Document, error) {
	doc := &Document{
		Notes: make([]NoteRecord, 0, len(notes)),
		Links: make([]LinkRecord, 0, len(links)),
	}

	for i, rec := range notes {
		id, ok := recordString(rec, "id")
		if !ok || id == "" {
			return nil, fmt.Errorf("note row %d: missing id", i)
		}
		title, _ := recordString(rec, "title")
		category, _ := recordString(rec, "category")
		terminator, _ := rec.Get("terminator")
		isTerminator, _ := terminator.(bool)

		doc.Notes = append(doc.Notes, NoteRecord{ID: id, Title: title, Category: category, Terminator: isTerminator})
	}

	for i, rec := range links {
		from, okFrom := recordString(rec, "from")
		to, okTo := recordString(rec, "to")
		if !okFrom || !okTo {
			return nil, fmt.Errorf("link row %d: missing endpoint", i)
		}
		kind, _ := recordString(rec, "kind")

		l := LinkRecord{From: from, To: to, Kind: kind}
		if raw, ok := rec.Get("strength"); ok && raw != nil {
			strength, err := toFloat(raw)
			if err != nil {
				return nil, fmt.Errorf("link row %d: %w", i, err)
			}
			l.Strength = &strength
		}
		doc.Links = append(doc.Links, l)
	}
	return doc, nil
}

// recordString returns a string column; missing and null columns report false.
func recordString(rec *neo4j.Record, key string) (string, bool) {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("strength has type %T", v)
	}
}
