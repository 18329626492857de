package storage

import (
	"regexp"
	"sort"
	"strings"

	"github.com/Benny93/notemap/internal/graph"
)

var (
	wordSeparators = regexp.MustCompile(`[^\pL\pN]+`)
	camelBoundary  = regexp.MustCompile(`(\p{Ll})(\p{Lu})`)
	digitBoundary  = regexp.MustCompile(`(\pL)(\pN)|(\pN)(\pL)`)
)

// tokenize splits a title into lowercase search tokens. Each word is kept
// whole and also split on camelCase and letter/digit boundaries, so
// "StoicEthics2" yields "stoicethics2", "stoic", "ethics2", "stoicethics"
// and "2".
func tokenize(text string) []string {
	seen := make(map[string]bool)
	var tokens []string
	add := func(tok string) {
		tok = strings.ToLower(tok)
		if tok == "" || seen[tok] {
			return
		}
		seen[tok] = true
		tokens = append(tokens, tok)
	}

	for _, word := range wordSeparators.Split(text, -1) {
		add(word)
		for _, part := range strings.Fields(camelBoundary.ReplaceAllString(word, "$1 $2")) {
			add(part)
		}
		for _, part := range strings.Fields(digitBoundary.ReplaceAllString(word, "$1$3 $2$4")) {
			add(part)
		}
	}
	return tokens
}

// titleIndex is an inverted index from title tokens to note IDs. It is not
// safe for concurrent use; backends guard it with their own lock.
type titleIndex struct {
	postings map[string]map[string]struct{}
	byNote   map[string][]string
}

func newTitleIndex() *titleIndex {
	return &titleIndex{
		postings: make(map[string]map[string]struct{}),
		byNote:   make(map[string][]string),
	}
}

func (x *titleIndex) add(note *graph.Note) {
	x.remove(note.ID)

	tokens := tokenize(note.Label())
	for _, tok := range tokens {
		if x.postings[tok] == nil {
			x.postings[tok] = make(map[string]struct{})
		}
		x.postings[tok][note.ID] = struct{}{}
	}
	x.byNote[note.ID] = tokens
}

func (x *titleIndex) remove(id string) {
	for _, tok := range x.byNote[id] {
		delete(x.postings[tok], id)
		if len(x.postings[tok]) == 0 {
			delete(x.postings, tok)
		}
	}
	delete(x.byNote, id)
}

// size returns the number of distinct tokens.
func (x *titleIndex) size() int {
	return len(x.postings)
}

// search scores notes by the number of query tokens their title contains.
// Ties are broken by title, then ID. A non-positive limit returns all hits.
func (x *titleIndex) search(query string, limit int, lookup func(id string) *graph.Note) []SearchResult {
	scores := make(map[string]float64)
	for _, tok := range tokenize(query) {
		for id := range x.postings[tok] {
			scores[id]++
		}
	}

	results := make([]SearchResult, 0, len(scores))
	for id, score := range scores {
		note := lookup(id)
		if note == nil {
			continue
		}
		results = append(results, SearchResult{
			NoteID:   id,
			Title:    note.Label(),
			Category: note.Category,
			Score:    score,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.NoteID < b.NoteID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
