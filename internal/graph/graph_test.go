package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFullGraph(t *testing.T) {
	t.Parallel()

	g := NewFullGraph()

	assert.NotNil(t, g)
	assert.Equal(t, 0, g.NoteCount())
	assert.Equal(t, 0, g.LinkCount())
}

func TestFullGraph_AddNote(t *testing.T) {
	t.Parallel()

	t.Run("AddSingle", func(t *testing.T) {
		t.Parallel()
		g := NewFullGraph()
		note := &Note{ID: "n1", Title: "Stoicism", Category: "idea"}

		g.AddNote(note)

		assert.Equal(t, 1, g.NoteCount())
		assert.Equal(t, note, g.GetNote("n1"))
		assert.True(t, g.HasNote("n1"))
	})

	t.Run("AddMultiple", func(t *testing.T) {
		t.Parallel()
		g := NewFullGraph()

		g.AddNote(&Note{ID: "a", Category: "idea"})
		g.AddNote(&Note{ID: "b", Category: "idea"})
		g.AddNote(&Note{ID: "c", Category: "person"})

		assert.Equal(t, 3, g.NoteCount())
		assert.Equal(t, 2, g.CountByCategory("idea"))
		assert.Equal(t, 1, g.CountByCategory("person"))
		assert.Equal(t, []string{"idea", "person"}, g.Categories())
	})

	t.Run("ReplaceWithDifferentCategory", func(t *testing.T) {
		t.Parallel()
		g := NewFullGraph()

		g.AddNote(&Note{ID: "a", Category: "idea"})
		g.AddNote(&Note{ID: "a", Category: "person", Title: "Seneca"})

		assert.Equal(t, 1, g.NoteCount())
		assert.Equal(t, 0, g.CountByCategory("idea"))
		assert.Equal(t, 1, g.CountByCategory("person"))
		assert.Equal(t, "Seneca", g.GetNote("a").Title)
	})
}

func TestFullGraph_AddLink(t *testing.T) {
	t.Parallel()

	t.Run("StoresMirroredPair", func(t *testing.T) {
		t.Parallel()
		g := NewFullGraph()

		require.NoError(t, g.AddLink("a", "b", RefToChild, 2))

		assert.Equal(t, []Link{{Neighbor: "b", Kind: RefToChild, Strength: 2}}, g.Links("a"))
		assert.Equal(t, []Link{{Neighbor: "a", Kind: RefToParent, Strength: -2}}, g.Links("b"))
		assert.Equal(t, 1, g.LinkCount())
	})

	t.Run("KeepsInsertionOrder", func(t *testing.T) {
		t.Parallel()
		g := NewFullGraph()

		require.NoError(t, g.AddLink("a", "c", RefGeneric, 1))
		require.NoError(t, g.AddLink("b", "a", RefCritical, 1))
		require.NoError(t, g.AddLink("a", "b", RefInContrast, 1))

		links := g.Links("a")
		require.Len(t, links, 3)
		assert.Equal(t, "c", links[0].Neighbor)
		assert.Equal(t, Link{Neighbor: "b", Kind: RefCritical, Strength: -1}, links[1])
		assert.Equal(t, Link{Neighbor: "b", Kind: RefInContrast, Strength: 1}, links[2])
	})

	t.Run("RejectsInvalid", func(t *testing.T) {
		t.Parallel()
		g := NewFullGraph()

		assert.ErrorIs(t, g.AddLink("a", "b", RefKind("bogus"), 1), ErrInvalidLink)
		assert.ErrorIs(t, g.AddLink("a", "b", RefGeneric, 0), ErrInvalidLink)
		assert.ErrorIs(t, g.AddLink("a", "b", RefGeneric, -1), ErrInvalidLink)
		assert.Equal(t, 0, g.LinkCount())
		assert.Nil(t, g.Links("a"))
	})

	t.Run("LinksReturnsCopy", func(t *testing.T) {
		t.Parallel()
		g := NewFullGraph()
		require.NoError(t, g.AddLink("a", "b", RefGeneric, 1))

		links := g.Links("a")
		links[0].Neighbor = "mutated"

		assert.Equal(t, "b", g.Links("a")[0].Neighbor)
	})
}

func TestFullGraph_Connections(t *testing.T) {
	t.Parallel()

	g := NewFullGraph()
	require.NoError(t, g.AddConnection(Connection{From: "b", To: "c", Kind: RefGeneric, Strength: 1}))
	require.NoError(t, g.AddConnection(Connection{From: "a", To: "b", Kind: RefToChild, Strength: 3}))

	assert.Equal(t, []Connection{
		{From: "a", To: "b", Kind: RefToChild, Strength: 3},
		{From: "b", To: "c", Kind: RefGeneric, Strength: 1},
	}, g.Connections())
	assert.Equal(t, 2, g.Degree("b"))
}

func TestFullGraph_RemoveNote(t *testing.T) {
	t.Parallel()

	t.Run("CascadesBothDirections", func(t *testing.T) {
		t.Parallel()
		g := NewFullGraph()
		for _, id := range []string{"a", "b", "c"} {
			g.AddNote(&Note{ID: id})
		}
		require.NoError(t, g.AddLink("a", "b", RefGeneric, 1))
		require.NoError(t, g.AddLink("c", "a", RefGeneric, 1))
		require.NoError(t, g.AddLink("b", "c", RefGeneric, 1))

		assert.True(t, g.RemoveNote("a"))

		assert.Equal(t, 2, g.NoteCount())
		assert.Equal(t, 1, g.LinkCount())
		assert.Nil(t, g.Links("a"))
		assert.Equal(t, []Link{{Neighbor: "c", Kind: RefGeneric, Strength: 1}}, g.Links("b"))
		assert.Equal(t, []Link{{Neighbor: "b", Kind: RefGeneric, Strength: -1}}, g.Links("c"))
	})

	t.Run("SelfLoop", func(t *testing.T) {
		t.Parallel()
		g := NewFullGraph()
		g.AddNote(&Note{ID: "a"})
		require.NoError(t, g.AddLink("a", "a", RefGeneric, 1))
		assert.Len(t, g.Links("a"), 2)

		assert.True(t, g.RemoveNote("a"))
		assert.Equal(t, 0, g.LinkCount())
	})

	t.Run("RemoveNonExistent", func(t *testing.T) {
		t.Parallel()
		g := NewFullGraph()

		assert.False(t, g.RemoveNote("missing"))
	})
}

func TestFullGraph_Queries(t *testing.T) {
	t.Parallel()

	g := NewFullGraph()
	g.AddNote(&Note{ID: "b", Category: "idea"})
	g.AddNote(&Note{ID: "a", Category: "idea"})
	g.AddNote(&Note{ID: "c", Category: "person"})
	require.NoError(t, g.AddLink("a", "b", RefGeneric, 1))

	t.Run("Notes", func(t *testing.T) {
		t.Parallel()
		notes := g.Notes()
		require.Len(t, notes, 3)
		assert.Equal(t, "a", notes[0].ID)
		assert.Equal(t, "c", notes[2].ID)
	})

	t.Run("NotesByCategory", func(t *testing.T) {
		t.Parallel()
		assert.Len(t, g.NotesByCategory("idea"), 2)
		assert.Nil(t, g.NotesByCategory("quote"))
	})

	t.Run("IterNotes", func(t *testing.T) {
		t.Parallel()
		count := 0
		for range g.IterNotes() {
			count++
		}
		assert.Equal(t, 3, count)
	})

	t.Run("Stats", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, map[string]int{"notes": 3, "links": 1}, g.Stats())
	})
}
