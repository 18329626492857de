package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/notemap/internal/graph"
	"github.com/Benny93/notemap/internal/layout"
	"github.com/Benny93/notemap/internal/storage"
	"github.com/Benny93/notemap/internal/view"
)

func testGraph(t *testing.T) *graph.FullGraph {
	t.Helper()
	g := graph.NewFullGraph()
	g.AddNote(&graph.Note{ID: "a", Title: "Stoic Virtue", Category: "idea"})
	g.AddNote(&graph.Note{ID: "b", Title: "Seneca", Category: "person"})
	g.AddNote(&graph.Note{ID: "c", Title: "Moral Letters", Category: "article"})
	require.NoError(t, g.AddLink("a", "b", graph.RefToChild, 1))
	require.NoError(t, g.AddLink("b", "c", graph.RefGeneric, 1))
	return g
}

func testServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	g := testGraph(t)

	store := storage.NewMemoryBackend()
	require.NoError(t, store.Initialize("", false))
	require.NoError(t, store.BulkLoad(t.Context(), g))

	m := view.NewManager(g, layout.DefaultParams(), view.WithFrameInterval(time.Millisecond))
	t.Cleanup(m.Close)
	return New(m, store, append([]Option{WithVersion("test-version")}, opts...)...)
}

func do(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func createView(t *testing.T, srv http.Handler, root string) viewResponse {
	t.Helper()
	w := do(t, srv, http.MethodPost, "/api/views", `{"root":"`+root+`"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[viewResponse](t, w)
}

func TestHealth(t *testing.T) {
	t.Parallel()
	srv := testServer(t)

	w := do(t, srv, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[map[string]any](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test-version", body["version"])
	assert.EqualValues(t, 3, body["notes"])
	assert.EqualValues(t, 2, body["links"])
	assert.EqualValues(t, 0, body["views"])
}

func TestSearch(t *testing.T) {
	t.Parallel()
	srv := testServer(t)

	t.Run("Matches", func(t *testing.T) {
		t.Parallel()
		w := do(t, srv, http.MethodGet, "/api/notes?q=letters", "")
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Results []storage.SearchResult `json:"results"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body.Results, 1)
		assert.Equal(t, "c", body.Results[0].NoteID)
	})

	tests := []struct {
		name string
		path string
	}{
		{"MissingQuery", "/api/notes"},
		{"BadLimit", "/api/notes?q=x&limit=zero"},
		{"NegativeLimit", "/api/notes?q=x&limit=-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, tt.path, "").Code)
		})
	}
}

func TestNote(t *testing.T) {
	t.Parallel()
	srv := testServer(t)

	t.Run("Found", func(t *testing.T) {
		t.Parallel()
		w := do(t, srv, http.MethodGet, "/api/notes/b", "")
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			ID    string       `json:"id"`
			Title string       `json:"title"`
			Links []graph.Link `json:"links"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "b", body.ID)
		assert.Equal(t, "Seneca", body.Title)
		assert.Len(t, body.Links, 2)
	})

	t.Run("NotFound", func(t *testing.T) {
		t.Parallel()
		w := do(t, srv, http.MethodGet, "/api/notes/ghost", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "note_not_found", decode[map[string]string](t, w)["code"])
	})
}

func TestSubgraph(t *testing.T) {
	t.Parallel()
	srv := testServer(t)

	tests := []struct {
		name      string
		path      string
		wantCode  int
		wantNodes []string
	}{
		{"Default", "/api/subgraph?root=a", http.StatusOK, []string{"a", "b", "c"}},
		{"DepthOne", "/api/subgraph?root=a&depth=1", http.StatusOK, []string{"a", "b"}},
		{"Category", "/api/subgraph?root=a&category=idea&category=person", http.StatusOK, []string{"a", "b"}},
		{"ParentChild", "/api/subgraph?root=a&parent_child=true", http.StatusOK, []string{"a", "b"}},
		{"MissingRoot", "/api/subgraph", http.StatusBadRequest, nil},
		{"BadDepth", "/api/subgraph?root=a&depth=x", http.StatusBadRequest, nil},
		{"BadParentChild", "/api/subgraph?root=a&parent_child=maybe", http.StatusBadRequest, nil},
		{"UnknownRoot", "/api/subgraph?root=ghost", http.StatusNotFound, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := do(t, srv, http.MethodGet, tt.path, "")
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantNodes != nil {
				var body struct {
					Nodes []string `json:"nodes"`
				}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, tt.wantNodes, body.Nodes)
			}
		})
	}
}

func TestLayout(t *testing.T) {
	t.Parallel()
	srv := testServer(t)

	w := do(t, srv, http.MethodGet, "/api/layout?root=b", "")
	require.Equal(t, http.StatusOK, w.Code)

	f := decode[view.Frame](t, w)
	assert.Equal(t, "b", f.Root)
	assert.Len(t, f.Nodes, 3)
	assert.Len(t, f.Edges, 2)
	assert.False(t, f.Running)

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/layout?root=ghost", "").Code)
}

func TestViews(t *testing.T) {
	t.Parallel()

	t.Run("Lifecycle", func(t *testing.T) {
		t.Parallel()
		srv := testServer(t)

		created := createView(t, srv, "a")
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, view.DefaultDepth, created.Query.Depth)
		assert.Len(t, created.Frame.Nodes, 3)

		w := do(t, srv, http.MethodGet, "/api/views", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[[]map[string]any](t, w), 1)

		w = do(t, srv, http.MethodGet, "/api/views/"+created.ID, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, created.ID, decode[viewResponse](t, w).Frame.ViewID)

		assert.Equal(t, http.StatusNoContent, do(t, srv, http.MethodDelete, "/api/views/"+created.ID, "").Code)
		assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/views/"+created.ID, "").Code)
		assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodDelete, "/api/views/"+created.ID, "").Code)
	})

	t.Run("CreateErrors", func(t *testing.T) {
		t.Parallel()
		srv := testServer(t)

		assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/views", "{").Code)
		assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/views", `{}`).Code)
		assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodPost, "/api/views", `{"root":"ghost"}`).Code)
	})
}

func TestPins(t *testing.T) {
	t.Parallel()

	t.Run("PinAndUnpin", func(t *testing.T) {
		t.Parallel()
		srv := testServer(t)
		v := createView(t, srv, "a")

		w := do(t, srv, http.MethodPost, "/api/views/"+v.ID+"/pins", `{"node":"b","x":120,"y":-40}`)
		require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

		assert.Eventually(t, func() bool {
			f := decode[viewResponse](t, do(t, srv, http.MethodGet, "/api/views/"+v.ID, "")).Frame
			node, ok := f.Node("b")
			return ok && node.Pinned && node.X == 120 && node.Y == -40
		}, 10*time.Second, 5*time.Millisecond)

		assert.Equal(t, http.StatusNoContent, do(t, srv, http.MethodDelete, "/api/views/"+v.ID+"/pins/b", "").Code)
	})

	t.Run("Errors", func(t *testing.T) {
		t.Parallel()
		srv := testServer(t)
		v := createView(t, srv, "a")
		pins := "/api/views/" + v.ID + "/pins"

		tests := []struct {
			name     string
			method   string
			path     string
			body     string
			wantCode int
		}{
			{"UnknownView", http.MethodPost, "/api/views/nope/pins", `{"node":"a"}`, http.StatusNotFound},
			{"InvalidJSON", http.MethodPost, pins, "{", http.StatusBadRequest},
			{"MissingNode", http.MethodPost, pins, `{"x":1}`, http.StatusBadRequest},
			{"NodeNotInView", http.MethodPost, pins, `{"node":"ghost"}`, http.StatusNotFound},
			{"UnpinNotInView", http.MethodDelete, pins + "/ghost", "", http.StatusNotFound},
		}
		for _, tt := range tests {
			w := do(t, srv, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, w.Code, tt.name)
		}
	})

	t.Run("RateLimited", func(t *testing.T) {
		t.Parallel()
		srv := testServer(t, WithPinRate(0.001, 1))
		v := createView(t, srv, "a")
		pins := "/api/views/" + v.ID + "/pins"

		require.Equal(t, http.StatusNoContent, do(t, srv, http.MethodPost, pins, `{"node":"a"}`).Code)

		w := do(t, srv, http.MethodPost, pins, `{"node":"a"}`)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "1", w.Header().Get("Retry-After"))
		assert.Equal(t, "rate limit exceeded", decode[map[string]any](t, w)["error"])
	})
}

// sseEvent is one parsed Server-Sent Event.
type sseEvent struct {
	name string
	data string
}

func readEvents(t *testing.T, scanner *bufio.Scanner, events chan<- sseEvent) {
	t.Helper()
	defer close(events)

	var ev sseEvent
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			events <- ev
			ev = sseEvent{}
		}
	}
}

func TestFrames(t *testing.T) {
	t.Parallel()

	srv := testServer(t, WithHeartbeat(20*time.Millisecond))
	ts := httptest.NewServer(srv)
	defer ts.Close()

	v := createView(t, srv, "a")

	resp, err := http.Get(ts.URL + "/api/views/" + v.ID + "/frames")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	events := make(chan sseEvent, 256)
	go readEvents(t, scanner, events)

	next := func() sseEvent {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "stream ended")
			return ev
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for event")
			return sseEvent{}
		}
	}

	first := next()
	require.Equal(t, "frame", first.name)
	var f view.Frame
	require.NoError(t, json.Unmarshal([]byte(first.data), &f))
	assert.Equal(t, v.ID, f.ViewID)
	assert.Len(t, f.Nodes, 3)

	for seen := map[string]bool{}; !seen["heartbeat"]; {
		seen[next().name] = true
	}

	require.Equal(t, http.StatusNoContent, do(t, srv, http.MethodDelete, "/api/views/"+v.ID, "").Code)
	for ev := next(); ev.name != "closed"; ev = next() {
	}

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/views/"+v.ID+"/frames", "").Code)
}

func TestListenAndServe(t *testing.T) {
	t.Parallel()

	t.Run("StopsOnCancel", func(t *testing.T) {
		t.Parallel()
		srv := testServer(t)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("server did not stop")
		}
	})

	t.Run("BadAddress", func(t *testing.T) {
		t.Parallel()
		err := testServer(t).ListenAndServe(t.Context(), "256.0.0.1:-1")
		assert.ErrorContains(t, err, "listening on")
	})
}
