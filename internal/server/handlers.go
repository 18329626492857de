package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Benny93/notemap/internal/graph"
	"github.com/Benny93/notemap/internal/view"
)

const defaultSearchLimit = 20

type noteResponse struct {
	*graph.Note
	Title string       `json:"title"`
	Links []graph.Link `json:"links"`
}

type viewResponse struct {
	ID    string     `json:"id"`
	Query view.Query `json:"query"`
	Frame view.Frame `json:"frame"`
}

type pinRequest struct {
	Node string  `json:"node"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// writeLookupError maps domain errors onto HTTP statuses.
func writeLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, graph.ErrNoteNotFound):
		writeError(w, http.StatusNotFound, "note_not_found", err.Error())
	case errors.Is(err, view.ErrViewNotFound):
		writeError(w, http.StatusNotFound, "view_not_found", err.Error())
	case errors.Is(err, view.ErrNodeNotInView):
		writeError(w, http.StatusNotFound, "node_not_in_view", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

// queryFromRequest reads root, depth, category and parent_child from the
// URL query.
func queryFromRequest(r *http.Request) (view.Query, error) {
	params := r.URL.Query()
	q := view.Query{
		Root:       params.Get("root"),
		Categories: params["category"],
	}
	if q.Root == "" {
		return q, errors.New("root is required")
	}
	if d := params.Get("depth"); d != "" {
		depth, err := strconv.Atoi(d)
		if err != nil {
			return q, errors.New("depth must be an integer")
		}
		q.Depth = depth
	}
	if pc := params.Get("parent_child"); pc != "" {
		only, err := strconv.ParseBool(pc)
		if err != nil {
			return q, errors.New("parent_child must be a boolean")
		}
		q.ParentChildOnly = only
	}
	return q.Normalized(), nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "q is required")
		return
	}
	limit := defaultSearchLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = n
	}

	results, err := s.store.SearchNotes(r.Context(), q, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   q,
		"results": results,
	})
}

func (s *Server) handleNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "noteID")
	g := s.manager.Graph()

	note := g.GetNote(id)
	if note == nil {
		writeError(w, http.StatusNotFound, "note_not_found", "note "+strconv.Quote(id)+" not found")
		return
	}
	writeJSON(w, http.StatusOK, noteResponse{
		Note:  note,
		Title: note.Label(),
		Links: g.Links(id),
	})
}

func (s *Server) handleSubgraph(w http.ResponseWriter, r *http.Request) {
	q, err := queryFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	sub, err := view.Extract(s.manager.Graph(), q)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	q, err := queryFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	f, err := view.Compute(s.manager.Graph(), q, s.manager.Params(), DefaultLayoutFrames)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleListViews(w http.ResponseWriter, r *http.Request) {
	views := s.manager.List()
	out := make([]map[string]any, 0, len(views))
	for _, v := range views {
		out = append(out, map[string]any{
			"id":          v.ID,
			"query":       v.Query,
			"running":     v.Running(),
			"subscribers": v.SubscriberCount(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateView(w http.ResponseWriter, r *http.Request) {
	var q view.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	if q.Root == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "root is required")
		return
	}

	v, err := s.manager.Create(q)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewResponse{ID: v.ID, Query: v.Query, Frame: v.Frame()})
}

func (s *Server) handleGetView(w http.ResponseWriter, r *http.Request) {
	v, err := s.manager.Get(chi.URLParam(r, "viewID"))
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewResponse{ID: v.ID, Query: v.Query, Frame: v.Frame()})
}

func (s *Server) handleDeleteView(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Delete(chi.URLParam(r, "viewID")); err != nil {
		writeLookupError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePin(w http.ResponseWriter, r *http.Request) {
	v, err := s.manager.Get(chi.URLParam(r, "viewID"))
	if err != nil {
		writeLookupError(w, err)
		return
	}

	var req pinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	if req.Node == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "node is required")
		return
	}

	if err := v.Pin(req.Node, req.X, req.Y); err != nil {
		writeLookupError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnpin(w http.ResponseWriter, r *http.Request) {
	v, err := s.manager.Get(chi.URLParam(r, "viewID"))
	if err != nil {
		writeLookupError(w, err)
		return
	}
	if err := v.Unpin(chi.URLParam(r, "nodeID")); err != nil {
		writeLookupError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
