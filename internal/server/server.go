// Package server exposes note graph views over HTTP.
//
// Views are created with a query, streamed to the browser as Server-Sent
// Events and steered by pinning nodes while the user drags them.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/Benny93/notemap/internal/storage"
	"github.com/Benny93/notemap/internal/view"
)

const (
	// DefaultPinRate is the sustained number of pin requests per second.
	DefaultPinRate = 240

	// DefaultPinBurst is the number of pin requests allowed at once.
	DefaultPinBurst = 480

	// DefaultHeartbeat is the interval of SSE keep-alive events.
	DefaultHeartbeat = 30 * time.Second

	// DefaultLayoutFrames bounds the headless layout endpoint.
	DefaultLayoutFrames = 600
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithVersion sets the version reported by the health endpoint.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithPinRate limits pin requests to r per second with the given burst.
func WithPinRate(r float64, burst int) Option {
	return func(s *Server) {
		s.pinLimiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// WithHeartbeat sets the SSE heartbeat interval.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) {
		s.heartbeat = d
	}
}

// Server is the notemap HTTP API server.
type Server struct {
	manager    *view.Manager
	store      storage.Backend
	router     chi.Router
	pinLimiter *rate.Limiter
	heartbeat  time.Duration
	logger     *slog.Logger
	version    string
	started    time.Time

	httpServer *http.Server
}

// New creates a Server over the views of manager. The store serves title
// search.
func New(manager *view.Manager, store storage.Backend, opts ...Option) *Server {
	s := &Server{
		manager:    manager,
		store:      store,
		pinLimiter: rate.NewLimiter(rate.Limit(DefaultPinRate), DefaultPinBurst),
		heartbeat:  DefaultHeartbeat,
		logger:     slog.Default(),
		version:    "dev",
		started:    time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/notes", s.handleSearch)
		r.Get("/notes/{noteID}", s.handleNote)
		r.Get("/subgraph", s.handleSubgraph)
		r.Get("/layout", s.handleLayout)

		r.Get("/views", s.handleListViews)
		r.Post("/views", s.handleCreateView)
		r.Get("/views/{viewID}", s.handleGetView)
		r.Delete("/views/{viewID}", s.handleDeleteView)
		r.Get("/views/{viewID}/frames", s.handleFrames)
		r.Post("/views/{viewID}/pins", s.withRateLimit(s.pinLimiter, s.handlePin))
		r.Delete("/views/{viewID}/pins/{nodeID}", s.handleUnpin)
	})

	s.router = r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.httpServer = &http.Server{
		Handler:     s,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	s.logger.Info("listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Shutdown closes every view, which ends open frame streams, and then
// stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.manager.Close()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	g := s.manager.Graph()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"notes":   g.NoteCount(),
		"links":   g.LinkCount(),
		"views":   s.manager.Count(),
	})
}

// writeJSON writes v as JSON with the given HTTP status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

// statusRecorder captures the status code written by handlers. It keeps
// http.Flusher working for the frame stream.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// withRateLimit rejects requests with 429 once limiter is exhausted. The
// limiter is shared by all clients.
func (s *Server) withRateLimit(limiter *rate.Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", int(limiter.Tokens())))
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":"rate limit exceeded","retry_after_ms":1000}`)
			s.logger.Warn("rate limit exceeded",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			return
		}
		next(w, r)
	}
}
