package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rbruinekool/singularity/internal/dispatch"
	"github.com/rbruinekool/singularity/internal/reconcile"
	"github.com/rbruinekool/singularity/internal/store"
)

const (
	// ReadHeaderTimeout limits how long the server waits for request headers.
	ReadHeaderTimeout = 5 * time.Second
	// ShutdownTimeout limits how long the server waits for in-flight
	// requests during graceful shutdown.
	ShutdownTimeout = 5 * time.Second
	// maxBodyBytes caps request bodies.
	maxBodyBytes = 1 << 20
)

// Pusher sends a row to the renderer on demand.
type Pusher interface {
	Push(ctx context.Context, rowID int64, opts dispatch.PushOptions) error
}

// Server holds the dependencies of every handler.
type Server struct {
	store      *store.Store
	reconciler *reconcile.Reconciler
	pusher     Pusher
	hub        *Hub
	backlog    func() int
	mux        *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithBacklog reports the number of events waiting for the engine loop in
// /healthz.
func WithBacklog(fn func() int) Option {
	return func(s *Server) {
		s.backlog = fn
	}
}

// New builds the API. pusher and hub may be nil, in which case the push
// and feed routes answer 503.
func New(s *store.Store, r *reconcile.Reconciler, pusher Pusher, hub *Hub, opts ...Option) *Server {
	srv := &Server{
		store:      s,
		reconciler: r,
		pusher:     pusher,
		hub:        hub,
		mux:        http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(srv)
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /control", s.handleGetControl)
	s.mux.HandleFunc("PATCH /control", s.handlePatchControl)

	s.mux.HandleFunc("GET /rundown/{collection}", s.handleListRows)
	s.mux.HandleFunc("POST /rundown/{collection}", s.handleInsertRow)
	s.mux.HandleFunc("POST /rundown/{collection}/move", s.handleMoveRow)
	s.mux.HandleFunc("POST /rundown/{collection}/{id}/duplicate", s.handleDuplicateRow)
	s.mux.HandleFunc("PATCH /rundown/{collection}/{id}", s.handleSetCells)
	s.mux.HandleFunc("DELETE /rundown/{collection}/{id}", s.handleDeleteRow)
	s.mux.HandleFunc("POST /rundown/rundown/{id}/push", s.handlePush)

	s.mux.HandleFunc("GET /connections", s.handleListConnections)
	s.mux.HandleFunc("GET /events", s.handleEvents)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

// Handler returns the root handler with request logging.
func (s *Server) Handler() http.Handler {
	return logRequests(s.mux)
}

// ServeListener serves on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", ln.Addr().String())
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	if s.hub != nil {
		s.hub.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("http server stopped")
	return nil
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "event feed disabled")
		return
	}
	s.hub.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DB().PingContext(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	resp := map[string]any{"status": "ok"}
	if s.backlog != nil {
		resp["queued"] = s.backlog()
	}
	writeJSON(w, http.StatusOK, resp)
}

// statusRecorder captures the response code for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the underlying writer for websocket upgrades.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}

// errorBody is the failure envelope shared by every route.
type errorBody struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
