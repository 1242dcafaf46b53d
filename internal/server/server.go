package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jpalmerr/pollster"
	"github.com/jpalmerr/pollster/internal/store"
)

const (
	// sseWriteTimeout bounds a single SSE write so slow or disconnected
	// clients cannot pin a handler goroutine. Must be <= shutdownTimeout.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second
)

// PollerSource lists the pollers exposed by the control endpoints.
// [*pollster.Registry] satisfies it.
type PollerSource interface {
	Pollers() []*pollster.Poller
}

// PollerStatus is the JSON form of a poller's lifecycle state.
type PollerStatus struct {
	ID        string          `json:"id"`
	Resource  string          `json:"resource"`
	Action    string          `json:"action"`
	DelayMs   int64           `json:"delay_ms"`
	Params    pollster.Params `json:"params"`
	Running   bool            `json:"running"`
	Scheduled bool            `json:"scheduled"`
	Cycles    uint64          `json:"cycles"`
}

func statusOf(p *pollster.Poller) PollerStatus {
	return PollerStatus{
		ID:        p.ID(),
		Resource:  p.Name(),
		Action:    p.Action(),
		DelayMs:   p.Delay().Milliseconds(),
		Params:    p.Params(),
		Running:   p.Running(),
		Scheduled: p.Scheduled(),
		Cycles:    p.Cycles(),
	}
}

// Server exposes poll results and poller controls over HTTP.
//
// Routes:
//   - GET /api/results: latest record per resource as JSON
//   - GET /api/results/{resource}: latest record for one resource
//   - GET /api/sse: Server-Sent Events stream of records
//   - GET /api/pollers: lifecycle state of every poller
//   - POST /api/pollers/{id}/stop and /restart: lifecycle control
//   - GET /metrics: Prometheus exposition, when a metrics handler is set
//   - GET /healthz: liveness probe
//
// The server shuts down gracefully when the Start context is cancelled.
type Server struct {
	store      store.Store
	pollers    PollerSource
	port       int
	metrics    http.Handler
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a [Server].
//
// Parameters:
//   - st: store holding the latest records
//   - pollers: source for the /api/pollers routes (may be nil)
//   - port: TCP port to listen on (0 picks a free port)
//   - metrics: handler mounted at /metrics (may be nil)
//   - logger: logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, pollers PollerSource, port int, metrics http.Handler, logger *slog.Logger) *Server {
	return &Server{
		store:   st,
		pollers: pollers,
		port:    port,
		metrics: metrics,
		logger:  logger,
	}
}

// Handler returns the route multiplexer.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/results", s.handleResults)
	mux.HandleFunc("GET /api/results/{resource}", s.handleResult)
	mux.HandleFunc("GET /api/sse", s.handleSSE)

	if s.pollers != nil {
		mux.HandleFunc("GET /api/pollers", s.handlePollers)
		mux.HandleFunc("POST /api/pollers/{id}/stop", s.handleControl(func(p *pollster.Poller) { p.Stop() }))
		mux.HandleFunc("POST /api/pollers/{id}/restart", s.handleControl(func(p *pollster.Poller) { p.Restart() }))
	}

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start binds the port synchronously and returns an error if that fails.
// When ctx is cancelled the server shuts down with a 5-second timeout.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts derive from ctx so SSE handlers exit on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	s.logger.Info("http server listening", "addr", ln.Addr().String())

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

// handleResults returns all current records as JSON.
func (s *Server) handleResults(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.GetAll())
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("resource")
	rec, ok := s.store.Get(name)
	if !ok {
		http.Error(w, fmt.Sprintf("no result for resource %q", name), http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handlePollers(w http.ResponseWriter, _ *http.Request) {
	pollers := s.pollers.Pollers()
	statuses := make([]PollerStatus, 0, len(pollers))
	for _, p := range pollers {
		statuses = append(statuses, statusOf(p))
	}
	s.writeJSON(w, http.StatusOK, statuses)
}

// handleControl applies fn to the poller named by the {id} path value and
// responds with its resulting state.
func (s *Server) handleControl(fn func(*pollster.Poller)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		for _, p := range s.pollers.Pollers() {
			if p.ID() != id {
				continue
			}
			fn(p)
			s.logger.Info("poller control", "poller_id", id, "path", r.URL.Path)
			s.writeJSON(w, http.StatusOK, statusOf(p))
			return
		}
		http.Error(w, fmt.Sprintf("poller %q not found", id), http.StatusNotFound)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// handleSSE streams records via Server-Sent Events.
//
// Every write carries a deadline; a blocked write would otherwise keep the
// handler from noticing cancellation or channel closure.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	for _, rec := range s.store.GetAll() {
		data, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		if err := writeAndFlush(data); err != nil {
			return
		}
	}

	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(rec)
			if err != nil {
				s.logger.Warn("failed to encode record", "resource", rec.Resource, "error", err)
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// fires on client disconnect and on server shutdown (BaseContext)
			return
		}
	}
}
