// Package web implements the HTTP server runtime: one
// long-lived event stream per session, a background chat runner, and
// out-of-band approval resolution.
package web

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pocketomega/codex-core/internal/session"
)

// Server holds everything the HTTP handlers need: the session store and
// the factory that builds new runtimes.
type Server struct {
	Store   *session.Store
	Factory *session.Factory
	mux     *http.ServeMux
}

// NewServer wires the mux.
func NewServer(store *session.Store, factory *session.Factory) *Server {
	s := &Server{Store: store, Factory: factory, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/sessions", s.handleCreate)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.handleGet)
	s.mux.HandleFunc("POST /api/sessions/{id}/resume", s.handleResume)
	s.mux.HandleFunc("POST /api/sessions/{id}/chat", s.handleChat)
	s.mux.HandleFunc("POST /api/sessions/{id}/approvals/{callId}", s.handleApproval)
	s.mux.HandleFunc("GET /api/sessions/{id}/stream", s.handleStream)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// NewHTTPServer wraps Server in an *http.Server with the generous,
// multi-minute timeouts long model calls and SSE streams need.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// WriteTimeout is intentionally left at zero: the SSE stream and
		// long-running chat dispatch are both multi-minute by design.
	}
}
