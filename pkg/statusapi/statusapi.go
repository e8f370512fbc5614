// Package statusapi serves launch progress over HTTP while the pipeline
// runs. Builds can take minutes; orchestrator probes and humans can watch
// /state instead of tailing logs. The server is always shut down before
// handoff: after exec the service owns every port it wants to own.
package statusapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/hookline/stagezero/pkg/lifecycle"
)

// Server exposes the launch-progress endpoints.
type Server struct {
	tracker *lifecycle.Tracker
	srv     *http.Server
	ln      net.Listener
}

// New builds the server. metricsHandler serves the launch metric registry.
func New(listen string, tracker *lifecycle.Tracker, metricsHandler http.Handler) *Server {
	s := &Server{tracker: tracker}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.Health).Methods("GET")
	r.HandleFunc("/state", s.State).Methods("GET")
	r.Handle("/metrics", metricsHandler).Methods("GET")

	s.srv = &http.Server{
		Addr:         listen,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start binds the listener and serves in the background. Bind failures
// surface synchronously; they are diagnostic, not fatal to the launch.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("status api listen on %s: %w", s.srv.Addr, err)
	}
	s.ln = ln

	go func() {
		// ErrServerClosed is the normal pre-handoff shutdown path.
		_ = s.srv.Serve(ln)
	}()
	return nil
}

// Addr returns the bound address, useful when listening on :0 in tests.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.srv.Addr
	}
	return s.ln.Addr().String()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Health reports liveness of the supervisor itself.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// State serves the current lifecycle snapshot.
func (s *Server) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
