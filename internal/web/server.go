// Package web provides the HTTP control and status page for the defcon daemon.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/sweeney/defcon/internal/command"
	"github.com/sweeney/defcon/internal/status"
)

// Server serves the control page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	store      command.Store
	log        *zap.SugaredLogger
}

// New creates a Server that reads state from tracker and writes level
// requests to store.
func New(addr string, tracker *status.Tracker, store command.Store, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{tracker: tracker, store: store, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/level", s.handleLevel)
	mux.HandleFunc("/reason", s.handleReason)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the request multiplexer.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// handleIndex applies a single-character query (?3, ?+, ?-) before
// rendering, so the page shows the level just requested.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	if q := r.URL.RawQuery; q != "" {
		if command.ApplyQuery(s.store, q) {
			s.log.Infow("level requested", "source", "web", "query", q, "level", s.store.Level())
		}
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.log.Warnw("render page", "error", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(w)
}

func (s *Server) handleLevel(w http.ResponseWriter, r *http.Request) {
	l, err := command.ParseLevel(r.URL.Query().Get("value"))
	if err != nil {
		badRequest(w, err)
		return
	}
	s.store.SetLevel(l)
	s.log.Infow("level requested", "source", "web", "level", l)
	s.writeStatus(w)
}

func (s *Server) handleReason(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, err := command.ParseReason(q.Get("id"))
	if err != nil {
		badRequest(w, err)
		return
	}
	asserted := command.Truthy(q.Get("value"))
	s.store.SetReason(id, asserted)
	s.log.Infow("reason requested", "source", "web", "reason", id, "asserted", asserted)
	s.writeStatus(w)
}

func (s *Server) writeStatus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}

func badRequest(w http.ResponseWriter, err error) {
	msg := err.Error()
	switch {
	case errors.Is(err, command.ErrInvalidLevel):
		msg = command.ErrInvalidLevel.Error()
	case errors.Is(err, command.ErrInvalidReason):
		msg = command.ErrInvalidReason.Error()
	}
	http.Error(w, msg, http.StatusBadRequest)
}
