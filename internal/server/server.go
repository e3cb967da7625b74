// Package server exposes the pipeline over HTTP. Pipeline runs stream
// their progress events to the client as newline-delimited JSON.
package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-intel/internal/pipeline"
	"github.com/sells-group/company-intel/internal/session"
	"github.com/sells-group/company-intel/internal/stream"
)

// Runner executes a pipeline run for a session. Satisfied by
// *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, sessionID string, emit stream.Emitter) (*pipeline.Result, error)
}

// Server routes HTTP requests to the pipeline and session store.
type Server struct {
	store session.Store
	pipe  Runner
}

// New creates a Server.
func New(store session.Store, pipe Runner) *Server {
	return &Server{store: store, pipe: pipe}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/sessions", s.handleCreateSession)
	r.Get("/sessions/{id}", s.handleGetSession)
	r.Post("/sessions/{id}/run", s.handleRunSession)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Domain string `json:"domain"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Domain == "" {
		writeError(w, http.StatusBadRequest, "domain is required")
		return
	}
	if req.Name == "" {
		req.Name = req.Domain
	}

	sess, err := s.store.Create(r.Context(), req.Name, req.Domain)
	if err != nil {
		zap.L().Error("server: creating session failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "creating session failed")
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if eris.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		zap.L().Error("server: loading session failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "loading session failed")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleRunSession executes the pipeline, streaming events as NDJSON.
// The terminal complete or error event is the last line of the body.
func (s *Server) handleRunSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.Get(r.Context(), id); err != nil {
		if eris.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "loading session failed")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	if _, err := s.pipe.Run(r.Context(), id, stream.NDJSON(w)); err != nil {
		// The error already went to the client as the terminal event.
		zap.L().Warn("server: pipeline run failed",
			zap.String("session_id", id),
			zap.Error(err),
		)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
