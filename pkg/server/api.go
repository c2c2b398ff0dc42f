package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// The HTTP API is a read-only snapshot surface over the same registry the
// websocket layer mutates; it never exposes connection handles.

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess := s.registry.Get(id)
	if sess == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": msgSessionNotFound})
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot(s.config.HistoryLimit))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Stats())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
