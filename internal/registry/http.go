package registry

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/nucleus/tileindex/internal/errs"
)

// Server exposes the tile registry over the HTTP surfaces listed in §6.
type Server struct {
	store  Store
	logger *log.Logger
	mux    *http.ServeMux
}

// NewServer wires handlers for /health, /tiles, /tiles/{id}, /tiles/batch,
// /tiles/{id}/status, /tiles/batch/status, and /tiles/status/counts.
func NewServer(store Store, logger *log.Logger) *Server {
	s := &Server{store: store, logger: logger, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /tiles", s.handleUpsert)
	s.mux.HandleFunc("GET /tiles", s.handleListByStatus)
	s.mux.HandleFunc("GET /tiles/{id}", s.handleGet)
	s.mux.HandleFunc("DELETE /tiles/{id}", s.handleDeleteOne)
	s.mux.HandleFunc("POST /tiles/batch", s.handleUpsert)
	s.mux.HandleFunc("POST /tiles/{id}/status", s.handleUpdateStatusOne)
	s.mux.HandleFunc("POST /tiles/batch/status", s.handleUpdateStatusBatch)
	s.mux.HandleFunc("GET /tiles/status/counts", s.handleStatusCounts)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpsert(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Tiles []Tile `json:"tiles"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "decode request: "+err.Error())
		return
	}
	for _, t := range body.Tiles {
		if err := t.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if err := s.store.UpsertTiles(r.Context(), body.Tiles); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"upserted": len(body.Tiles)})
}

func (s *Server) handleListByStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := Status(q.Get("status"))
	if status == "" {
		writeError(w, http.StatusBadRequest, "status query parameter is required")
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	tiles, err := s.store.ListByStatus(r.Context(), status, limit, offset)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tiles": tiles})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteOne(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	n, err := s.store.Delete(r.Context(), []string{id})
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (s *Server) handleUpdateStatusOne(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body struct {
		Status Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "decode request: "+err.Error())
		return
	}
	n, err := s.store.UpdateStatus(r.Context(), []string{id}, body.Status)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"changed": n})
}

func (s *Server) handleUpdateStatusBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs    []string `json:"ids"`
		Status Status   `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "decode request: "+err.Error())
		return
	}
	n, err := s.store.UpdateStatus(r.Context(), body.IDs, body.Status)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"changed": n})
}

func (s *Server) handleStatusCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.StatusCounts(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	status := errs.HTTPStatus(err)
	if status >= 500 {
		s.logger.Printf("registry: internal error: %v", err)
	}
	kind := "unknown"
	if errors.Is(err, errs.ErrNotFound) {
		kind = "not_found"
	} else if errors.Is(err, errs.ErrInvalidState) {
		kind = "invalid_state"
	}
	writeJSON(w, status, map[string]string{"error_kind": kind, "message": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error_kind": "poison_payload", "message": message})
}
