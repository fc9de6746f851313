package retriever

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/nucleus/tileindex/internal/errs"
)

// Server exposes Service over the §6 HTTP surface: GET /health, POST /search.
type Server struct {
	svc    *Service
	logger *log.Logger
	mux    *http.ServeMux
}

// NewServer wires the retriever's two handlers.
func NewServer(svc *Service, logger *log.Logger) *Server {
	s := &Server{svc: svc, logger: logger, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /search", s.handleSearch)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var q Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "decode request: "+err.Error())
		return
	}
	results, err := s.svc.Search(r.Context(), q)
	if err != nil {
		s.writeSearchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// writeSearchError maps a vector-backend failure to the §4.6 failure rule:
// unknown table -> 404 (errs.ErrNotFound), anything else unclassified,
// such as a network failure reaching the backend, falls through
// errs.HTTPStatus to 503.
func (s *Server) writeSearchError(w http.ResponseWriter, err error) {
	kind := "unavailable"
	if errors.Is(err, errs.ErrNotFound) {
		kind = "not_found"
	}
	status := errs.HTTPStatus(err)
	if status >= 500 {
		s.logger.Printf("retriever: search error: %v", err)
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
