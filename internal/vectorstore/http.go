package vectorstore

import (
	"bufio"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/nucleus/tileindex/internal/errs"
)

// Server exposes the vector index adapter over the HTTP surfaces in §6.
type Server struct {
	adapter Adapter
	logger  *log.Logger
	mux     *http.ServeMux
}

// NewServer wires handlers for /health, /tables, and the per-table routes.
func NewServer(adapter Adapter, logger *log.Logger) *Server {
	s := &Server{adapter: adapter, logger: logger, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /tables", s.handleListTables)
	s.mux.HandleFunc("GET /tables/{n}/info", s.handleInfo)
	s.mux.HandleFunc("POST /tables/{n}/search", s.handleSearch)
	s.mux.HandleFunc("POST /tables/{n}/rows", s.handleUpsert)
	s.mux.HandleFunc("POST /tables/{n}/upsert", s.handleUpsert)
	s.mux.HandleFunc("POST /tables/{n}/delete", s.handleDelete)
	s.mux.HandleFunc("POST /tables/{n}/export", s.handleExport)
	s.mux.HandleFunc("POST /tables/{n}/optimize", s.handleOptimize)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	names, err := s.adapter.ListTables(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": names})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("n")
	info, err := s.adapter.Info(r.Context(), name)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type upsertRequest struct {
	Rows      []Row  `json:"rows"`
	Dimension int    `json:"dimension,omitempty"`
	Metric    Metric `json:"metric,omitempty"`
}

func (s *Server) handleUpsert(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("n")
	var body upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "decode request: "+err.Error())
		return
	}
	if len(body.Rows) == 0 {
		writeError(w, http.StatusBadRequest, "rows must be non-empty")
		return
	}
	for _, row := range body.Rows {
		if len(row.Embedding) == 0 {
			writeError(w, http.StatusBadRequest, "row "+row.ID+" is missing an embedding")
			return
		}
	}
	dim := body.Dimension
	if dim == 0 {
		dim = len(body.Rows[0].Embedding)
	}
	metric := body.Metric
	if metric == "" {
		metric = MetricCosine
	}
	if err := s.adapter.CreateOrOpen(r.Context(), name, dim, metric); err != nil {
		s.writeStoreError(w, err)
		return
	}
	if err := s.adapter.Upsert(r.Context(), name, body.Rows); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"upserted": len(body.Rows)})
}

type searchRequest struct {
	Query        []float32 `json:"query"`
	K            int       `json:"k"`
	Where        string    `json:"where,omitempty"`
	Columns      []string  `json:"columns,omitempty"`
	NProbes      int       `json:"nprobes,omitempty"`
	RefineFactor int       `json:"refine_factor,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("n")
	var body searchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "decode request: "+err.Error())
		return
	}
	results, err := s.adapter.VectorSearch(r.Context(), name, body.Query, SearchOptions{
		K: body.K, Where: body.Where, Columns: body.Columns, NProbes: body.NProbes, RefineFactor: body.RefineFactor,
	})
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("n")
	var body struct {
		Where string `json:"where"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "decode request: "+err.Error())
		return
	}
	result, err := s.adapter.DeleteWhere(r.Context(), name, body.Where)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("n")
	var body struct {
		PageSize int `json:"page_size"`
		MaxRows  int `json:"max_rows"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "decode request: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	bw := bufio.NewWriter(w)
	defer bw.Flush()
	enc := json.NewEncoder(bw)
	n, err := s.adapter.ExportJsonl(r.Context(), name, ExportOptions{PageSize: body.PageSize, MaxRows: body.MaxRows}, func(row Row) error {
		return enc.Encode(row)
	})
	if err != nil && n == 0 {
		s.writeStoreError(w, err)
		return
	}
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("n")
	if err := s.adapter.Optimize(r.Context(), name); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	status := errs.HTTPStatus(err)
	if status >= 500 {
		s.logger.Printf("vectorstore: internal error: %v", err)
	}
	kind := "unknown"
	switch {
	case errors.Is(err, errs.ErrNotFound):
		kind = "not_found"
	case errors.Is(err, errs.ErrSchemaConflict):
		kind = "schema_conflict"
	case errors.Is(err, errs.ErrDimMismatch):
		kind = "dim_mismatch"
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
