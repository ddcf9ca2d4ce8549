package httpapi

import (
	"net/http"

	"github.com/mosaicdb/mosaicdb/internal/engine"
)

type searchRequest struct {
	Query         string  `json:"query"`
	Limit         int     `json:"limit,omitempty"`
	MinSimilarity float32 `json:"min_similarity,omitempty"`
	Level         string  `json:"level,omitempty"`
}

type hybridSearchRequest struct {
	searchRequest
	Where string `json:"where"`
}

type sqlRequest struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	resp, err := s.engine.Search(r.Context(), req.Query, engine.SearchOptions{
		Limit:         req.Limit,
		MinSimilarity: req.MinSimilarity,
		Level:         req.Level,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearchHybrid(w http.ResponseWriter, r *http.Request) {
	var req hybridSearchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	resp, err := s.engine.SearchHybrid(r.Context(), req.Query, req.Where, engine.SearchOptions{
		Limit:         req.Limit,
		MinSimilarity: req.MinSimilarity,
		Level:         req.Level,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req sqlRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	resp, err := s.engine.Query(r.Context(), req.SQL, engine.SearchOptions{})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	var req sqlRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	resp, err := s.engine.Analytics(r.Context(), req.SQL, engine.SearchOptions{})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// documentsAcceptedResponse is returned by POST /documents, which accepts
// ingest payloads but treats their contents as opaque to the core
// (spec.md §6).
type documentsAcceptedResponse struct {
	Accepted bool `json:"accepted"`
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := decodeJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	writeJSON(w, http.StatusAccepted, documentsAcceptedResponse{Accepted: true})
}

func (s *Server) handleShards(w http.ResponseWriter, r *http.Request) {
	resp, err := s.engine.ListShards(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	resp, err := s.engine.Metrics(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
