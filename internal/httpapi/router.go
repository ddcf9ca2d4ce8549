// Package httpapi serves spec.md §6's HTTP surface over
// github.com/go-chi/chi/v5, adopted from the retrieval pack's
// jordigilh-kubernaut go.mod (the teacher itself exposes tools over MCP
// stdio, not HTTP, and has no router of its own to generalize). Grounded
// structurally on the teacher's internal/mcp.Server: a thin struct wrapping
// one "engine" dependency, with request/response shapes and error mapping
// kept in sibling files rather than inlined into route registration.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mosaicdb/mosaicdb/internal/engine"
)

// Server serves the coordinator's HTTP surface over one Engine.
type Server struct {
	engine *engine.Engine
	router chi.Router
}

// NewServer builds a Server wrapping eng. eng must be non-nil; the HTTP
// surface has no meaning without a query engine behind it.
func NewServer(eng *engine.Engine) *Server {
	s := &Server{engine: eng}
	s.router = s.buildRouter()
	return s
}

// ServeHTTP implements http.Handler, so a Server can be passed directly to
// http.ListenAndServe.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", s.handleMetrics)
	r.Handle("/metrics/prom", promhttp.Handler())

	r.Post("/search", s.handleSearch)
	r.Post("/search/hybrid", s.handleSearchHybrid)
	r.Post("/query", s.handleQuery)
	r.Post("/analytics", s.handleAnalytics)
	r.Post("/documents", s.handleDocuments)
	r.Get("/shards", s.handleShards)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: messageFor(err), Kind: string(errKind(err))})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}
