// Package api exposes the archive over HTTP: per-category ingestion, the
// bulk reindex trigger, existence probes, similarity search delegation and
// blob fetch-through.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jmunro/archivist/pkg/blob"
	"github.com/jmunro/archivist/pkg/httputil"
	"github.com/jmunro/archivist/pkg/ingest"
	"github.com/jmunro/archivist/pkg/middleware"
	"github.com/jmunro/archivist/pkg/observability"
	"github.com/jmunro/archivist/pkg/search"
)

// Server holds the handler dependencies and builds the router.
type Server struct {
	ingest   *ingest.Service
	store    blob.Store
	searcher search.Searcher
	auth     *middleware.BearerAuth
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewServer wires the API surface. searcher may be nil when no similarity
// service is configured; the search routes then return a dependency error.
func NewServer(svc *ingest.Service, store blob.Store, searcher search.Searcher, token string, logger *observability.Logger, metrics *observability.Metrics) *Server {
	return &Server{
		ingest:   svc,
		store:    store,
		searcher: searcher,
		auth:     middleware.NewBearerAuth(token),
		logger:   logger,
		metrics:  metrics,
	}
}

// Router assembles all routes with the shared middleware chain. Mutating
// routes sit behind bearer auth; reads are open.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.Use(httputil.RequestIDMiddleware)
	r.Use(httputil.RecoveryMiddleware(s.logger))
	r.Use(httputil.LoggingMiddleware(s.logger))
	if s.metrics != nil {
		r.Use(httputil.MetricsMiddleware(s.metrics, routeTemplate))
	}

	// Existence probe keeps its historical path shape.
	r.Handle("/api/photos/check/{hash}", s.auth.Handler(http.HandlerFunc(s.handleCheck))).Methods(http.MethodHead)

	r.Handle("/{category}/ingest", s.auth.Handler(http.HandlerFunc(s.handleReindex))).Methods(http.MethodPost)
	r.HandleFunc("/{category}/search", s.handleSearch).Methods(http.MethodGet)
	r.Handle("/{category}", s.auth.Handler(http.HandlerFunc(s.handleIngest))).Methods(http.MethodPost)
	r.HandleFunc("/{category}/{id}", s.handleGet).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteNotFound(w, "no such route")
	})

	return r
}

// routeTemplate resolves the matched mux template so metrics label
// cardinality stays bounded to the route table.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
