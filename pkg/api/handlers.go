package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/jmunro/archivist/pkg/blob"
	"github.com/jmunro/archivist/pkg/envelope"
	"github.com/jmunro/archivist/pkg/httputil"
	"github.com/jmunro/archivist/pkg/index"
)

// IDHeader carries the content address on existence-probe responses. HEAD
// responses have no body, so the header is the only channel.
const IDHeader = "X-Archive-Id"

// handleIngest accepts one raw payload and runs it through the ingestion
// pipeline. A fresh record returns 201, a duplicate returns 200 with the
// existing address.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	category, err := httputil.PathString(r, "category")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteValidationError(w, "failed to read request body")
		return
	}

	result, err := s.ingest.Ingest(r.Context(), category, json.RawMessage(body))
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}

	if result.Created {
		httputil.WriteCreated(w, result)
		return
	}
	httputil.WriteSuccess(w, result)
}

// handleReindex triggers the bulk enumeration fan-out for one category and
// reports how many indexing messages were queued.
func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	category, err := httputil.PathString(r, "category")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	count, err := s.ingest.Reindex(r.Context(), category)
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]int{"count": count})
}

// handleCheck answers whether a photo with the given content hash is
// already archived. 200 with the id header, or 404.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	hash, err := httputil.PathString(r, "hash")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	// Clients may send the bare hex digest.
	id := hash
	if !strings.Contains(id, ":") {
		id = envelope.AddressPrefix + id
	}

	exists, err := s.ingest.Exists(r.Context(), "photo", id)
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set(IDHeader, id)
	w.WriteHeader(http.StatusOK)
}

// handleSearch delegates a similarity query to the external search service.
// No matches is a 200 with an empty list.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	category, err := httputil.PathString(r, "category")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}
	if _, err := envelope.Lookup(category); err != nil {
		s.writeTaxonomyError(w, err)
		return
	}

	q := httputil.QueryString(r, "q", "")
	if q == "" {
		httputil.WriteValidationError(w, "query parameter q is required")
		return
	}
	limit, err := httputil.QueryInt(r, "limit", 10)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	if s.searcher == nil {
		httputil.WriteDependencyError(w, errors.New("similarity search is not configured"))
		return
	}

	matches, err := s.searcher.Search(r.Context(), category, q, limit)
	if err != nil {
		httputil.WriteDependencyError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"matches": matches})
}

// handleGet serves the stored envelope straight from the cold tier.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	category, err := httputil.PathString(r, "category")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}
	id, err := httputil.PathString(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	if _, err := envelope.Lookup(category); err != nil {
		s.writeTaxonomyError(w, err)
		return
	}
	if !envelope.ValidAddress(id) {
		httputil.WriteValidationError(w, "id is not a content address")
		return
	}

	body, err := s.store.Get(r.Context(), blob.Key(category, id))
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			httputil.WriteNotFound(w, "no archived record for "+id)
			return
		}
		httputil.WriteDependencyError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// writeTaxonomyError maps pipeline errors onto the HTTP error taxonomy.
func (s *Server) writeTaxonomyError(w http.ResponseWriter, err error) {
	var verr *envelope.ValidationError
	switch {
	case errors.As(err, &verr):
		httputil.WriteValidationError(w, verr.Error())
	case errors.Is(err, index.ErrConflict):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, blob.ErrNotFound), errors.Is(err, index.ErrNotFound):
		httputil.WriteNotFound(w, err.Error())
	default:
		s.logger.WithError(err).Error("request failed on a dependency")
		httputil.WriteDependencyError(w, err)
	}
}
