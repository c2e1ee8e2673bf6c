package httputil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmunro/archivist/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func TestWriteError_Taxonomy(t *testing.T) {
	cases := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		class  string
	}{
		{"validation", func(w http.ResponseWriter) { WriteValidationError(w, "field missing") }, http.StatusBadRequest, ErrorValidation},
		{"auth", func(w http.ResponseWriter) { WriteUnauthorized(w, "bad token") }, http.StatusUnauthorized, ErrorAuth},
		{"conflict", func(w http.ResponseWriter) { WriteConflict(w, "slug taken") }, http.StatusConflict, ErrorConflict},
		{"not found", func(w http.ResponseWriter) { WriteNotFound(w, "no such record") }, http.StatusNotFound, ErrorNotFound},
		{"dependency", func(w http.ResponseWriter) { WriteDependencyError(w, io.ErrUnexpectedEOF) }, http.StatusInternalServerError, ErrorDependency},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tc.write(rec)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.class, body.Error)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestWriteSuccessAndCreated(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteSuccess(rec, map[string]int{"count": 3}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":3}`, rec.Body.String())

	rec = httptest.NewRecorder()
	require.NoError(t, WriteCreated(rec, map[string]bool{"created": true}))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestParseJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
	var dest struct {
		Name string `json:"name"`
	}
	require.NoError(t, ParseJSON(req, &dest))
	assert.Equal(t, "x", dest.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{broken`))
	assert.Error(t, ParseJSON(req, &dest))
}

func TestPathString(t *testing.T) {
	r := mux.NewRouter()
	var got string
	var gotErr error
	r.HandleFunc("/{category}", func(w http.ResponseWriter, req *http.Request) {
		got, gotErr = PathString(req, "category")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quotes", nil))
	require.NoError(t, gotErr)
	assert.Equal(t, "quotes", got)

	_, err := PathString(httptest.NewRequest(http.MethodGet, "/quotes", nil), "category")
	assert.Error(t, err)
}

func TestQueryHelpers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?q=wisdom&limit=5", nil)

	assert.Equal(t, "wisdom", QueryString(req, "q", ""))
	assert.Equal(t, "fallback", QueryString(req, "missing", "fallback"))

	limit, err := QueryInt(req, "limit", 10)
	require.NoError(t, err)
	assert.Equal(t, 5, limit)

	limit, err = QueryInt(req, "missing", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, limit)

	req = httptest.NewRequest(http.MethodGet, "/?limit=soon", nil)
	_, err = QueryInt(req, "limit", 10)
	assert.Error(t, err)
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Request-ID")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	// Caller-provided ids pass through untouched.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "upstream-id")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "upstream-id", rec.Header().Get("X-Request-ID"))
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, ErrorDependency, body.Error)
}

func TestLoggingMiddleware_PreservesStatus(t *testing.T) {
	h := LoggingMiddleware(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestMetricsMiddleware_RecordsRouteTemplate(t *testing.T) {
	metrics := observability.NewMetrics(nil)
	h := MetricsMiddleware(metrics, func(r *http.Request) string { return "/{category}" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		}),
	)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/quotes", nil))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestChain_OrderIsOutermostFirst(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}), mw("first"), mw("second"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"first", "second", "handler"}, order)
}
