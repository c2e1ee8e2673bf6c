// Package middleware provides request authentication for the archive API.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/jmunro/archivist/pkg/httputil"
)

// BearerAuth guards routes with a single shared bearer token. The token is
// compared in constant time; a missing or mismatched token is rejected
// before any other processing happens.
type BearerAuth struct {
	token string
}

// NewBearerAuth creates the middleware around the configured secret.
func NewBearerAuth(token string) *BearerAuth {
	return &BearerAuth{token: token}
}

// Handler wraps next with the auth check.
func (a *BearerAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || scheme != "Bearer" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		if a.token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) != 1 {
			httputil.WriteUnauthorized(w, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}
