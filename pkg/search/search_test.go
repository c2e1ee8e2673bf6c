package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_RankedMatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/quotes", r.URL.Path)
		assert.Equal(t, "wisdom", r.URL.Query().Get("q"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"matches":[{"id":"sha256:aaa","score":0.92},{"id":"sha256:bbb","score":0.71}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	matches, err := client.Search(context.Background(), "quotes", "wisdom", 5)
	require.NoError(t, err)

	require.Len(t, matches, 2)
	assert.Equal(t, "sha256:aaa", matches[0].ID)
	assert.Equal(t, 0.92, matches[0].Score)
}

func TestSearch_EmptyResultIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"matches":[]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	matches, err := client.Search(context.Background(), "quotes", "nothing like this", 10)
	require.NoError(t, err)
	assert.NotNil(t, matches)
	assert.Empty(t, matches)
}

func TestSearch_NullMatchesNormalizedToEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"matches":null}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	matches, err := client.Search(context.Background(), "films", "x", 10)
	require.NoError(t, err)
	assert.NotNil(t, matches)
	assert.Empty(t, matches)
}

func TestSearch_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	_, err := client.Search(context.Background(), "quotes", "x", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestSearch_Unreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := client.Search(context.Background(), "quotes", "x", 10)
	assert.Error(t, err)
}
