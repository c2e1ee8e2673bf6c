// Package search delegates similarity queries to an external
// similarity-search service. The archive does not rank or embed anything
// itself; it forwards the query and returns the service's ranked content
// addresses untouched.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Match is one ranked result: a content address and its score.
type Match struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Searcher is the query contract consumed by the API layer.
type Searcher interface {
	Search(ctx context.Context, category, q string, limit int) ([]Match, error)
}

// Client talks to the similarity-search service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a search client. timeout bounds each query; zero
// defaults to 10 seconds.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Search returns ranked matches for q within a category. No matches is a
// successful empty slice, never an error.
func (c *Client) Search(ctx context.Context, category, q string, limit int) ([]Match, error) {
	endpoint := fmt.Sprintf("%s/search/%s?q=%s&limit=%s",
		c.baseURL,
		url.PathEscape(category),
		url.QueryEscape(q),
		strconv.Itoa(limit),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search service returned %d", resp.StatusCode)
	}

	var payload struct {
		Matches []Match `json:"matches"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	if payload.Matches == nil {
		payload.Matches = []Match{}
	}
	return payload.Matches, nil
}
