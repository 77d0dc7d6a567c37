// SearchProxy implements the A3 search fallback: GET|POST /api/search proxies
// a query to a configured Tavily-shaped search API. Only the stdlib
// net/http client is used here since no pack repo carries a search-provider
// SDK; only tool names matter to the rest of the gateway (the sandboxed
// WebSearch tool calls this same endpoint shape), per spec.md's explicit
// "third-party search backends" Non-goal — this proxy exists only so the
// endpoint is present, not to integrate a specific vendor deeply.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// SearchProxy forwards search queries to an upstream search API.
type SearchProxy struct {
	APIKey      string
	UpstreamURL string
	HTTPClient  *http.Client
}

// NewSearchProxy returns a SearchProxy with a bounded-timeout HTTP client.
func NewSearchProxy(apiKey, upstreamURL string) *SearchProxy {
	return &SearchProxy{
		APIKey:      apiKey,
		UpstreamURL: upstreamURL,
		HTTPClient:  &http.Client{Timeout: 15 * time.Second},
	}
}

type searchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// ServeHTTP handles both GET (query param "q") and POST (JSON body) forms.
func (p *SearchProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if p.UpstreamURL == "" || p.APIKey == "" {
		http.Error(w, "search backend not configured", http.StatusServiceUnavailable)
		return
	}

	var query string
	maxResults := 5
	switch r.Method {
	case http.MethodGet:
		query = r.URL.Query().Get("q")
	case http.MethodPost:
		var body searchRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		query = body.Query
		if body.MaxResults > 0 {
			maxResults = body.MaxResults
		}
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if query == "" {
		http.Error(w, "q (or query) is required", http.StatusBadRequest)
		return
	}

	result, err := p.query(r.Context(), query, maxResults)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(result)
}

func (p *SearchProxy) query(ctx context.Context, query string, maxResults int) ([]byte, error) {
	payload, err := json.Marshal(map[string]any{
		"api_key":     p.APIKey,
		"query":       query,
		"max_results": maxResults,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.UpstreamURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

