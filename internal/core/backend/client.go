// Package backend is the gateway's client for the search/compute engine.
// The gateway proxies, it does not compute: request and response bodies are
// carried opaquely except for the small reliability metadata block the
// coordinator reads.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/licitalens/licitalens/internal/correlation"
)

// ErrNotConfigured means the backend base URL is absent from configuration.
var ErrNotConfigured = errors.New("backend: base URL not configured")

// StatusError reports a non-2xx backend answer. The status and body are
// preserved so the boundary can forward them.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend: unexpected status %d", e.StatusCode)
}

// SearchRequest is the outbound search payload. Filters are opaque.
type SearchRequest struct {
	Query      string         `json:"query"`
	Filters    map[string]any `json:"filters,omitempty"`
	MaxResults int            `json:"max_results,omitempty"`
}

// SearchResult is the backend answer. Items pass through untouched; the
// metadata fields feed the reliability scorer. MinutesSinceUpdate is a
// pointer because the backend may omit freshness entirely.
type SearchResult struct {
	Items              []json.RawMessage `json:"items"`
	Total              int               `json:"total"`
	Coverage           float64           `json:"coverage"`
	MinutesSinceUpdate *float64          `json:"minutes_since_update"`
	ResponseState      string            `json:"response_state"`
	CacheStatus        string            `json:"cache_status"`
}

// ProxyResponse carries a transparent pass-through answer.
type ProxyResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Client talks to the backend engine.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a backend client with the given base URL and request timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: timeout,
	}
}

// Search posts one search request. The bearer token is opaque and forwarded
// as-is; an empty token sends no Authorization header.
func (c *Client) Search(ctx context.Context, token string, req SearchRequest) (*SearchResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/v1/search", token, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp)
	}

	var result SearchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("backend: decoding search response: %w", err)
	}
	return &result, nil
}

// Proxy forwards an opaque request body to the given backend path and returns
// whatever comes back, status included. Used for the auth endpoints, where
// the gateway adds nothing but rate limiting.
func (c *Client) Proxy(ctx context.Context, path, contentType string, body io.Reader) (*ProxyResponse, error) {
	resp, err := c.do(ctx, http.MethodPost, path, "", contentType, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("backend: reading proxy response: %w", err)
	}

	return &ProxyResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        payload,
	}, nil
}

// Ping checks backend reachability for health reporting.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/health", "", "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, token, contentType string, body io.Reader) (*http.Response, error) {
	if c == nil || strings.TrimSpace(c.BaseURL) == "" {
		return nil, ErrNotConfigured
	}
	if ctx == nil {
		ctx = context.Background()
	}

	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("backend: invalid base URL: %w", err)
	}
	target := base.ResolveReference(&url.URL{Path: path}).String()

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	// Inbound correlation ids travel to the backend unchanged. Forward never
	// invents one.
	correlation.Forward(ctx, req)

	client := c.HTTPClient
	if client == nil {
		timeout := c.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return client.Do(req)
}

func statusError(resp *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	return &StatusError{StatusCode: resp.StatusCode, Body: payload}
}
