// Package engine coordinates one search request end to end: validate, call
// the backend, classify the answer. The coordinator never lets a backend
// fault escape as an unhandled error; callers always get a structured
// response, degraded when it must be.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/licitalens/licitalens/internal/core/backend"
	"github.com/licitalens/licitalens/internal/core/reliability"
	"github.com/licitalens/licitalens/internal/metrics"
)

// ErrMissingQuery is a client input error, raised before any backend contact.
var ErrMissingQuery = errors.New("engine: query is required")

// SearchClient is the slice of the backend client the coordinator needs.
type SearchClient interface {
	Search(ctx context.Context, token string, req backend.SearchRequest) (*backend.SearchResult, error)
}

// Request is one coordinated search.
type Request struct {
	Query      string
	Filters    map[string]any
	MaxResults int
	Token      string
}

// Reliability is the scoring block embedded in every response.
type Reliability struct {
	Score              float64  `json:"score"`
	Level              string   `json:"level"`
	Method             string   `json:"method"`
	MinutesSinceUpdate *float64 `json:"minutes_since_update,omitempty"`
}

// Response is the composite answer: backend items plus the gateway's
// reliability classification. Degraded responses carry empty items and a
// detail string instead of an error.
type Response struct {
	Items       []json.RawMessage `json:"items"`
	Total       int               `json:"total"`
	Degraded    bool              `json:"degraded"`
	Detail      string            `json:"detail,omitempty"`
	Reliability Reliability       `json:"reliability"`
}

// Coordinator orchestrates searches against the backend.
type Coordinator struct {
	Backend SearchClient
}

// New creates a Coordinator.
func New(client SearchClient) *Coordinator {
	return &Coordinator{Backend: client}
}

// Search runs one coordinated search. ErrMissingQuery is the only error this
// returns; every backend failure is absorbed into a degraded Response.
func (c *Coordinator) Search(ctx context.Context, req Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrMissingQuery
	}

	result, err := c.Backend.Search(ctx, req.Token, backend.SearchRequest{
		Query:      query,
		Filters:    req.Filters,
		MaxResults: req.MaxResults,
	})
	if err != nil {
		resp := degraded(detailForError(err))
		metrics.RecordSearch(resp.Reliability.Level, false)
		return resp, nil
	}

	resp := classify(result)
	metrics.RecordSearch(resp.Reliability.Level, !resp.Degraded)
	return resp, nil
}

// classify computes the reliability block from the backend's metadata.
// Missing freshness is not a fault: the result is still served, pinned to
// the lowest trust level.
func classify(result *backend.SearchResult) *Response {
	method := reliability.DeriveMethod(result.ResponseState, result.CacheStatus)

	items := result.Items
	if items == nil {
		items = []json.RawMessage{}
	}

	resp := &Response{
		Items: items,
		Total: result.Total,
	}

	if result.MinutesSinceUpdate == nil {
		score := reliability.Calculate(result.Coverage, stalenessFloor, method)
		resp.Reliability = Reliability{
			Score:  score.Score,
			Level:  string(reliability.LevelBaixa),
			Method: string(method),
		}
		return resp
	}

	score := reliability.Calculate(result.Coverage, *result.MinutesSinceUpdate, method)
	resp.Reliability = Reliability{
		Score:              score.Score,
		Level:              string(score.Level),
		Method:             string(method),
		MinutesSinceUpdate: result.MinutesSinceUpdate,
	}
	return resp
}

// stalenessFloor lands in the worst freshness bucket when the backend did
// not say how old its data is.
const stalenessFloor = 360

func degraded(detail string) *Response {
	return &Response{
		Items:    []json.RawMessage{},
		Degraded: true,
		Detail:   detail,
		Reliability: Reliability{
			Level:  string(reliability.LevelBaixa),
			Method: string(reliability.MethodCacheStale),
		},
	}
}

func detailForError(err error) string {
	var statusErr *backend.StatusError
	switch {
	case errors.Is(err, backend.ErrNotConfigured):
		return "search backend is not configured"
	case errors.As(err, &statusErr):
		return statusErr.Error()
	default:
		return "search backend unavailable"
	}
}
