package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licitalens/licitalens/internal/core/backend"
)

type fakeBackend struct {
	result *backend.SearchResult
	err    error
	calls  int
	gotReq backend.SearchRequest
}

func (f *fakeBackend) Search(_ context.Context, _ string, req backend.SearchRequest) (*backend.SearchResult, error) {
	f.calls++
	f.gotReq = req
	return f.result, f.err
}

func minutes(v float64) *float64 { return &v }

func TestSearch_MissingQuery(t *testing.T) {
	fake := &fakeBackend{}
	c := New(fake)

	_, err := c.Search(context.Background(), Request{Query: "   "})

	assert.ErrorIs(t, err, ErrMissingQuery)
	assert.Zero(t, fake.calls, "no backend contact on invalid input")
}

func TestSearch_FreshLiveResult(t *testing.T) {
	fake := &fakeBackend{result: &backend.SearchResult{
		Items:              []json.RawMessage{json.RawMessage(`{"id":"lic-1"}`)},
		Total:              1,
		Coverage:           100,
		MinutesSinceUpdate: minutes(2),
		ResponseState:      "live",
	}}
	c := New(fake)

	resp, err := c.Search(context.Background(), Request{Query: "merenda escolar"})
	require.NoError(t, err)

	assert.False(t, resp.Degraded)
	assert.Len(t, resp.Items, 1)
	// coverage 1.0, freshness 1.0, method live 1.0
	assert.Equal(t, 1.0, resp.Reliability.Score)
	assert.Equal(t, "Alta", resp.Reliability.Level)
	assert.Equal(t, "live", resp.Reliability.Method)
	require.NotNil(t, resp.Reliability.MinutesSinceUpdate)
	assert.Equal(t, 2.0, *resp.Reliability.MinutesSinceUpdate)
}

func TestSearch_QueryTrimmedBeforeDispatch(t *testing.T) {
	fake := &fakeBackend{result: &backend.SearchResult{}}
	c := New(fake)

	_, err := c.Search(context.Background(), Request{Query: "  obras  "})
	require.NoError(t, err)

	assert.Equal(t, "obras", fake.gotReq.Query)
}

func TestSearch_StaleCachedResult(t *testing.T) {
	fake := &fakeBackend{result: &backend.SearchResult{
		Coverage:           50,
		MinutesSinceUpdate: minutes(120),
		ResponseState:      "cached",
		CacheStatus:        "stale",
	}}
	c := New(fake)

	resp, err := c.Search(context.Background(), Request{Query: "obras"})
	require.NoError(t, err)

	// 0.5*0.5 + 0.3*0.4 + 0.2*0.4 = 0.45
	assert.Equal(t, 0.45, resp.Reliability.Score)
	assert.Equal(t, "Baixa", resp.Reliability.Level)
	assert.Equal(t, "cache_stale", resp.Reliability.Method)
}

func TestSearch_MissingFreshnessIsBaixaNotRejection(t *testing.T) {
	fake := &fakeBackend{result: &backend.SearchResult{
		Items:         []json.RawMessage{json.RawMessage(`{"id":"lic-9"}`)},
		Total:         1,
		Coverage:      95,
		ResponseState: "live",
	}}
	c := New(fake)

	resp, err := c.Search(context.Background(), Request{Query: "obras"})
	require.NoError(t, err)

	assert.False(t, resp.Degraded, "result still served")
	assert.Len(t, resp.Items, 1)
	assert.Equal(t, "Baixa", resp.Reliability.Level)
	assert.Nil(t, resp.Reliability.MinutesSinceUpdate)
	assert.Greater(t, resp.Reliability.Score, 0.0)
}

func TestSearch_BackendFailureDegrades(t *testing.T) {
	fake := &fakeBackend{err: errors.New("dial tcp: connection refused")}
	c := New(fake)

	resp, err := c.Search(context.Background(), Request{Query: "obras"})
	require.NoError(t, err, "backend faults never propagate as errors")

	assert.True(t, resp.Degraded)
	assert.NotNil(t, resp.Items)
	assert.Empty(t, resp.Items)
	assert.Equal(t, "Baixa", resp.Reliability.Level)
	assert.Equal(t, "search backend unavailable", resp.Detail)
}

func TestSearch_BackendStatusErrorDetail(t *testing.T) {
	fake := &fakeBackend{err: &backend.StatusError{StatusCode: http.StatusBadGateway}}
	c := New(fake)

	resp, err := c.Search(context.Background(), Request{Query: "obras"})
	require.NoError(t, err)

	assert.True(t, resp.Degraded)
	assert.Contains(t, resp.Detail, "502")
}

func TestSearch_NotConfiguredDetail(t *testing.T) {
	fake := &fakeBackend{err: backend.ErrNotConfigured}
	c := New(fake)

	resp, err := c.Search(context.Background(), Request{Query: "obras"})
	require.NoError(t, err)

	assert.True(t, resp.Degraded)
	assert.Equal(t, "search backend is not configured", resp.Detail)
}

func TestSearch_NilItemsBecomeEmptySlice(t *testing.T) {
	fake := &fakeBackend{result: &backend.SearchResult{MinutesSinceUpdate: minutes(1)}}
	c := New(fake)

	resp, err := c.Search(context.Background(), Request{Query: "obras"})
	require.NoError(t, err)

	assert.NotNil(t, resp.Items)
	assert.Empty(t, resp.Items)
}
