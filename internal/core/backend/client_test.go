package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licitalens/licitalens/internal/correlation"
)

func TestSearch_DecodesReliabilityMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/search", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"items": [{"id": "lic-1"}],
			"total": 1,
			"coverage": 87.5,
			"minutes_since_update": 12,
			"response_state": "cached",
			"cache_status": "fresh"
		}`))
	}))
	defer server.Close()

	client := New(server.URL, 5*time.Second)
	result, err := client.Search(context.Background(), "tok-1", SearchRequest{Query: "merenda escolar"})
	require.NoError(t, err)

	assert.Len(t, result.Items, 1)
	assert.Equal(t, 87.5, result.Coverage)
	require.NotNil(t, result.MinutesSinceUpdate)
	assert.Equal(t, 12.0, *result.MinutesSinceUpdate)
	assert.Equal(t, "cached", result.ResponseState)
	assert.Equal(t, "fresh", result.CacheStatus)
}

func TestSearch_OmittedFreshnessStaysNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items": [], "total": 0, "coverage": 40}`))
	}))
	defer server.Close()

	client := New(server.URL, 5*time.Second)
	result, err := client.Search(context.Background(), "", SearchRequest{Query: "obras"})
	require.NoError(t, err)

	assert.Nil(t, result.MinutesSinceUpdate)
	assert.Empty(t, result.ResponseState)
}

func TestSearch_StatusErrorPreservesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error": "engine down"}`))
	}))
	defer server.Close()

	client := New(server.URL, 5*time.Second)
	_, err := client.Search(context.Background(), "", SearchRequest{Query: "obras"})

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Contains(t, string(statusErr.Body), "engine down")
}

func TestSearch_NotConfigured(t *testing.T) {
	client := New("", time.Second)

	_, err := client.Search(context.Background(), "", SearchRequest{Query: "obras"})

	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSearch_ForwardsCorrelationFromContext(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Correlation-ID")
		_, _ = w.Write([]byte(`{"items": []}`))
	}))
	defer server.Close()

	client := New(server.URL, 5*time.Second)
	ctx := correlation.WithID(context.Background(), "corr-77")

	_, err := client.Search(ctx, "", SearchRequest{Query: "obras"})
	require.NoError(t, err)

	assert.Equal(t, "corr-77", got)
}

func TestSearch_NoCorrelationNoHeader(t *testing.T) {
	var present bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present = r.Header["X-Correlation-Id"]
		_, _ = w.Write([]byte(`{"items": []}`))
	}))
	defer server.Close()

	client := New(server.URL, 5*time.Second)
	_, err := client.Search(context.Background(), "", SearchRequest{Query: "obras"})
	require.NoError(t, err)

	assert.False(t, present, "gateway never synthesizes a correlation header")
}

func TestProxy_PassesStatusAndBodyThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/auth/login", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		payload, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"email": "a@b.c", "password": "s"}`, string(payload))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": "invalid credentials"}`))
	}))
	defer server.Close()

	client := New(server.URL, 5*time.Second)
	resp, err := client.Proxy(context.Background(), "/api/v1/auth/login", "application/json",
		strings.NewReader(`{"email": "a@b.c", "password": "s"}`))
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "application/json", resp.ContentType)
	assert.Contains(t, string(resp.Body), "invalid credentials")
}

func TestPing(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	assert.NoError(t, New(healthy.URL, time.Second).Ping(context.Background()))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	err := New(down.URL, time.Second).Ping(context.Background())
	var statusErr *StatusError
	assert.True(t, errors.As(err, &statusErr))
}
