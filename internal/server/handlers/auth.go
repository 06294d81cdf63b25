package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/licitalens/licitalens/internal/core/backend"
	apperrors "github.com/licitalens/licitalens/internal/errors"
)

// AuthHandler proxies authentication requests to the backend without
// interpreting them. Credentials and tokens are opaque here; the gateway
// contributes only rate limiting (applied as middleware) and correlation.
type AuthHandler struct {
	Backend *backend.Client
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(client *backend.Client) *AuthHandler {
	return &AuthHandler{Backend: client}
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.proxy(w, r, "/api/v1/auth/login")
}

// Register handles POST /api/v1/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	h.proxy(w, r, "/api/v1/auth/register")
}

func (h *AuthHandler) proxy(w http.ResponseWriter, r *http.Request, path string) {
	resp, err := h.Backend.Proxy(r.Context(), path, r.Header.Get("Content-Type"), r.Body)
	if err != nil {
		respondWithError(w, r, classifyProxyError(r.Context(), err))
		return
	}

	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

func classifyProxyError(ctx context.Context, err error) error {
	if errors.Is(err, backend.ErrNotConfigured) {
		return apperrors.NewConfigInvalidError("auth backend is not configured")
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.WrapUpstreamTimeout(ctx, err, "auth backend timed out")
	}

	return apperrors.WrapUpstream(ctx, err, "auth backend unavailable")
}
