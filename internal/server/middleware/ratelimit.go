package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/licitalens/licitalens/internal/core/ratelimit"
	apperrors "github.com/licitalens/licitalens/internal/errors"
	"github.com/licitalens/licitalens/internal/metrics"
)

// RateLimit guards one operation with the given limiter. Every rejection
// carries a Retry-After header in whole seconds plus the same value in the
// JSON body, so both header-aware clients and body-parsing clients can wait
// the right amount of time.
func RateLimit(limiter *ratelimit.Limiter, operation string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			result := limiter.CheckAndConsume(ClientKey(r))
			if result.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			metrics.RecordRateLimited(operation)

			envelope := apperrors.NewRateLimitedError("too many requests, slow down")
			envelope, _ = envelope.WithContext(map[string]interface{}{
				"retry_after_seconds": result.RetryAfterSeconds,
				"operation":           operation,
			})

			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfterSeconds))
			apperrors.RespondWithEnvelope(w, r, envelope)
		})
	}
}

// ClientKey derives the rate-limit key for a request. Proxy headers win over
// the socket address so limits follow the real client through load balancers.
func ClientKey(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return first
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	if host = strings.TrimSpace(host); host != "" {
		return host
	}

	return "unknown"
}
