package middleware

import (
	"net/http"

	"github.com/licitalens/licitalens/internal/correlation"
)

// Correlation propagates an inbound X-Correlation-ID through the request
// context and echoes it on the response. The gateway is a pass-through hop:
// when the client sent no id, none is invented here. Only the client-side
// generator creates correlation ids.
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(correlation.Header)
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set(correlation.Header, id)
		next.ServeHTTP(w, r.WithContext(correlation.WithID(r.Context(), id)))
	})
}
