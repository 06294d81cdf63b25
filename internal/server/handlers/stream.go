package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/licitalens/licitalens/internal/correlation"
	"github.com/licitalens/licitalens/internal/core/relay"
	apperrors "github.com/licitalens/licitalens/internal/errors"
	"github.com/licitalens/licitalens/internal/metrics"
	"github.com/licitalens/licitalens/internal/observability"
)

// activeStreams counts concurrently open relay streams for the gauge.
var activeStreams int64

// StreamHandler serves the SSE relay endpoint.
type StreamHandler struct {
	Relay *relay.Relay
}

// NewStreamHandler creates a StreamHandler.
func NewStreamHandler(r *relay.Relay) *StreamHandler {
	return &StreamHandler{Relay: r}
}

// streamError is the wire shape for failures during the streaming phase.
type streamError struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	ErrorType string `json:"error_type"`
	SearchID  string `json:"search_id"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// sseSink defers the SSE headers and status line until the first upstream
// byte arrives. Pre-stream failures can then still answer with plain JSON
// and a real error status.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (s *sseSink) Write(p []byte) (int, error) {
	if !s.started {
		header := s.w.Header()
		header.Set("Content-Type", "text/event-stream")
		header.Set("Cache-Control", "no-cache")
		header.Set("Connection", "keep-alive")
		header.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	return s.w.Write(p)
}

func (s *sseSink) Flush() {
	if s.started {
		s.flusher.Flush()
	}
}

// ServeHTTP relays one search stream to the caller.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, r, apperrors.NewInternalError("streaming unsupported by connection"))
		return
	}

	req := relay.Request{
		SearchID:      strings.TrimSpace(r.URL.Query().Get("search_id")),
		Token:         bearerToken(r),
		CorrelationID: correlation.FromContext(r.Context()),
	}

	sink := &sseSink{w: w, flusher: flusher}

	atomic.AddInt64(&activeStreams, 1)
	metrics.SetActiveStreams(atomic.LoadInt64(&activeStreams))
	defer func() {
		atomic.AddInt64(&activeStreams, -1)
		metrics.SetActiveStreams(atomic.LoadInt64(&activeStreams))
	}()

	result, err := h.Relay.Run(r.Context(), sink, req)
	if err != nil {
		switch {
		case errors.Is(err, relay.ErrMissingSearchID):
			respondWithError(w, r, apperrors.NewInvalidInputError("search_id query parameter is required"))
		case errors.Is(err, relay.ErrNoTarget):
			respondWithError(w, r, apperrors.NewConfigInvalidError("streaming backend is not configured or invalid"))
		default:
			respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "stream setup failed"))
		}
		return
	}

	metrics.RecordStreamOutcome(string(result.Outcome), result.Elapsed)
	logStreamResult(result)

	if result.Outcome == relay.OutcomeCompleted {
		return
	}

	h.writeTermination(sink, result)
}

// writeTermination reports an abnormal end to the client. Before the first
// relayed byte the answer is a plain JSON error with a real status; after
// that the status line is gone and the best we can do is an SSE error event.
func (h *StreamHandler) writeTermination(sink *sseSink, result relay.Result) {
	body := streamError{
		Error:     errorMessageFor(result.Outcome),
		ErrorType: string(result.Outcome),
		SearchID:  result.SearchID,
		ElapsedMS: result.Elapsed.Milliseconds(),
	}
	if result.Err != nil {
		body.Detail = result.Err.Error()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return
	}

	if sink.started {
		if result.Outcome == relay.OutcomeClientDisconnected {
			// Nobody is listening; the classification lives on in logs and
			// metrics only.
			return
		}
		_, _ = sink.Write([]byte("event: error\ndata: "))
		_, _ = sink.Write(payload)
		_, _ = sink.Write([]byte("\n\n"))
		sink.Flush()
		return
	}

	sink.w.Header().Set("Content-Type", "application/json")
	sink.w.WriteHeader(statusFor(result))
	_, _ = sink.w.Write(payload)
}

func statusFor(result relay.Result) int {
	switch result.Outcome {
	case relay.OutcomeClientDisconnected:
		return apperrors.StatusClientClosedRequest
	case relay.OutcomeUpstreamTimeout:
		return http.StatusGatewayTimeout
	case relay.OutcomeUpstreamError:
		if result.UpstreamStatus >= 400 {
			return result.UpstreamStatus
		}
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}

func errorMessageFor(outcome relay.Outcome) string {
	switch outcome {
	case relay.OutcomeClientDisconnected:
		return "client closed the connection"
	case relay.OutcomeUpstreamTimeout:
		return "search stream timed out waiting for the backend"
	case relay.OutcomeUpstreamError:
		return "search backend failed while streaming"
	default:
		return "stream terminated"
	}
}

func logStreamResult(result relay.Result) {
	if observability.ServerLogger == nil {
		return
	}

	fields := []zap.Field{
		zap.String("search_id", result.SearchID),
		zap.String("outcome", string(result.Outcome)),
		zap.Duration("elapsed", result.Elapsed),
		zap.Int64("bytes_relayed", result.BytesRelayed),
	}
	if result.UpstreamStatus != 0 {
		fields = append(fields, zap.Int("upstream_status", result.UpstreamStatus))
	}
	if result.Err != nil {
		fields = append(fields, zap.Error(result.Err))
	}

	switch result.Outcome {
	case relay.OutcomeCompleted, relay.OutcomeClientDisconnected:
		observability.ServerLogger.Info("Stream ended", fields...)
	default:
		observability.ServerLogger.Warn("Stream ended", fields...)
	}
}

func bearerToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}
