// Package relay forwards a long-lived server-sent event stream from the
// backend compute engine to exactly one client connection.
//
// The relay is transparent: bytes pass through untouched, with no buffering
// beyond the chunk in flight. What it owns is the stream's lifecycle: the
// four distinct ways a stream can end and the guarantee that the upstream
// connection is released exactly once on every path.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Outcome classifies how a relayed stream terminated. Each outcome maps to a
// deliberately different wire response, so the distinction is an explicit
// enum rather than error values that could collapse into one generic path.
type Outcome string

const (
	OutcomeCompleted          Outcome = "completed"
	OutcomeClientDisconnected Outcome = "client_disconnected"
	OutcomeUpstreamTimeout    Outcome = "upstream_timeout"
	OutcomeUpstreamError      Outcome = "upstream_error"
)

// Pre-flight rejections, raised before any upstream connection is opened.
var (
	// ErrMissingSearchID is a client input error.
	ErrMissingSearchID = errors.New("relay: search_id is required")

	// ErrNoTarget means the backend stream target is not configured. This is
	// an operator problem, not something a retry will fix.
	ErrNoTarget = errors.New("relay: backend stream target not configured")
)

// Request identifies the stream a client is asking for.
type Request struct {
	SearchID      string
	Token         string
	CorrelationID string
}

// Result describes a terminated stream.
type Result struct {
	Outcome        Outcome
	SearchID       string
	Elapsed        time.Duration
	BytesRelayed   int64
	UpstreamStatus int // non-zero when the upstream answered before failing
	Err            error
}

// Sink receives relayed chunks. Flush must push the chunk to the client
// immediately; SSE is useless behind a buffer.
type Sink interface {
	io.Writer
	Flush()
}

// Relay proxies one backend SSE endpoint. The zero value is not usable;
// construct with New.
type Relay struct {
	target      string
	client      *http.Client
	idleTimeout time.Duration
	clock       func() time.Time
}

// Option configures a Relay.
type Option func(*Relay)

// WithClient overrides the HTTP client used for upstream connections.
func WithClient(client *http.Client) Option {
	return func(r *Relay) { r.client = client }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(r *Relay) { r.clock = clock }
}

// New creates a Relay for the given backend stream URL. idleTimeout bounds
// how long the upstream may stay silent before the stream is classified as
// timed out.
func New(target string, idleTimeout time.Duration, opts ...Option) *Relay {
	// No overall request timeout: the forwarding loop is intentionally
	// long-lived. The idle threshold bounds the header wait as well, so an
	// upstream that accepts the connection but never answers is cut off
	// instead of holding Run forever.
	transport := &http.Transport{}
	if idleTimeout > 0 {
		transport.ResponseHeaderTimeout = idleTimeout
	}

	r := &Relay{
		target:      target,
		idleTimeout: idleTimeout,
		client:      &http.Client{Transport: transport},
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// session is the transient state of one active relay. It exists only for the
// duration of one Run call.
type session struct {
	searchID  string
	started   time.Time
	body      io.ReadCloser
	closeOnce sync.Once
}

// release closes the upstream handle. Safe to call from racing exit paths;
// only the first call closes.
func (s *session) release() {
	s.closeOnce.Do(func() {
		if s.body != nil {
			_ = s.body.Close()
		}
	})
}

// Run opens the upstream stream and forwards it to sink until one side ends
// it. ctx is the client-side cancellation signal: when it fires, the upstream
// connection is canceled promptly and no further writes reach the sink.
//
// Pre-flight failures (missing search id, missing target) return a non-nil
// error and no Result. Every other termination is expressed as a Result.
func (r *Relay) Run(ctx context.Context, sink Sink, req Request) (Result, error) {
	if strings.TrimSpace(req.SearchID) == "" {
		return Result{}, ErrMissingSearchID
	}
	if strings.TrimSpace(r.target) == "" {
		return Result{}, ErrNoTarget
	}

	sess := &session{searchID: req.SearchID, started: r.clock()}

	upstreamURL, err := r.buildURL(req.SearchID)
	if err != nil {
		// A target that cannot be parsed is the same operator problem as a
		// missing one.
		return Result{}, fmt.Errorf("%w: %v", ErrNoTarget, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, upstreamURL, nil)
	if err != nil {
		return r.finish(sess, Result{Outcome: OutcomeUpstreamError, Err: err}), nil
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}
	if req.CorrelationID != "" {
		httpReq.Header.Set("X-Correlation-ID", req.CorrelationID)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return r.finish(sess, r.classifyDialError(ctx, err)), nil
	}
	sess.body = resp.Body

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		sess.release()
		return r.finish(sess, Result{
			Outcome:        OutcomeUpstreamError,
			UpstreamStatus: resp.StatusCode,
		}), nil
	}

	return r.finish(sess, r.forward(ctx, sess, sink, resp.StatusCode)), nil
}

func (r *Relay) buildURL(searchID string) (string, error) {
	parsed, err := url.Parse(r.target)
	if err != nil {
		return "", err
	}
	query := parsed.Query()
	query.Set("search_id", searchID)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// classifyDialError maps a failed upstream connection attempt. A canceled
// client context means the client left before the backend answered.
func (r *Relay) classifyDialError(ctx context.Context, err error) Result {
	if ctx.Err() != nil {
		return Result{Outcome: OutcomeClientDisconnected, Err: ctx.Err()}
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Result{Outcome: OutcomeUpstreamTimeout, Err: err}
	}
	return Result{Outcome: OutcomeUpstreamError, Err: err}
}

type chunk struct {
	data []byte
	err  error
}

// forward is the data loop: upstream bytes out to the sink as they arrive,
// idle timer armed between chunks, client cancellation observed throughout.
func (r *Relay) forward(ctx context.Context, sess *session, sink Sink, status int) Result {
	done := make(chan struct{})
	defer close(done)

	chunks := make(chan chunk)
	go func() {
		defer close(chunks)
		buf := make([]byte, 4096)
		for {
			n, err := sess.body.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				select {
				case chunks <- chunk{data: data}:
				case <-done:
					return
				}
			}
			if err != nil {
				select {
				case chunks <- chunk{err: err}:
				case <-done:
				}
				return
			}
		}
	}()

	var relayed int64
	idle := time.NewTimer(r.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			// Cancel the upstream immediately; a leaked backend stream
			// outlives its only consumer.
			sess.release()
			return Result{
				Outcome:        OutcomeClientDisconnected,
				BytesRelayed:   relayed,
				UpstreamStatus: status,
				Err:            ctx.Err(),
			}

		case <-idle.C:
			sess.release()
			return Result{
				Outcome:        OutcomeUpstreamTimeout,
				BytesRelayed:   relayed,
				UpstreamStatus: status,
			}

		case c := <-chunks:
			if c.err != nil {
				sess.release()
				if errors.Is(c.err, io.EOF) {
					if relayed == 0 {
						// A success status with no body at all is a backend
						// fault, not a completed stream.
						return Result{
							Outcome:        OutcomeUpstreamError,
							UpstreamStatus: status,
						}
					}
					return Result{
						Outcome:        OutcomeCompleted,
						BytesRelayed:   relayed,
						UpstreamStatus: status,
					}
				}
				// An abrupt transport-level break mid-stream reads the same
				// as a silent upstream to the client: timeout class.
				return Result{
					Outcome:        OutcomeUpstreamTimeout,
					BytesRelayed:   relayed,
					UpstreamStatus: status,
					Err:            c.err,
				}
			}

			if _, err := sink.Write(c.data); err != nil {
				sess.release()
				return Result{
					Outcome:        OutcomeClientDisconnected,
					BytesRelayed:   relayed,
					UpstreamStatus: status,
					Err:            err,
				}
			}
			sink.Flush()
			relayed += int64(len(c.data))

			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(r.idleTimeout)
		}
	}
}

// finish stamps the session's identity and elapsed time onto the result and
// guarantees the upstream handle is released on every exit path.
func (r *Relay) finish(sess *session, result Result) Result {
	sess.release()
	result.SearchID = sess.searchID
	result.Elapsed = r.clock().Sub(sess.started)
	return result
}
