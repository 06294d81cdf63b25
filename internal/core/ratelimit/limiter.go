// Package ratelimit implements per-client sliding-window admission control.
//
// Each Limiter owns one policy (limit + window) and a map of per-key entries.
// State is process-local and advisory: two gateway instances do not
// coordinate, and everything is lost on restart. That is an accepted
// limitation: the limiter protects sensitive entry points from
// a single client hammering one process, nothing more.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// Result is the outcome of one admission check.
type Result struct {
	Allowed bool
	// RetryAfterSeconds is the whole-second wait the client should observe
	// before retrying. Only meaningful when Allowed is false; never below 1.
	RetryAfterSeconds int
}

type entry struct {
	count   int
	resetAt time.Time
}

// Limiter enforces a fixed limit of requests per key within a window. The
// window resets entirely once its end time passes; counts do not decay.
type Limiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	entries map[string]*entry

	// clock is injectable for tests; defaults to time.Now.
	clock func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(l *Limiter) { l.clock = clock }
}

// New creates a Limiter allowing limit requests per window per key.
func New(limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		limit:   limit,
		window:  window,
		entries: make(map[string]*entry),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limit returns the configured per-window request limit.
func (l *Limiter) Limit() int { return l.limit }

// Window returns the configured window duration.
func (l *Limiter) Window() time.Duration { return l.window }

// CheckAndConsume performs the read-check-increment for key as a single
// logical step. A fresh or expired entry is replaced with count=1; an entry
// under the limit is incremented in place; a full entry is rejected with the
// remaining wait rounded up to whole seconds.
func (l *Limiter) CheckAndConsume(key string) Result {
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	ent, ok := l.entries[key]
	if !ok || !now.Before(ent.resetAt) {
		l.entries[key] = &entry{count: 1, resetAt: now.Add(l.window)}
		return Result{Allowed: true}
	}

	if ent.count < l.limit {
		ent.count++
		return Result{Allowed: true}
	}

	retryAfter := int(math.Ceil(ent.resetAt.Sub(now).Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return Result{Allowed: false, RetryAfterSeconds: retryAfter}
}

// Sweep removes every entry whose window has already elapsed. It runs under
// the same coarse lock as admission; contention is expected to be low.
func (l *Limiter) Sweep() {
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, ent := range l.entries {
		if !now.Before(ent.resetAt) {
			delete(l.entries, key)
		}
	}
}

// Len reports the number of tracked keys. Intended for tests and metrics.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// StartSweeper launches a background goroutine that calls Sweep on a fixed
// interval until ctx is canceled, bounding memory growth under sustained
// traffic from many distinct keys.
func (l *Limiter) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Sweep()
			}
		}
	}()
}
