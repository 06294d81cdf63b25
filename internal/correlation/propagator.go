// Package correlation manages the per-session trace identifier that joins
// logs from the same user session across hops.
//
// The id is an opaque string carried in a single header. The gateway forwards
// an inbound id unchanged and never synthesizes one at the proxy boundary;
// generation happens only on the client side, where the Propagator keeps one
// id per session in an injected storage capability.
package correlation

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// Header is the request/response header carrying the correlation id.
const Header = "X-Correlation-ID"

// contextKey avoids collisions with other packages' context values.
type contextKey string

const idContextKey contextKey = "correlation_id"

// Store is a session-scoped string key/value capability. Implementations are
// expected to live for one client session (browser sessionStorage or an
// equivalent). A nil Store puts the Propagator in degraded mode.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Remove(key string)
}

// storageKey under which the id is kept in the session store.
const storageKey = "correlation_id"

// Propagator hands out the session's correlation id, creating it lazily on
// first use. Safe for concurrent use.
type Propagator struct {
	mu    sync.Mutex
	store Store
}

// NewPropagator creates a Propagator backed by the given session store. A nil
// store degrades to a freshly generated id per call; callers must tolerate
// the id changing between calls in that mode.
func NewPropagator(store Store) *Propagator {
	return &Propagator{store: store}
}

// GetOrCreate returns the session's correlation id, generating and persisting
// a canonical UUID on first use. Subsequent calls within the same session
// return the identical value.
func (p *Propagator) GetOrCreate() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.store == nil {
		return uuid.New().String()
	}

	if id, ok := p.store.Get(storageKey); ok && id != "" {
		return id
	}

	id := uuid.New().String()
	p.store.Set(storageKey, id)
	return id
}

// Apply sets the correlation header on an outbound request.
func (p *Propagator) Apply(req *http.Request) {
	req.Header.Set(Header, p.GetOrCreate())
}

// MemoryStore is an in-process Store for tests and non-browser clients.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[key]
	return value, ok
}

func (m *MemoryStore) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

func (m *MemoryStore) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
}

// FromContext returns the correlation id attached to ctx, or "".
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(idContextKey).(string); ok {
		return id
	}
	return ""
}

// WithID returns a context carrying the correlation id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, idContextKey, id)
}

// Forward copies the correlation id from ctx onto an outbound request,
// unchanged. It is a no-op when the context carries no id: the proxy boundary
// never invents one.
func Forward(ctx context.Context, req *http.Request) {
	if id := FromContext(ctx); id != "" {
		req.Header.Set(Header, id)
	}
}
