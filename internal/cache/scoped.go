package cache

import "sync"

// Scoped ties entry lifetime to an enclosing request scope instead of an
// eviction policy. It stands in for a weak, identity-keyed association:
// the scope owns the entries and Close discards them all at once when
// the request that created the scope ends.
//
// Scoped deliberately exposes no length or iteration API. Callers that
// need either want Cache instead.
type Scoped[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]V
	closed  bool
}

// NewScoped creates an empty scope-tied cache.
func NewScoped[K comparable, V any]() *Scoped[K, V] {
	return &Scoped[K, V]{entries: make(map[K]V)}
}

// Set associates value with key. No-op after Close.
func (s *Scoped[K, V]) Set(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.entries[key] = value
}

// Get returns the value for key.
func (s *Scoped[K, V]) Get(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		var zero V
		return zero, false
	}
	v, ok := s.entries[key]
	return v, ok
}

// Has reports whether key is present.
func (s *Scoped[K, V]) Has(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	_, ok := s.entries[key]
	return ok
}

// Delete removes key if present.
func (s *Scoped[K, V]) Delete(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	delete(s.entries, key)
}

// Close discards every entry. The scope is unusable afterwards; Close is
// idempotent.
func (s *Scoped[K, V]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	s.closed = true
}
