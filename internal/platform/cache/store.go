package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/riskibarqy/fpl-combination-analysis/internal/platform/resilience"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
	storedAt  time.Time
}

// Store is a bounded in-memory TTL map with single-flight loading.
// When full, the entry stored longest ago is evicted.
type Store[V any] struct {
	mu         sync.RWMutex
	entries    map[string]entry[V]
	ttl        time.Duration
	maxEntries int
	flight     resilience.SingleFlight[V]
	now        func() time.Time
}

// NewStore creates a store. ttl <= 0 disables expiry and maxEntries <= 0 disables the bound.
func NewStore[V any](ttl time.Duration, maxEntries int) *Store[V] {
	return &Store[V]{
		entries:    make(map[string]entry[V]),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (s *Store[V]) Get(_ context.Context, key string) (V, bool) {
	var zero V
	if key == "" {
		return zero, false
	}

	now := s.now()
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if s.ttl > 0 && !e.expiresAt.After(now) {
		s.mu.Lock()
		if current, still := s.entries[key]; still && current.storedAt.Equal(e.storedAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return zero, false
	}

	return e.value, true
}

func (s *Store[V]) Set(_ context.Context, key string, value V) {
	if key == "" {
		return
	}

	now := s.now()
	expiresAt := time.Time{}
	if s.ttl > 0 {
		expiresAt = now.Add(s.ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && s.maxEntries > 0 {
		for len(s.entries) >= s.maxEntries {
			s.evictOldestLocked()
		}
	}
	s.entries[key] = entry[V]{value: value, expiresAt: expiresAt, storedAt: now}
}

func (s *Store[V]) Delete(_ context.Context, key string) {
	if key == "" {
		return
	}

	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

func (s *Store[V]) DeletePrefix(_ context.Context, prefix string) {
	s.mu.Lock()
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
		}
	}
	s.mu.Unlock()
}

func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Loader produces the value for a missing key. keep reports whether the
// value may be stored; a value that is not kept is still returned.
type Loader[V any] func(ctx context.Context) (value V, keep bool, err error)

// GetOrLoad returns the cached value or runs loader once for all concurrent
// callers of key. The loader runs under a context that ends only when every
// caller waiting on it has given up.
func (s *Store[V]) GetOrLoad(ctx context.Context, key string, loader Loader[V]) (V, error) {
	var zero V
	if loader == nil {
		return zero, fmt.Errorf("loader is required")
	}
	if key == "" {
		value, _, err := loader(ctx)
		return value, err
	}

	if value, ok := s.Get(ctx, key); ok {
		return value, nil
	}

	value, err, _ := s.flight.Do(ctx, key, func(loadCtx context.Context) (V, error) {
		if cached, ok := s.Get(loadCtx, key); ok {
			return cached, nil
		}

		loaded, keep, loadErr := loader(loadCtx)
		if loadErr != nil {
			return zero, loadErr
		}
		if keep {
			s.Set(loadCtx, key, loaded)
		}
		return loaded, nil
	})
	if err != nil {
		return zero, err
	}
	return value, nil
}

// Loading reports how many callers wait on the load in flight for key.
func (s *Store[V]) Loading(key string) int {
	return s.flight.Waiters(key)
}

func (s *Store[V]) evictOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	for key, e := range s.entries {
		if !found || e.storedAt.Before(oldestAt) {
			oldestKey, oldestAt, found = key, e.storedAt, true
		}
	}
	if found {
		delete(s.entries, oldestKey)
	}
}
