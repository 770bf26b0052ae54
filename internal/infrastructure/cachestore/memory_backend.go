package cachestore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/cache"
)

type memoryEntry struct {
	key        cache.Key
	data       []byte
	modifiedAt time.Time
}

// MemoryBackend keeps entries in process memory. Used for tests and throwaway runs.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memoryEntry)}
}

func (b *MemoryBackend) Read(_ context.Context, key cache.Key) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	item, ok := b.entries[key.String()]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), item.data...), true, nil
}

func (b *MemoryBackend) Write(_ context.Context, key cache.Key, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[key.String()] = memoryEntry{
		key:        key,
		data:       append([]byte(nil), data...),
		modifiedAt: time.Now(),
	}
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, key cache.Key) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.entries, key.String())
	return nil
}

func (b *MemoryBackend) List(_ context.Context, filter cache.Filter) ([]Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Record, 0, len(b.entries))
	for _, item := range b.entries {
		if !filter.Matches(item.key) {
			continue
		}
		out = append(out, Record{Key: item.key, Size: int64(len(item.data)), ModifiedAt: item.modifiedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out, nil
}

func (b *MemoryBackend) Close() error {
	return nil
}
