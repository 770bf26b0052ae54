package cachestore

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/cache"
)

// Record describes one stored entry without reading it.
type Record struct {
	Key        cache.Key
	Size       int64
	ModifiedAt time.Time
}

// Backend persists encoded envelopes. Write must publish atomically: a
// concurrent Read sees either the previous bytes or the new bytes.
type Backend interface {
	Read(ctx context.Context, key cache.Key) ([]byte, bool, error)
	Write(ctx context.Context, key cache.Key, data []byte) error
	Delete(ctx context.Context, key cache.Key) error
	List(ctx context.Context, filter cache.Filter) ([]Record, error)
	Close() error
}

const lockStripes = 64

// keyedMutex serializes writers of the same key while distinct keys mostly proceed in parallel.
type keyedMutex struct {
	stripes [lockStripes]sync.Mutex
}

func (m *keyedMutex) lock(key cache.Key) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.String()))
	mu := &m.stripes[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}
