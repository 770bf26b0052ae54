package resilience

import (
	"context"
	"errors"
	"sync"

	"github.com/sourcegraph/conc/panics"
)

// SingleFlight deduplicates concurrent calls for the same key. The shared call
// runs under a context detached from every caller and is cancelled only once
// all of its callers have gone away.
type SingleFlight[V any] struct {
	mu    sync.Mutex
	calls map[string]*call[V]
}

type call[V any] struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
	done    chan struct{}
	val     V
	err     error
}

// Do runs fn once for all concurrent callers of key and reports whether the
// result was shared with a call already in flight.
//
// A caller whose ctx ends returns ctx.Err() at once while other callers still
// wait. The last caller to leave cancels the shared call and still receives
// what fn returns, so partial results survive a cancelled request.
func (g *SingleFlight[V]) Do(ctx context.Context, key string, fn func(context.Context) (V, error)) (V, error, bool) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[string]*call[V])
	}
	c, shared := g.calls[key]
	if !shared {
		callCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c = &call[V]{ctx: callCtx, cancel: cancel, done: make(chan struct{})}
		g.calls[key] = c
		go g.run(key, c, fn)
	}
	c.waiters++
	g.mu.Unlock()

	select {
	case <-c.done:
		return c.val, c.err, shared
	case <-ctx.Done():
	}

	g.mu.Lock()
	c.waiters--
	last := c.waiters == 0
	if last && g.calls[key] == c {
		// Later callers start over instead of joining a cancelled call.
		delete(g.calls, key)
	}
	g.mu.Unlock()

	if !last {
		var zero V
		return zero, ctx.Err(), shared
	}
	c.cancel()
	<-c.done
	if errors.Is(c.err, context.Canceled) {
		// Report why this caller stopped, e.g. its own deadline.
		return c.val, ctx.Err(), shared
	}
	return c.val, c.err, shared
}

// Waiters reports how many callers are waiting on the call in flight for key.
func (g *SingleFlight[V]) Waiters(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.calls[key]; ok {
		return c.waiters
	}
	return 0
}

func (g *SingleFlight[V]) run(key string, c *call[V], fn func(context.Context) (V, error)) {
	defer close(c.done)
	defer c.cancel()
	defer func() {
		g.mu.Lock()
		if g.calls[key] == c {
			delete(g.calls, key)
		}
		g.mu.Unlock()
	}()

	var catcher panics.Catcher
	catcher.Try(func() {
		c.val, c.err = fn(c.ctx)
	})
	if recovered := catcher.Recovered(); recovered != nil {
		var zero V
		c.val, c.err = zero, recovered.AsError()
	}
}
