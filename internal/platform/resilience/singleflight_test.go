package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitForWaiters[V any](t *testing.T, g *SingleFlight[V], key string, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if g.Waiters(key) == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected %d callers waiting on %q", want, key)
}

func TestSingleFlight_Do(t *testing.T) {
	t.Parallel()

	var g SingleFlight[string]
	var counter int32

	const workers = 20
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)

	for range workers {
		go func() {
			defer wg.Done()
			<-start
			value, err, _ := g.Do(context.Background(), "league:1:gw:7", func(context.Context) (string, error) {
				atomic.AddInt32(&counter, 1)
				time.Sleep(20 * time.Millisecond)
				return "ok", nil
			})
			if err != nil || value != "ok" {
				t.Errorf("singleflight call failed: value=%q err=%v", value, err)
			}
		}()
	}

	close(start)
	wg.Wait()

	if got := atomic.LoadInt32(&counter); got != 1 {
		t.Fatalf("expected function to run once, got %d", got)
	}
}

func TestSingleFlight_CancelledCallerDoesNotCancelOthers(t *testing.T) {
	t.Parallel()

	var g SingleFlight[string]
	release := make(chan struct{})
	var sawCancel atomic.Bool
	fn := func(ctx context.Context) (string, error) {
		<-release
		sawCancel.Store(ctx.Err() != nil)
		return "done", nil
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()

	errA := make(chan error, 1)
	go func() {
		_, err, _ := g.Do(ctxA, "k", fn)
		errA <- err
	}()
	waitForWaiters(t, &g, "k", 1)

	type outcome struct {
		value  string
		err    error
		shared bool
	}
	resultB := make(chan outcome, 1)
	go func() {
		value, err, shared := g.Do(context.Background(), "k", fn)
		resultB <- outcome{value: value, err: err, shared: shared}
	}()
	waitForWaiters(t, &g, "k", 2)

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled caller to get context.Canceled, got %v", err)
	}

	close(release)
	got := <-resultB
	if got.err != nil || got.value != "done" || !got.shared {
		t.Fatalf("unexpected result for live caller: %+v", got)
	}
	if sawCancel.Load() {
		t.Fatalf("shared call must not see the first caller's cancellation")
	}
}

func TestSingleFlight_LastCallerCancelsAndKeepsPartialResult(t *testing.T) {
	t.Parallel()

	var g SingleFlight[string]
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	var value string
	var err error
	go func() {
		defer close(done)
		value, err, _ = g.Do(ctx, "k", func(callCtx context.Context) (string, error) {
			<-callCtx.Done()
			return "partial", callCtx.Err()
		})
	}()
	waitForWaiters(t, &g, "k", 1)

	cancel()
	<-done
	if value != "partial" || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected partial result with cancellation, got value=%q err=%v", value, err)
	}

	// The cancelled call is gone; a new caller starts fresh.
	fresh, err, shared := g.Do(context.Background(), "k", func(context.Context) (string, error) {
		return "fresh", nil
	})
	if err != nil || fresh != "fresh" || shared {
		t.Fatalf("expected a new call, got value=%q err=%v shared=%v", fresh, err, shared)
	}
}

func TestSingleFlight_PanicBecomesError(t *testing.T) {
	t.Parallel()

	var g SingleFlight[int]
	_, err, _ := g.Do(context.Background(), "k", func(context.Context) (int, error) {
		panic("boom")
	})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected panic surfaced as error, got %v", err)
	}
}
