package resilience

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type CircuitState string

const (
	CircuitStateClosed   CircuitState = "closed"
	CircuitStateOpen     CircuitState = "open"
	CircuitStateHalfOpen CircuitState = "half_open"
)

// CircuitBreaker stops calls to a failing upstream for a cool-down window.
// Besides consecutive failures it can be tripped explicitly, which is how
// upstream throttling with a Retry-After hint pauses every caller at once.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	openTimeout      time.Duration
	halfOpenMaxReq   int
	maxCooldown      time.Duration

	state               CircuitState
	consecutiveFailures int
	openUntil           time.Time
	halfOpenInFlight    int
	halfOpenSuccesses   int
	now                 func() time.Time
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cfg = NormalizeCircuitBreakerConfig(cfg)
	return &CircuitBreaker{
		failureThreshold: cfg.FailureThreshold,
		openTimeout:      cfg.OpenTimeout,
		halfOpenMaxReq:   cfg.HalfOpenMaxReq,
		maxCooldown:      cfg.MaxCooldown,
		state:            CircuitStateClosed,
		now:              time.Now,
	}
}

func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitStateOpen {
		if b.now().Before(b.openUntil) {
			return ErrCircuitOpen
		}
		b.state = CircuitStateHalfOpen
		b.halfOpenInFlight = 0
		b.halfOpenSuccesses = 0
	}

	if b.state == CircuitStateHalfOpen {
		if b.halfOpenInFlight >= b.halfOpenMaxReq {
			return ErrCircuitOpen
		}
		b.halfOpenInFlight++
	}

	return nil
}

// RetryAfter is the remaining open window, or zero when calls are allowed.
func (b *CircuitBreaker) RetryAfter() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != CircuitStateOpen {
		return 0
	}
	if wait := b.openUntil.Sub(b.now()); wait > 0 {
		return wait
	}
	return 0
}

func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitStateClosed:
		b.consecutiveFailures = 0
	case CircuitStateHalfOpen:
		if b.halfOpenInFlight > 0 {
			b.halfOpenInFlight--
		}
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.halfOpenMaxReq && b.halfOpenInFlight == 0 {
			b.state = CircuitStateClosed
			b.consecutiveFailures = 0
			b.halfOpenSuccesses = 0
			b.openUntil = time.Time{}
		}
	}
}

func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitStateClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.failureThreshold {
			b.openFor(b.openTimeout)
		}
	case CircuitStateHalfOpen, CircuitStateOpen:
		b.openFor(b.openTimeout)
	}
}

// Trip opens the breaker for at least cooldown regardless of the failure count.
// The window is capped at the configured MaxCooldown.
func (b *CircuitBreaker) Trip(cooldown time.Duration) {
	if cooldown <= 0 {
		cooldown = b.openTimeout
	}
	cooldown = min(cooldown, b.maxCooldown)

	b.mu.Lock()
	defer b.mu.Unlock()

	until := b.now().Add(cooldown)
	if b.state == CircuitStateOpen && b.openUntil.After(until) {
		return
	}
	b.state = CircuitStateOpen
	b.openUntil = until
	b.halfOpenInFlight = 0
	b.halfOpenSuccesses = 0
}

func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitStateOpen && !b.now().Before(b.openUntil) {
		return CircuitStateHalfOpen
	}
	return b.state
}

func (b *CircuitBreaker) openFor(d time.Duration) {
	b.state = CircuitStateOpen
	b.openUntil = b.now().Add(d)
	b.halfOpenInFlight = 0
	b.halfOpenSuccesses = 0
}
