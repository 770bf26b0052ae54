package resilience

import "time"

// CircuitBreakerConfig tunes a CircuitBreaker. Zero values fall back to the
// defaults in NormalizeCircuitBreakerConfig.
type CircuitBreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	OpenTimeout      time.Duration
	HalfOpenMaxReq   int
	// MaxCooldown caps the window an explicit Trip may request.
	MaxCooldown time.Duration
}

const (
	defaultFailureThreshold = 5
	defaultOpenTimeout      = 30 * time.Second
	defaultHalfOpenMaxReq   = 1
	defaultMaxCooldown      = 5 * time.Minute
)

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: defaultFailureThreshold,
		OpenTimeout:      defaultOpenTimeout,
		HalfOpenMaxReq:   defaultHalfOpenMaxReq,
		MaxCooldown:      defaultMaxCooldown,
	}
}

func NormalizeCircuitBreakerConfig(cfg CircuitBreakerConfig) CircuitBreakerConfig {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaultOpenTimeout
	}
	if cfg.HalfOpenMaxReq < 1 {
		cfg.HalfOpenMaxReq = defaultHalfOpenMaxReq
	}
	if cfg.MaxCooldown <= 0 {
		cfg.MaxCooldown = defaultMaxCooldown
	}
	cfg.MaxCooldown = max(cfg.MaxCooldown, cfg.OpenTimeout)
	return cfg
}
