package usecase

import (
	"errors"
	"time"

	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/cache"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/combination"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("resource not found")
	ErrRateLimited         = errors.New("upstream rate limited")
	ErrUpstream            = errors.New("upstream error")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	ErrInvalidQuery  = combination.ErrInvalidQuery
	ErrUnknownPlayer = combination.ErrUnknownPlayer
	ErrCacheCorrupt  = cache.ErrCorrupt
)

// RetryAfterError is implemented by rate-limit errors that carry an upstream wait hint.
type RetryAfterError interface {
	error
	RetryAfter() time.Duration
}

// retryAfter extracts the upstream wait hint from err, or zero.
func retryAfter(err error) time.Duration {
	var hinted RetryAfterError
	if errors.As(err, &hinted) {
		return hinted.RetryAfter()
	}
	return 0
}
