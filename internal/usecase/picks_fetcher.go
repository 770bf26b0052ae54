package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/panjf2000/ants/v2"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/cache"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/picks"
	idgen "github.com/riskibarqy/fpl-combination-analysis/internal/platform/id"
	"github.com/riskibarqy/fpl-combination-analysis/internal/platform/logging"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/attribute"
)

type FailureReason string

const (
	FailureNotPlayed     FailureReason = "not_played"
	FailureRateLimited   FailureReason = "rate_limited"
	FailureUpstreamError FailureReason = "upstream_error"
	FailureTimeout       FailureReason = "timeout"
	FailureCancelled     FailureReason = "cancelled"
	FailurePanic         FailureReason = "panic"
	FailureInvalid       FailureReason = "invalid"
)

const (
	defaultFetchWorkers     = 8
	defaultFetchMaxAttempts = 3
	defaultBackoffInitial   = 500 * time.Millisecond
	defaultBackoffMax       = 10 * time.Second
	defaultAttemptTimeout   = 10 * time.Second
)

type PicksFetcherConfig struct {
	Workers        int
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	AttemptTimeout time.Duration
}

type BatchRequest struct {
	LeagueID   int64
	Gameweek   int
	ManagerIDs []int64
	// Force ignores cached picks and refetches every manager.
	Force bool
}

type ManagerFailure struct {
	ManagerID int64
	Reason    FailureReason
	Err       error
}

// BatchResult is keyed by manager id. Managers appear in exactly one of Picks or Failures.
type BatchResult struct {
	BatchID   string
	Picks     map[int64]picks.ManagerPicks
	Failures  map[int64]ManagerFailure
	FromCache int
	Fetched   int
}

func (r BatchResult) FailuresByReason() map[FailureReason]int {
	out := make(map[FailureReason]int, len(r.Failures))
	for _, item := range r.Failures {
		out[item.Reason]++
	}
	return out
}

func (r BatchResult) Cancelled() int {
	count := 0
	for _, item := range r.Failures {
		if item.Reason == FailureCancelled {
			count++
		}
	}
	return count
}

type picksOutcome struct {
	managerID int64
	picks     picks.ManagerPicks
	failure   *ManagerFailure
}

// PicksFetcher loads the squads of many managers through a fixed worker pool.
// Cached managers are served locally; only the gap goes to the network.
type PicksFetcher struct {
	provider picks.Provider
	cache    cache.Repository
	ids      idgen.Generator
	logger   *logging.Logger
	cfg      PicksFetcherConfig
}

func NewPicksFetcher(
	provider picks.Provider,
	cacheRepo cache.Repository,
	ids idgen.Generator,
	cfg PicksFetcherConfig,
	logger *logging.Logger,
) *PicksFetcher {
	if logger == nil {
		logger = logging.Default()
	}
	if ids == nil {
		ids = idgen.NewUUIDGenerator()
	}
	return &PicksFetcher{
		provider: provider,
		cache:    cacheRepo,
		ids:      ids,
		logger:   logger.With("component", "picks_fetcher"),
		cfg:      normalizePicksFetcherConfig(cfg),
	}
}

func normalizePicksFetcherConfig(cfg PicksFetcherConfig) PicksFetcherConfig {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultFetchWorkers
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultFetchMaxAttempts
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = defaultBackoffInitial
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		cfg.BackoffMax = max(defaultBackoffMax, cfg.BackoffInitial)
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaultAttemptTimeout
	}
	return cfg
}

// FetchBatch never fails as a whole: every manager ends in Picks or Failures.
// After ctx is done no new fetch starts and the managers not yet started are
// reported as cancelled.
func (f *PicksFetcher) FetchBatch(ctx context.Context, req BatchRequest) BatchResult {
	ctx, span := startUsecaseSpan(ctx, "usecase.PicksFetcher.FetchBatch",
		attribute.Int64("league_id", req.LeagueID),
		attribute.Int("gameweek", req.Gameweek),
		attribute.Int("managers", len(req.ManagerIDs)),
	)
	defer span.End()

	batchID, err := f.ids.NewID()
	if err != nil {
		batchID = fmt.Sprintf("league-%d-gw-%d", req.LeagueID, req.Gameweek)
	}
	logger := f.logger.With("batch_id", batchID, "league_id", req.LeagueID, "gameweek", req.Gameweek)

	result := BatchResult{
		BatchID:  batchID,
		Picks:    make(map[int64]picks.ManagerPicks, len(req.ManagerIDs)),
		Failures: make(map[int64]ManagerFailure),
	}

	gap := f.collectCached(ctx, req, &result, logger)
	if len(gap) == 0 {
		return result
	}

	workerCount := min(f.cfg.Workers, len(gap))
	pool, err := ants.NewPool(workerCount)
	if err != nil {
		logger.ErrorContext(ctx, "create picks worker pool failed", "error", err)
		for _, managerID := range gap {
			result.Failures[managerID] = ManagerFailure{ManagerID: managerID, Reason: FailureUpstreamError, Err: err}
		}
		return result
	}
	defer pool.Release()

	results := make(chan picksOutcome, len(gap))
	var workers sync.WaitGroup
	var fetchedCount atomic.Int32
	var failedCount atomic.Int32

	submitted := 0
	for _, managerID := range gap {
		if ctx.Err() != nil {
			break
		}
		managerID := managerID
		workers.Add(1)
		if err := pool.Submit(func() {
			defer workers.Done()
			outcome := f.runTask(ctx, req, managerID)
			if outcome.failure != nil {
				failedCount.Add(1)
			} else {
				fetchedCount.Add(1)
			}
			results <- outcome
		}); err != nil {
			workers.Done()
			logger.WarnContext(ctx, "submit picks task failed", "manager_id", managerID, "error", err)
			results <- picksOutcome{
				managerID: managerID,
				failure:   &ManagerFailure{ManagerID: managerID, Reason: FailureUpstreamError, Err: err},
			}
		}
		submitted++
	}

	workers.Wait()
	close(results)

	for outcome := range results {
		if outcome.failure != nil {
			result.Failures[outcome.managerID] = *outcome.failure
			continue
		}
		result.Picks[outcome.managerID] = outcome.picks
	}
	for _, managerID := range gap[submitted:] {
		result.Failures[managerID] = ManagerFailure{ManagerID: managerID, Reason: FailureCancelled, Err: ctx.Err()}
	}
	result.Fetched = int(fetchedCount.Load())

	logger.InfoContext(ctx, "picks batch finished",
		"managers", len(req.ManagerIDs),
		"from_cache", result.FromCache,
		"fetched", result.Fetched,
		"failed", int(failedCount.Load()),
		"not_started", len(gap)-submitted,
	)
	return result
}

// collectCached fills result from the cache and returns the managers still to fetch.
func (f *PicksFetcher) collectCached(ctx context.Context, req BatchRequest, result *BatchResult, logger *logging.Logger) []int64 {
	gap := make([]int64, 0, len(req.ManagerIDs))
	seen := make(map[int64]struct{}, len(req.ManagerIDs))
	for _, managerID := range req.ManagerIDs {
		if _, ok := seen[managerID]; ok {
			continue
		}
		seen[managerID] = struct{}{}

		if managerID <= 0 {
			result.Failures[managerID] = ManagerFailure{
				ManagerID: managerID,
				Reason:    FailureInvalid,
				Err:       fmt.Errorf("%w: manager id must be greater than zero", ErrInvalidInput),
			}
			continue
		}
		if req.Force {
			gap = append(gap, managerID)
			continue
		}

		entry, ok, err := f.cache.GetPicks(ctx, req.LeagueID, req.Gameweek, managerID)
		if err != nil {
			logger.WarnContext(ctx, "read cached picks failed", "manager_id", managerID, "error", err)
		}
		if !ok {
			gap = append(gap, managerID)
			continue
		}

		result.FromCache++
		if entry.NotPlayed {
			result.Failures[managerID] = ManagerFailure{
				ManagerID: managerID,
				Reason:    FailureNotPlayed,
				Err:       fmt.Errorf("%w: manager %d did not play gw %d", ErrNotFound, managerID, req.Gameweek),
			}
			continue
		}
		result.Picks[managerID] = entry.Picks
	}
	return gap
}

func (f *PicksFetcher) runTask(ctx context.Context, req BatchRequest, managerID int64) picksOutcome {
	if err := ctx.Err(); err != nil {
		return picksOutcome{managerID: managerID, failure: &ManagerFailure{ManagerID: managerID, Reason: FailureCancelled, Err: err}}
	}

	var (
		out    picks.ManagerPicks
		err    error
		caught panics.Catcher
	)
	caught.Try(func() {
		out, err = f.fetchWithRetry(ctx, managerID, req.Gameweek)
	})
	if recovered := caught.Recovered(); recovered != nil {
		f.logger.ErrorContext(ctx, "picks task panicked", "manager_id", managerID, "panic", recovered.Value)
		return picksOutcome{managerID: managerID, failure: &ManagerFailure{ManagerID: managerID, Reason: FailurePanic, Err: recovered.AsError()}}
	}

	// Cache writes must outlive a cancelled batch so finished work is kept.
	writeCtx := context.WithoutCancel(ctx)
	if err != nil {
		reason := classifyFetchError(ctx, err)
		if reason == FailureNotPlayed {
			if markErr := f.cache.MarkNotPlayed(writeCtx, req.LeagueID, req.Gameweek, managerID); markErr != nil {
				f.logger.WarnContext(ctx, "persist not-played marker failed", "manager_id", managerID, "error", markErr)
			}
		}
		return picksOutcome{managerID: managerID, failure: &ManagerFailure{ManagerID: managerID, Reason: reason, Err: err}}
	}

	if err := f.cache.PutPicks(writeCtx, req.LeagueID, out); err != nil {
		f.logger.WarnContext(ctx, "persist picks failed", "manager_id", managerID, "error", err)
	}
	return picksOutcome{managerID: managerID, picks: out}
}

func (f *PicksFetcher) fetchWithRetry(ctx context.Context, managerID int64, gameweek int) (picks.ManagerPicks, error) {
	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = f.cfg.BackoffInitial
	exponential.MaxInterval = f.cfg.BackoffMax
	policy := &hintedBackOff{base: exponential}

	operation := func() (picks.ManagerPicks, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, f.cfg.AttemptTimeout)
		defer cancel()

		out, err := f.provider.FetchPicks(attemptCtx, managerID, gameweek)
		if err == nil {
			if out.Gameweek != gameweek || out.ManagerID != managerID {
				return picks.ManagerPicks{}, backoff.Permanent(fmt.Errorf("%w: picks for manager %d gw %d returned for manager %d gw %d",
					ErrUpstream, out.ManagerID, out.Gameweek, managerID, gameweek))
			}
			return out, nil
		}

		switch {
		case ctx.Err() != nil:
			return picks.ManagerPicks{}, backoff.Permanent(err)
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidInput):
			return picks.ManagerPicks{}, backoff.Permanent(err)
		case errors.Is(err, ErrRateLimited), errors.Is(err, ErrUpstreamUnavailable):
			policy.hint(retryAfter(err))
		}
		return picks.ManagerPicks{}, err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(f.cfg.MaxAttempts)),
	)
}

func classifyFetchError(ctx context.Context, err error) FailureReason {
	switch {
	case errors.Is(err, ErrNotFound):
		return FailureNotPlayed
	case ctx.Err() != nil:
		return FailureCancelled
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrUpstreamUnavailable):
		return FailureRateLimited
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, ErrInvalidInput):
		return FailureInvalid
	default:
		return FailureUpstreamError
	}
}

// hintedBackOff waits at least as long as the last upstream Retry-After hint.
type hintedBackOff struct {
	base backoff.BackOff
	mu   sync.Mutex
	wait time.Duration
}

func (b *hintedBackOff) hint(wait time.Duration) {
	b.mu.Lock()
	b.wait = wait
	b.mu.Unlock()
}

func (b *hintedBackOff) NextBackOff() time.Duration {
	next := b.base.NextBackOff()
	if next == backoff.Stop {
		return next
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.wait > next {
		next = b.wait
	}
	b.wait = 0
	return next
}

func (b *hintedBackOff) Reset() {
	b.base.Reset()
	b.hint(0)
}
