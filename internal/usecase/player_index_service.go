package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/cache"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/player"
	"github.com/riskibarqy/fpl-combination-analysis/internal/platform/logging"
)

// PlayerIndexService owns the static player index. It is built once per
// process from the bootstrap endpoint, falling back to the cached bootstrap
// when the upstream cannot be reached.
type PlayerIndexService struct {
	provider player.Provider
	cache    cache.Repository
	logger   *logging.Logger

	mu              sync.Mutex
	index           *player.Index
	currentGameweek int
}

func NewPlayerIndexService(provider player.Provider, cacheRepo cache.Repository, logger *logging.Logger) *PlayerIndexService {
	if logger == nil {
		logger = logging.Default()
	}
	return &PlayerIndexService{
		provider: provider,
		cache:    cacheRepo,
		logger:   logger.With("component", "player_index"),
	}
}

// Index returns the process-wide index, loading it on first use.
func (s *PlayerIndexService) Index(ctx context.Context) (*player.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index != nil {
		return s.index, nil
	}
	if err := s.loadLocked(ctx); err != nil {
		return nil, err
	}
	return s.index, nil
}

// CurrentGameweek is the gameweek flagged current by the bootstrap snapshot the index was built from.
func (s *PlayerIndexService) CurrentGameweek(ctx context.Context) (int, error) {
	if _, err := s.Index(ctx); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentGameweek, nil
}

// Rebuild reloads the bootstrap snapshot and replaces the index.
func (s *PlayerIndexService) Rebuild(ctx context.Context) (*player.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(ctx); err != nil {
		return nil, err
	}
	return s.index, nil
}

func (s *PlayerIndexService) loadLocked(ctx context.Context) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.PlayerIndexService.load")
	defer span.End()

	bootstrap, fetchErr := s.provider.FetchBootstrap(ctx)
	if fetchErr == nil {
		if err := s.cache.PutBootstrap(ctx, bootstrap); err != nil {
			s.logger.WarnContext(ctx, "persist bootstrap failed", "error", err)
		}
		s.install(bootstrap)
		s.logger.InfoContext(ctx, "player index built from upstream",
			"players", len(bootstrap.Players),
			"current_gameweek", bootstrap.CurrentGameweek,
		)
		return nil
	}

	cached, ok, err := s.cache.GetBootstrap(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "read cached bootstrap failed", "error", err)
	}
	if !ok {
		return fmt.Errorf("%w: bootstrap unavailable and not cached: %v", ErrUpstreamUnavailable, fetchErr)
	}

	s.logger.WarnContext(ctx, "bootstrap fetch failed, using cached copy",
		"error", fetchErr,
		"cached_at", cached.Meta.FetchedAt,
	)
	s.install(cached.Bootstrap)
	return nil
}

func (s *PlayerIndexService) install(bootstrap player.Bootstrap) {
	s.index = player.NewIndex(bootstrap.Players)
	s.currentGameweek = bootstrap.CurrentGameweek
}
