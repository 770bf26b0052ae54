package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/riskibarqy/fpl-combination-analysis/external/fpl"
	"github.com/riskibarqy/fpl-combination-analysis/internal/config"
	"github.com/riskibarqy/fpl-combination-analysis/internal/infrastructure/cachestore"
	idgen "github.com/riskibarqy/fpl-combination-analysis/internal/platform/id"
	"github.com/riskibarqy/fpl-combination-analysis/internal/platform/logging"
	"github.com/riskibarqy/fpl-combination-analysis/internal/platform/resilience"
	"github.com/riskibarqy/fpl-combination-analysis/internal/usecase"
)

// Engine is the wired analysis stack shared by the CLI commands.
type Engine struct {
	Analysis *usecase.AnalysisService
	Players  *usecase.PlayerIndexService
	store    *cachestore.Store
}

func NewEngine(ctx context.Context, cfg config.Config, logger *logging.Logger) (*Engine, error) {
	if logger == nil {
		logger = logging.Default()
	}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store := cachestore.NewStore(backend, cachestore.Options{
		LeagueTTL: cfg.CacheLeagueTTL,
		Logger:    logger,
	})

	client := fpl.NewClient(fpl.ClientConfig{
		BaseURL:    cfg.FPLBaseURL,
		UserAgent:  cfg.FPLUserAgent,
		Timeout:    cfg.FPLTimeout,
		MaxRetries: cfg.FPLMaxRetries,
		Logger:     logger,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.FPLCircuitEnabled,
			FailureThreshold: cfg.FPLCircuitFailureCount,
			OpenTimeout:      cfg.FPLCircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.FPLCircuitHalfOpenMaxReq,
		},
	})

	players := usecase.NewPlayerIndexService(client, store, logger)
	leagues := usecase.NewLeagueFetcher(client, usecase.LeagueFetcherConfig{
		PageDelay: cfg.StandingsPageDelay,
		MaxPages:  cfg.StandingsMaxPages,
	}, logger)
	picksFetcher := usecase.NewPicksFetcher(client, store, idgen.NewUUIDGenerator(), usecase.PicksFetcherConfig{
		Workers:        cfg.FetchWorkers,
		MaxAttempts:    cfg.FetchMaxAttempts,
		BackoffInitial: cfg.FetchBackoffInitial,
		BackoffMax:     cfg.FetchBackoffMax,
		AttemptTimeout: cfg.FetchManagerTimeout,
	}, logger)

	analysis := usecase.NewAnalysisService(players, leagues, picksFetcher, store, usecase.AnalysisConfig{
		MemoryTTL:          cfg.MemoryCacheTTL,
		MemoryMaxLeagues:   cfg.MemoryCacheMaxLeagues,
		SearchDefaultLimit: cfg.SearchDefaultLimit,
	}, logger)

	logger.Debug("engine ready",
		"cache_backend", cfg.CacheBackend,
		"fetch_mode", cfg.FetchMode,
		"workers", cfg.FetchWorkers,
	)

	return &Engine{Analysis: analysis, Players: players, store: store}, nil
}

func (e *Engine) Close() error {
	if e == nil || e.store == nil {
		return nil
	}
	return e.store.Close()
}

func openBackend(ctx context.Context, cfg config.Config) (cachestore.Backend, error) {
	switch cfg.CacheBackend {
	case config.CacheBackendMemory:
		return cachestore.NewMemoryBackend(), nil
	case config.CacheBackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.CacheSQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
		backend, err := cachestore.OpenSQLite(ctx, cfg.CacheSQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite cache: %w", err)
		}
		return backend, nil
	case config.CacheBackendFile, "":
		backend, err := cachestore.NewFileBackend(cachestore.FileBackendOptions{
			Root:     cfg.CacheDir,
			Compress: cfg.CacheCompress,
		})
		if err != nil {
			return nil, fmt.Errorf("open file cache: %w", err)
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", cfg.CacheBackend)
	}
}
