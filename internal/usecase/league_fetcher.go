package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/league"
	"github.com/riskibarqy/fpl-combination-analysis/internal/platform/logging"
	"go.opentelemetry.io/otel/attribute"
)

const defaultMaxStandingsPages = 2000

type LeagueFetcherConfig struct {
	// PageDelay is the pause between consecutive standings pages.
	PageDelay time.Duration
	// MaxPages bounds pagination; <= 0 uses the default.
	MaxPages int
}

// LeagueFetcher pages through classic league standings and assembles the full manager set.
type LeagueFetcher struct {
	provider  league.Provider
	pageDelay time.Duration
	maxPages  int
	logger    *logging.Logger
}

func NewLeagueFetcher(provider league.Provider, cfg LeagueFetcherConfig, logger *logging.Logger) *LeagueFetcher {
	if logger == nil {
		logger = logging.Default()
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxStandingsPages
	}
	return &LeagueFetcher{
		provider:  provider,
		pageDelay: max(cfg.PageDelay, 0),
		maxPages:  maxPages,
		logger:    logger.With("component", "league_fetcher"),
	}
}

// FetchLeague returns every manager of the league. A manager repeated across
// a page boundary is kept once, at its first position. Any page failure fails
// the whole fetch.
func (f *LeagueFetcher) FetchLeague(ctx context.Context, leagueID int64) (league.League, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.LeagueFetcher.FetchLeague", attribute.Int64("league_id", leagueID))
	defer span.End()

	if leagueID <= 0 {
		return league.League{}, fmt.Errorf("%w: league id must be greater than zero", ErrInvalidInput)
	}

	out := league.League{ID: leagueID, Managers: make([]league.ManagerEntry, 0, 64)}
	seen := make(map[int64]struct{}, 64)
	duplicates := 0

	page := 1
	for ; page <= f.maxPages; page++ {
		if page > 1 && f.pageDelay > 0 {
			if err := sleepContext(ctx, f.pageDelay); err != nil {
				return league.League{}, err
			}
		}

		standings, err := f.provider.FetchStandingsPage(ctx, leagueID, page)
		if err != nil {
			return league.League{}, fmt.Errorf("fetch league %d page %d: %w", leagueID, page, err)
		}
		if out.Name == "" {
			out.Name = standings.LeagueName
		}

		for _, entry := range standings.Entries {
			if _, ok := seen[entry.ManagerID]; ok {
				duplicates++
				continue
			}
			seen[entry.ManagerID] = struct{}{}
			out.Managers = append(out.Managers, entry)
		}

		if !standings.HasNext || len(standings.Entries) == 0 {
			break
		}
	}
	if page > f.maxPages {
		// A truncated league would make every combination count wrong.
		f.logger.WarnContext(ctx, "standings exceed page limit",
			"league_id", leagueID,
			"max_pages", f.maxPages,
			"managers_seen", len(out.Managers),
		)
		return league.League{}, fmt.Errorf("%w: league %d standings exceed %d pages", ErrUpstream, leagueID, f.maxPages)
	}

	if err := out.Validate(); err != nil {
		return league.League{}, fmt.Errorf("%w: league %d: %v", ErrUpstream, leagueID, err)
	}

	f.logger.InfoContext(ctx, "league standings fetched",
		"league_id", leagueID,
		"managers", len(out.Managers),
		"duplicates_dropped", duplicates,
	)
	return out, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
