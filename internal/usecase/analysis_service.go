package usecase

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/cache"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/combination"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/league"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/picks"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/player"
	memcache "github.com/riskibarqy/fpl-combination-analysis/internal/platform/cache"
	"github.com/riskibarqy/fpl-combination-analysis/internal/platform/logging"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultSearchLimit      = 10
	defaultMemoryTTL        = 24 * time.Hour
	defaultMemoryMaxLeagues = 5
	snapshotKeyPrefix       = "league:"
	forcedLoadSuffix        = ":force"
)

var inputValidator = validator.New(validator.WithRequiredStructEnabled())

type CacheStatus string

const (
	CacheStatusFresh   CacheStatus = "fresh"
	CacheStatusStale   CacheStatus = "stale"
	CacheStatusFetched CacheStatus = "fetched"
)

type AnalysisConfig struct {
	MemoryTTL          time.Duration
	MemoryMaxLeagues   int
	SearchDefaultLimit int
}

type LoadLeagueInput struct {
	LeagueID int64 `validate:"gt=0"`
	// Gameweek 0 means the current gameweek.
	Gameweek     int `validate:"gte=0"`
	ForceRefresh bool
}

type FetchSummary struct {
	Managers         int
	FromCache        int
	Fetched          int
	Failed           int
	Cancelled        int
	FailuresByReason map[FailureReason]int
}

type LoadLeagueResult struct {
	League          league.League
	Gameweek        int
	LeagueCache     CacheStatus
	LeagueFetchedAt time.Time
	FromMemory      bool
	BatchID         string
	Summary         FetchSummary
}

type FindCombinationInput struct {
	LeagueID  int64   `validate:"gt=0"`
	Gameweek  int     `validate:"gte=0"`
	PlayerIDs []int64 `validate:"required,min=1"`
}

// leagueSnapshot is a hydrated league plus squads, shared read-only between callers.
type leagueSnapshot struct {
	result   LoadLeagueResult
	squads   map[int64]picks.ManagerPicks
	failures map[int64]ManagerFailure
}

// AnalysisService is the engine facade: it loads leagues through the cache,
// answers combination queries and exposes cache maintenance.
type AnalysisService struct {
	players     *PlayerIndexService
	leagues     *LeagueFetcher
	picks       *PicksFetcher
	cache       cache.Repository
	snapshots   *memcache.Store[leagueSnapshot]
	searchLimit int
	logger      *logging.Logger
}

func NewAnalysisService(
	players *PlayerIndexService,
	leagues *LeagueFetcher,
	picksFetcher *PicksFetcher,
	cacheRepo cache.Repository,
	cfg AnalysisConfig,
	logger *logging.Logger,
) *AnalysisService {
	if logger == nil {
		logger = logging.Default()
	}
	ttl := cfg.MemoryTTL
	if ttl <= 0 {
		ttl = defaultMemoryTTL
	}
	maxLeagues := cfg.MemoryMaxLeagues
	if maxLeagues <= 0 {
		maxLeagues = defaultMemoryMaxLeagues
	}
	searchLimit := cfg.SearchDefaultLimit
	if searchLimit <= 0 {
		searchLimit = defaultSearchLimit
	}

	return &AnalysisService{
		players:     players,
		leagues:     leagues,
		picks:       picksFetcher,
		cache:       cacheRepo,
		snapshots:   memcache.NewStore[leagueSnapshot](ttl, maxLeagues),
		searchLimit: searchLimit,
		logger:      logger.With("component", "analysis_service"),
	}
}

// LoadLeague hydrates standings and every manager's squad for one gameweek.
// Cached data is reused unless ForceRefresh is set; only the missing squads hit the network.
func (s *AnalysisService) LoadLeague(ctx context.Context, input LoadLeagueInput) (LoadLeagueResult, error) {
	snapshot, err := s.loadSnapshot(ctx, input)
	if err != nil {
		return LoadLeagueResult{}, err
	}
	return snapshot.result, nil
}

// RefreshStandings refetches only the standings, e.g. after LoadLeague reported them stale.
func (s *AnalysisService) RefreshStandings(ctx context.Context, leagueID int64, gameweek int) (league.League, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.AnalysisService.RefreshStandings",
		attribute.Int64("league_id", leagueID),
	)
	defer span.End()

	if leagueID <= 0 {
		return league.League{}, fmt.Errorf("%w: league id must be greater than zero", ErrInvalidInput)
	}
	gw, err := s.resolveGameweek(ctx, gameweek)
	if err != nil {
		return league.League{}, err
	}

	fresh, err := s.leagues.FetchLeague(ctx, leagueID)
	if err != nil {
		return league.League{}, err
	}
	if err := s.cache.PutLeague(ctx, gw, fresh); err != nil {
		s.logger.WarnContext(ctx, "persist refreshed standings failed", "league_id", leagueID, "error", err)
	}
	s.snapshots.Delete(ctx, snapshotKey(leagueID, gw))
	return fresh, nil
}

func (s *AnalysisService) SearchPlayers(ctx context.Context, fragment string, limit int) ([]player.Player, error) {
	if strings.TrimSpace(fragment) == "" {
		return nil, fmt.Errorf("%w: search text is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = s.searchLimit
	}

	index, err := s.players.Index(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Collect(index.Search(fragment, limit)), nil
}

// ResolvePlayers maps each name to its best search hit.
func (s *AnalysisService) ResolvePlayers(ctx context.Context, names []string) ([]player.Player, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: at least one player name is required", ErrInvalidQuery)
	}
	index, err := s.players.Index(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]player.Player, 0, len(names))
	for _, name := range names {
		found, ok := index.Resolve(name)
		if !ok {
			return nil, fmt.Errorf("%w: no player matches %q", ErrUnknownPlayer, name)
		}
		out = append(out, found)
	}
	return out, nil
}

func (s *AnalysisService) FindCombination(ctx context.Context, input FindCombinationInput) (combination.Result, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.AnalysisService.FindCombination",
		attribute.Int64("league_id", input.LeagueID),
		attribute.Int64Slice("player_ids", input.PlayerIDs),
	)
	defer span.End()

	query, err := combination.NewQuery(input.PlayerIDs)
	if err != nil {
		return combination.Result{}, err
	}
	if err := inputValidator.Struct(input); err != nil {
		return combination.Result{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	index, err := s.players.Index(ctx)
	if err != nil {
		return combination.Result{}, err
	}
	// Reject unknown players before paying for a league load.
	if missing, ok := index.Contains(query.PlayerIDs()...); !ok {
		return combination.Result{}, fmt.Errorf("%w: player id %d", ErrUnknownPlayer, missing)
	}

	snapshot, err := s.loadSnapshot(ctx, LoadLeagueInput{LeagueID: input.LeagueID, Gameweek: input.Gameweek})
	if err != nil {
		return combination.Result{}, err
	}

	result, err := combination.Match(snapshot.result.League.Managers, snapshot.squads, query, index)
	if err != nil {
		return combination.Result{}, err
	}
	result.ExcludedByReason = excludedByReason(snapshot.result.League.Managers, snapshot.squads, snapshot.failures)
	return result, nil
}

func (s *AnalysisService) FindCombinationByNames(ctx context.Context, leagueID int64, gameweek int, names []string) (combination.Result, error) {
	resolved, err := s.ResolvePlayers(ctx, names)
	if err != nil {
		return combination.Result{}, err
	}

	ids := make([]int64, 0, len(resolved))
	for _, item := range resolved {
		ids = append(ids, item.ID)
	}
	return s.FindCombination(ctx, FindCombinationInput{LeagueID: leagueID, Gameweek: gameweek, PlayerIDs: ids})
}

// CacheInfo summarizes cached leagues without modifying the cache.
func (s *AnalysisService) CacheInfo(ctx context.Context, leagueID *int64) ([]cache.Summary, error) {
	filter := cache.Filter{}
	if leagueID != nil {
		if *leagueID <= 0 {
			return nil, fmt.Errorf("%w: league id must be greater than zero", ErrInvalidInput)
		}
		filter.LeagueID = *leagueID
	}

	summaries, err := s.cache.Summaries(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("summarize cache: %w", err)
	}
	return summaries, nil
}

// PurgeCache deletes cached entries of one league (optionally one gameweek), or everything when leagueID is 0.
func (s *AnalysisService) PurgeCache(ctx context.Context, leagueID int64, gameweek int) (int, error) {
	if leagueID < 0 || gameweek < 0 {
		return 0, fmt.Errorf("%w: league id and gameweek cannot be negative", ErrInvalidInput)
	}
	if leagueID == 0 && gameweek > 0 {
		return 0, fmt.Errorf("%w: gameweek purge requires a league id", ErrInvalidInput)
	}

	deleted, err := s.cache.Delete(ctx, cache.Filter{LeagueID: leagueID, Gameweek: gameweek})
	if err != nil {
		return deleted, fmt.Errorf("purge cache: %w", err)
	}

	switch {
	case leagueID == 0:
		s.snapshots.DeletePrefix(ctx, snapshotKeyPrefix)
	case gameweek == 0:
		s.snapshots.DeletePrefix(ctx, fmt.Sprintf("%s%d:", snapshotKeyPrefix, leagueID))
	default:
		s.snapshots.Delete(ctx, snapshotKey(leagueID, gameweek))
	}
	return deleted, nil
}

func (s *AnalysisService) UpgradeCache(ctx context.Context) (cache.UpgradeReport, error) {
	report, err := s.cache.UpgradeAll(ctx)
	if err != nil {
		return report, fmt.Errorf("upgrade cache: %w", err)
	}
	s.logger.InfoContext(ctx, "cache upgrade finished",
		"scanned", report.Scanned,
		"upgraded", report.Upgraded,
		"corrupt", report.Corrupt,
	)
	return report, nil
}

func (s *AnalysisService) loadSnapshot(ctx context.Context, input LoadLeagueInput) (leagueSnapshot, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.AnalysisService.LoadLeague",
		attribute.Int64("league_id", input.LeagueID),
		attribute.Bool("force_refresh", input.ForceRefresh),
	)
	defer span.End()

	if err := inputValidator.Struct(input); err != nil {
		return leagueSnapshot{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	gameweek, err := s.resolveGameweek(ctx, input.Gameweek)
	if err != nil {
		return leagueSnapshot{}, err
	}

	key := snapshotKey(input.LeagueID, gameweek)
	if !input.ForceRefresh {
		if cached, ok := s.snapshots.Get(ctx, key); ok {
			cached.result.FromMemory = true
			return cached, nil
		}
	}

	if !input.ForceRefresh {
		return s.snapshots.GetOrLoad(ctx, key, func(loadCtx context.Context) (leagueSnapshot, bool, error) {
			snapshot, err := s.hydrate(loadCtx, input.LeagueID, gameweek, false)
			if err != nil {
				return leagueSnapshot{}, false, err
			}
			return snapshot, snapshot.complete(), nil
		})
	}

	// Forced loads share a flight of their own and publish under the regular key.
	return s.snapshots.GetOrLoad(ctx, key+forcedLoadSuffix, func(loadCtx context.Context) (leagueSnapshot, bool, error) {
		snapshot, err := s.hydrate(loadCtx, input.LeagueID, gameweek, true)
		if err != nil {
			return leagueSnapshot{}, false, err
		}
		if snapshot.complete() {
			s.snapshots.Set(loadCtx, key, snapshot)
		}
		return snapshot, false, nil
	})
}

func (s *AnalysisService) hydrate(ctx context.Context, leagueID int64, gameweek int, force bool) (leagueSnapshot, error) {
	result := LoadLeagueResult{Gameweek: gameweek}

	cached, ok := cache.LeagueEntry{}, false
	if !force {
		var err error
		cached, ok, err = s.cache.GetLeague(ctx, leagueID, gameweek)
		if err != nil {
			s.logger.WarnContext(ctx, "read cached standings failed", "league_id", leagueID, "error", err)
		}
	}

	if ok {
		result.League = cached.League
		result.LeagueFetchedAt = cached.Meta.FetchedAt
		result.LeagueCache = CacheStatusFresh
		if cached.Meta.Stale {
			result.LeagueCache = CacheStatusStale
		}
	} else {
		fetched, err := s.leagues.FetchLeague(ctx, leagueID)
		if err != nil {
			return leagueSnapshot{}, err
		}
		if err := s.cache.PutLeague(ctx, gameweek, fetched); err != nil {
			s.logger.WarnContext(ctx, "persist standings failed", "league_id", leagueID, "error", err)
		}
		result.League = fetched
		result.LeagueFetchedAt = time.Now().UTC()
		result.LeagueCache = CacheStatusFetched
	}

	batch := s.picks.FetchBatch(ctx, BatchRequest{
		LeagueID:   leagueID,
		Gameweek:   gameweek,
		ManagerIDs: result.League.ManagerIDs(),
		Force:      force,
	})
	result.BatchID = batch.BatchID
	result.Summary = FetchSummary{
		Managers:         len(result.League.Managers),
		FromCache:        batch.FromCache,
		Fetched:          batch.Fetched,
		Failed:           len(batch.Failures),
		Cancelled:        batch.Cancelled(),
		FailuresByReason: batch.FailuresByReason(),
	}

	s.logger.InfoContext(ctx, "league loaded",
		"league_id", leagueID,
		"gameweek", gameweek,
		"standings", result.LeagueCache,
		"managers", result.Summary.Managers,
		"from_cache", result.Summary.FromCache,
		"fetched", result.Summary.Fetched,
		"failed", result.Summary.Failed,
	)

	return leagueSnapshot{result: result, squads: batch.Picks, failures: batch.Failures}, nil
}

// complete reports whether every manager either has a squad or is known not to have played.
func (s leagueSnapshot) complete() bool {
	for _, item := range s.failures {
		if item.Reason != FailureNotPlayed {
			return false
		}
	}
	return true
}

func (s *AnalysisService) resolveGameweek(ctx context.Context, gameweek int) (int, error) {
	if gameweek < 0 {
		return 0, fmt.Errorf("%w: gameweek cannot be negative", ErrInvalidInput)
	}
	if gameweek > 0 {
		return gameweek, nil
	}

	current, err := s.players.CurrentGameweek(ctx)
	if err != nil {
		return 0, fmt.Errorf("resolve current gameweek: %w", err)
	}
	if current <= 0 {
		return 0, fmt.Errorf("%w: no current gameweek", ErrUpstream)
	}
	return current, nil
}

func excludedByReason(managers []league.ManagerEntry, squads map[int64]picks.ManagerPicks, failures map[int64]ManagerFailure) map[string]int {
	out := make(map[string]int)
	for _, manager := range managers {
		if _, ok := squads[manager.ManagerID]; ok {
			continue
		}
		reason := FailureUpstreamError
		if failure, ok := failures[manager.ManagerID]; ok {
			reason = failure.Reason
		}
		out[string(reason)]++
	}
	return out
}

func snapshotKey(leagueID int64, gameweek int) string {
	return fmt.Sprintf("%s%d:gw:%d", snapshotKeyPrefix, leagueID, gameweek)
}
