package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/combination"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/league"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/picks"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/player"
	"github.com/riskibarqy/fpl-combination-analysis/internal/infrastructure/cachestore"
	leaguemock "github.com/riskibarqy/fpl-combination-analysis/internal/mocks/domain/league"
	picksmock "github.com/riskibarqy/fpl-combination-analysis/internal/mocks/domain/picks"
	playermock "github.com/riskibarqy/fpl-combination-analysis/internal/mocks/domain/player"
	"github.com/riskibarqy/fpl-combination-analysis/internal/platform/logging"
	"github.com/stretchr/testify/mock"
)

func testBootstrap() player.Bootstrap {
	return player.Bootstrap{
		CurrentGameweek: testGameweek,
		Players: []player.Player{
			{ID: 10, WebName: "Salah", FirstName: "Mohamed", SecondName: "Salah", Position: player.PositionMidfielder},
			{ID: 11, WebName: "Haaland", FirstName: "Erling", SecondName: "Haaland", Position: player.PositionForward},
			{ID: 12, WebName: "Saka", FirstName: "Bukayo", SecondName: "Saka", Position: player.PositionMidfielder},
			{ID: 13, WebName: "Palmer", FirstName: "Cole", SecondName: "Palmer", Position: player.PositionMidfielder},
		},
	}
}

func standingsOf(managers int) league.StandingsPage {
	page := league.StandingsPage{LeagueID: testLeague, LeagueName: "Office League", Page: 1}
	for id := 1; id <= managers; id++ {
		page.Entries = append(page.Entries, managerRow(int64(id), id))
	}
	return page
}

type engineDeps struct {
	store   *cachestore.Store
	players *PlayerIndexService
	leagues *leaguemock.Provider
	squads  *picksmock.Provider
}

func newPlayers(t *testing.T, store *cachestore.Store) *PlayerIndexService {
	t.Helper()

	provider := playermock.NewProvider(t)
	provider.On("FetchBootstrap", mock.Anything).Return(testBootstrap(), nil).Once()
	return NewPlayerIndexService(provider, store, logging.NewNop())
}

func newEngine(t *testing.T, deps engineDeps, cfg PicksFetcherConfig) *AnalysisService {
	t.Helper()

	logger := logging.NewNop()
	return NewAnalysisService(
		deps.players,
		NewLeagueFetcher(deps.leagues, LeagueFetcherConfig{}, logger),
		NewPicksFetcher(deps.squads, deps.store, fixedIDs{}, cfg, logger),
		deps.store,
		AnalysisConfig{},
		logger,
	)
}

func TestAnalysisService_LoadLeagueIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemoryCache()
	players := newPlayers(t, store)

	leagues := leaguemock.NewProvider(t)
	leagues.On("FetchStandingsPage", mock.Anything, testLeague, 1).Return(standingsOf(3), nil).Once()
	squads := picksmock.NewProvider(t)
	squads.On("FetchPicks", mock.Anything, mock.Anything, testGameweek).Return(squadFor(10, 11)).Times(3)

	svc := newEngine(t, engineDeps{store: store, players: players, leagues: leagues, squads: squads}, testFetcherConfig())
	first, err := svc.LoadLeague(ctx, LoadLeagueInput{LeagueID: testLeague})
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	if first.Gameweek != testGameweek || first.LeagueCache != CacheStatusFetched || first.Summary.Fetched != 3 {
		t.Fatalf("unexpected first load: %+v", first)
	}

	again, err := svc.LoadLeague(ctx, LoadLeagueInput{LeagueID: testLeague, Gameweek: testGameweek})
	if err != nil {
		t.Fatalf("repeat load: %v", err)
	}
	if !again.FromMemory {
		t.Fatalf("repeat load in the same process must come from memory")
	}

	// A fresh engine over the same cache must not touch the network.
	restarted := newEngine(t, engineDeps{
		store:   store,
		players: players,
		leagues: leaguemock.NewProvider(t),
		squads:  picksmock.NewProvider(t),
	}, testFetcherConfig())
	second, err := restarted.LoadLeague(ctx, LoadLeagueInput{LeagueID: testLeague})
	if err != nil {
		t.Fatalf("load from cache: %v", err)
	}
	if second.LeagueCache != CacheStatusFresh || second.Summary.FromCache != 3 || second.Summary.Fetched != 0 {
		t.Fatalf("expected cache-only load, got %+v", second)
	}
	if len(second.League.Managers) != 3 || second.League.Name != "Office League" {
		t.Fatalf("unexpected cached league: %+v", second.League)
	}
}

func TestAnalysisService_ForceRefreshRefetches(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemoryCache()
	leagues := leaguemock.NewProvider(t)
	leagues.On("FetchStandingsPage", mock.Anything, testLeague, 1).Return(standingsOf(2), nil).Times(2)
	squads := picksmock.NewProvider(t)
	squads.On("FetchPicks", mock.Anything, mock.Anything, testGameweek).Return(squadFor(10)).Times(4)

	svc := newEngine(t, engineDeps{store: store, players: newPlayers(t, store), leagues: leagues, squads: squads}, testFetcherConfig())
	if _, err := svc.LoadLeague(ctx, LoadLeagueInput{LeagueID: testLeague}); err != nil {
		t.Fatalf("load: %v", err)
	}
	forced, err := svc.LoadLeague(ctx, LoadLeagueInput{LeagueID: testLeague, ForceRefresh: true})
	if err != nil {
		t.Fatalf("forced load: %v", err)
	}
	if forced.FromMemory || forced.LeagueCache != CacheStatusFetched || forced.Summary.Fetched != 2 {
		t.Fatalf("forced load must refetch everything: %+v", forced)
	}
}

func TestAnalysisService_StaleStandingsAreReported(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := cachestore.NewStore(cachestore.NewMemoryBackend(), cachestore.Options{LeagueTTL: time.Nanosecond, Logger: logging.NewNop()})
	players := newPlayers(t, store)

	leagues := leaguemock.NewProvider(t)
	leagues.On("FetchStandingsPage", mock.Anything, testLeague, 1).Return(standingsOf(1), nil).Once()
	squads := picksmock.NewProvider(t)
	squads.On("FetchPicks", mock.Anything, int64(1), testGameweek).Return(squadFor(10)).Once()

	svc := newEngine(t, engineDeps{store: store, players: players, leagues: leagues, squads: squads}, testFetcherConfig())
	if _, err := svc.LoadLeague(ctx, LoadLeagueInput{LeagueID: testLeague}); err != nil {
		t.Fatalf("load: %v", err)
	}

	restarted := newEngine(t, engineDeps{store: store, players: players, leagues: leaguemock.NewProvider(t), squads: picksmock.NewProvider(t)}, testFetcherConfig())
	got, err := restarted.LoadLeague(ctx, LoadLeagueInput{LeagueID: testLeague})
	if err != nil {
		t.Fatalf("load from cache: %v", err)
	}
	if got.LeagueCache != CacheStatusStale {
		t.Fatalf("expected stale standings, got %s", got.LeagueCache)
	}
}

func TestAnalysisService_FindCombinationExcludesFailedManagers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemoryCache()
	leagues := leaguemock.NewProvider(t)
	leagues.On("FetchStandingsPage", mock.Anything, testLeague, 1).Return(standingsOf(12), nil).Once()

	squads := picksmock.NewProvider(t)
	for id := int64(1); id <= 8; id++ {
		squads.On("FetchPicks", mock.Anything, id, testGameweek).Return(squadFor(10, 11)).Once()
	}
	for _, id := range []int64{9, 10} {
		squads.On("FetchPicks", mock.Anything, id, testGameweek).Return(squadFor(10, 12)).Once()
	}
	for _, id := range []int64{11, 12} {
		squads.On("FetchPicks", mock.Anything, id, testGameweek).
			Return(picks.ManagerPicks{}, fmt.Errorf("%w: status=500", ErrUpstream)).
			Once()
	}

	cfg := testFetcherConfig()
	cfg.MaxAttempts = 1
	svc := newEngine(t, engineDeps{store: store, players: newPlayers(t, store), leagues: leagues, squads: squads}, cfg)

	got, err := svc.FindCombination(ctx, FindCombinationInput{LeagueID: testLeague, Gameweek: testGameweek, PlayerIDs: []int64{11, 10, 10}})
	if err != nil {
		t.Fatalf("find combination: %v", err)
	}
	if got.MatchCount != 8 || got.TotalConsidered != 10 || got.LeagueSize != 12 {
		t.Fatalf("unexpected counts: %+v", got)
	}
	if got.MatchPercentage != 80.0 {
		t.Fatalf("expected 80%%, got %v", got.MatchPercentage)
	}
	if got.Excluded != 2 || got.ExcludedByReason[string(FailureUpstreamError)] != 2 {
		t.Fatalf("unexpected exclusions: excluded=%d reasons=%v", got.Excluded, got.ExcludedByReason)
	}
	if got.ExclusionNote() != "2 of 12 managers could not be loaded" {
		t.Fatalf("unexpected note %q", got.ExclusionNote())
	}
	if got.Rows[0].ManagerID != 1 || got.Rows[7].ManagerID != 8 {
		t.Fatalf("rows must be ordered by rank: %+v", got.Rows)
	}
}

func TestAnalysisService_FindCombinationValidatesBeforeLoading(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemoryCache()
	svc := newEngine(t, engineDeps{
		store:   store,
		players: newPlayers(t, store),
		leagues: leaguemock.NewProvider(t),
		squads:  picksmock.NewProvider(t),
	}, testFetcherConfig())

	_, err := svc.FindCombination(ctx, FindCombinationInput{LeagueID: testLeague, PlayerIDs: []int64{10, 999}})
	if !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("expected unknown player, got %v", err)
	}

	_, err = svc.FindCombination(ctx, FindCombinationInput{LeagueID: testLeague})
	if !errors.Is(err, ErrInvalidQuery) || !errors.Is(err, combination.ErrInvalidQuery) {
		t.Fatalf("expected invalid query, got %v", err)
	}

	_, err = svc.FindCombination(ctx, FindCombinationInput{LeagueID: 0, PlayerIDs: []int64{10}})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestAnalysisService_FindCombinationByNames(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemoryCache()
	leagues := leaguemock.NewProvider(t)
	leagues.On("FetchStandingsPage", mock.Anything, testLeague, 1).Return(standingsOf(2), nil).Once()
	squads := picksmock.NewProvider(t)
	squads.On("FetchPicks", mock.Anything, int64(1), testGameweek).Return(squadFor(10, 11)).Once()
	squads.On("FetchPicks", mock.Anything, int64(2), testGameweek).Return(squadFor(13)).Once()

	svc := newEngine(t, engineDeps{store: store, players: newPlayers(t, store), leagues: leagues, squads: squads}, testFetcherConfig())
	got, err := svc.FindCombinationByNames(ctx, testLeague, 0, []string{"salah", "Haaland"})
	if err != nil {
		t.Fatalf("find by names: %v", err)
	}
	if got.MatchCount != 1 || got.Rows[0].ManagerID != 1 || got.MatchPercentage != 50.0 {
		t.Fatalf("unexpected result: %+v", got)
	}

	if _, err := svc.FindCombinationByNames(ctx, testLeague, 0, []string{"nobody"}); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("expected unknown player, got %v", err)
	}
}

func TestAnalysisService_SearchPlayers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemoryCache()
	svc := newEngine(t, engineDeps{
		store:   store,
		players: newPlayers(t, store),
		leagues: leaguemock.NewProvider(t),
		squads:  picksmock.NewProvider(t),
	}, testFetcherConfig())

	got, err := svc.SearchPlayers(ctx, "sa", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 || got[0].ID != 12 || got[1].ID != 10 {
		t.Fatalf("unexpected search order: %+v", got)
	}

	limited, err := svc.SearchPlayers(ctx, "sa", 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("expected one result, got %+v err=%v", limited, err)
	}

	if _, err := svc.SearchPlayers(ctx, "   ", 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestAnalysisService_CacheInfoAndPurge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemoryCache()
	leagues := leaguemock.NewProvider(t)
	leagues.On("FetchStandingsPage", mock.Anything, testLeague, 1).Return(standingsOf(3), nil).Times(2)
	squads := picksmock.NewProvider(t)
	squads.On("FetchPicks", mock.Anything, mock.Anything, testGameweek).Return(squadFor(10)).Times(6)

	svc := newEngine(t, engineDeps{store: store, players: newPlayers(t, store), leagues: leagues, squads: squads}, testFetcherConfig())
	if _, err := svc.LoadLeague(ctx, LoadLeagueInput{LeagueID: testLeague}); err != nil {
		t.Fatalf("load: %v", err)
	}

	leagueID := testLeague
	summaries, err := svc.CacheInfo(ctx, &leagueID)
	if err != nil {
		t.Fatalf("cache info: %v", err)
	}
	if len(summaries) != 1 || summaries[0].ManagerCount != 3 || summaries[0].PicksCached != 3 {
		t.Fatalf("unexpected summaries: %+v", summaries)
	}

	deleted, err := svc.PurgeCache(ctx, testLeague, 0)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deleted != 4 {
		t.Fatalf("expected 4 deleted entries, got %d", deleted)
	}

	reloaded, err := svc.LoadLeague(ctx, LoadLeagueInput{LeagueID: testLeague})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.FromMemory || reloaded.LeagueCache != CacheStatusFetched {
		t.Fatalf("purge must drop memory and disk copies: %+v", reloaded)
	}

	if _, err := svc.PurgeCache(ctx, 0, testGameweek); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestAnalysisService_CancelledCallerDoesNotCancelSharedLoad(t *testing.T) {
	t.Parallel()

	store := newMemoryCache()
	players := newPlayers(t, store)
	entered := make(chan struct{}, 1)
	release := make(chan struct{})

	leagues := leaguemock.NewProvider(t)
	leagues.On("FetchStandingsPage", mock.Anything, testLeague, 1).
		Run(func(mock.Arguments) {
			entered <- struct{}{}
			<-release
		}).
		Return(standingsOf(3), nil).
		Once()
	squads := picksmock.NewProvider(t)
	squads.On("FetchPicks", mock.Anything, mock.Anything, testGameweek).Return(squadFor(10, 11)).Times(3)

	svc := newEngine(t, engineDeps{store: store, players: players, leagues: leagues, squads: squads}, testFetcherConfig())
	// Resolve the gameweek up front so both callers share the same snapshot key.
	if _, err := svc.players.Index(context.Background()); err != nil {
		t.Fatalf("load players: %v", err)
	}
	key := snapshotKey(testLeague, testGameweek)

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	errA := make(chan error, 1)
	go func() {
		_, err := svc.LoadLeague(ctxA, LoadLeagueInput{LeagueID: testLeague})
		errA <- err
	}()
	<-entered

	type outcome struct {
		result LoadLeagueResult
		err    error
	}
	resultB := make(chan outcome, 1)
	go func() {
		result, err := svc.LoadLeague(context.Background(), LoadLeagueInput{LeagueID: testLeague})
		resultB <- outcome{result: result, err: err}
	}()
	waitForSnapshotLoaders(t, svc, key, 2)

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled caller to stop with context.Canceled, got %v", err)
	}
	close(release)

	got := <-resultB
	if got.err != nil {
		t.Fatalf("live caller: %v", got.err)
	}
	if got.result.Summary.Cancelled != 0 || got.result.Summary.Fetched != 3 || got.result.Summary.Failed != 0 {
		t.Fatalf("live caller must get the full league, got %+v", got.result.Summary)
	}
	if _, ok := svc.snapshots.Get(context.Background(), key); !ok {
		t.Fatalf("complete shared load must be kept in memory")
	}
}

func TestAnalysisService_RefreshStandingsKeepsPicks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemoryCache()
	renamed := standingsOf(3)
	renamed.LeagueName = "Office League 2"

	leagues := leaguemock.NewProvider(t)
	leagues.On("FetchStandingsPage", mock.Anything, testLeague, 1).Return(standingsOf(3), nil).Once()
	leagues.On("FetchStandingsPage", mock.Anything, testLeague, 1).Return(renamed, nil).Once()
	squads := picksmock.NewProvider(t)
	squads.On("FetchPicks", mock.Anything, mock.Anything, testGameweek).Return(squadFor(10)).Times(3)

	svc := newEngine(t, engineDeps{store: store, players: newPlayers(t, store), leagues: leagues, squads: squads}, testFetcherConfig())
	if _, err := svc.LoadLeague(ctx, LoadLeagueInput{LeagueID: testLeague}); err != nil {
		t.Fatalf("load: %v", err)
	}

	refreshed, err := svc.RefreshStandings(ctx, testLeague, 0)
	if err != nil {
		t.Fatalf("refresh standings: %v", err)
	}
	if refreshed.Name != "Office League 2" {
		t.Fatalf("unexpected refreshed league: %+v", refreshed)
	}

	reloaded, err := svc.LoadLeague(ctx, LoadLeagueInput{LeagueID: testLeague})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.FromMemory {
		t.Fatalf("refresh must evict the memory snapshot")
	}
	if reloaded.League.Name != "Office League 2" || reloaded.LeagueCache != CacheStatusFresh {
		t.Fatalf("expected refreshed standings from cache, got name=%q status=%s", reloaded.League.Name, reloaded.LeagueCache)
	}
	if reloaded.Summary.FromCache != 3 || reloaded.Summary.Fetched != 0 {
		t.Fatalf("refresh must leave cached picks untouched: %+v", reloaded.Summary)
	}

	if _, err := svc.RefreshStandings(ctx, 0, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func waitForSnapshotLoaders(t *testing.T, svc *AnalysisService, key string, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if svc.snapshots.Loading(key) == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected %d callers loading %q", want, key)
}
