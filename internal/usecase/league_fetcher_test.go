package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/league"
	leaguemock "github.com/riskibarqy/fpl-combination-analysis/internal/mocks/domain/league"
	"github.com/riskibarqy/fpl-combination-analysis/internal/platform/logging"
	"github.com/stretchr/testify/mock"
)

func managerRow(id int64, rank int) league.ManagerEntry {
	return league.ManagerEntry{
		ManagerID:   id,
		TeamName:    fmt.Sprintf("Team %d", id),
		ManagerName: fmt.Sprintf("Manager %d", id),
		TotalPoints: 1000 - rank,
		Rank:        rank,
	}
}

func TestLeagueFetcher_DeduplicatesAcrossPages(t *testing.T) {
	t.Parallel()

	provider := leaguemock.NewProvider(t)
	provider.On("FetchStandingsPage", mock.Anything, int64(99), 1).
		Return(league.StandingsPage{LeagueID: 99, LeagueName: "Mates", Page: 1, HasNext: true, Entries: []league.ManagerEntry{managerRow(1, 1), managerRow(2, 2)}}, nil).
		Once()
	provider.On("FetchStandingsPage", mock.Anything, int64(99), 2).
		Return(league.StandingsPage{LeagueID: 99, Page: 2, HasNext: false, Entries: []league.ManagerEntry{managerRow(2, 3), managerRow(3, 4)}}, nil).
		Once()

	fetcher := NewLeagueFetcher(provider, LeagueFetcherConfig{}, logging.NewNop())
	got, err := fetcher.FetchLeague(context.Background(), 99)
	if err != nil {
		t.Fatalf("fetch league: %v", err)
	}
	if got.Name != "Mates" || len(got.Managers) != 3 {
		t.Fatalf("unexpected league: %+v", got)
	}
	if got.Managers[1].ManagerID != 2 || got.Managers[1].Rank != 2 {
		t.Fatalf("first-seen row must win, got %+v", got.Managers[1])
	}
}

func TestLeagueFetcher_StopsOnEmptyPage(t *testing.T) {
	t.Parallel()

	provider := leaguemock.NewProvider(t)
	provider.On("FetchStandingsPage", mock.Anything, int64(5), 1).
		Return(league.StandingsPage{LeagueName: "Tiny", HasNext: true, Entries: []league.ManagerEntry{managerRow(1, 1)}}, nil).
		Once()
	provider.On("FetchStandingsPage", mock.Anything, int64(5), 2).
		Return(league.StandingsPage{HasNext: true}, nil).
		Once()

	fetcher := NewLeagueFetcher(provider, LeagueFetcherConfig{}, logging.NewNop())
	got, err := fetcher.FetchLeague(context.Background(), 5)
	if err != nil {
		t.Fatalf("fetch league: %v", err)
	}
	if len(got.Managers) != 1 {
		t.Fatalf("unexpected managers: %+v", got.Managers)
	}
}

func TestLeagueFetcher_PageFailureFailsFetch(t *testing.T) {
	t.Parallel()

	provider := leaguemock.NewProvider(t)
	provider.On("FetchStandingsPage", mock.Anything, int64(7), 1).
		Return(league.StandingsPage{HasNext: true, Entries: []league.ManagerEntry{managerRow(1, 1)}}, nil).
		Once()
	provider.On("FetchStandingsPage", mock.Anything, int64(7), 2).
		Return(league.StandingsPage{}, fmt.Errorf("%w: status=503", ErrUpstream)).
		Once()

	fetcher := NewLeagueFetcher(provider, LeagueFetcherConfig{}, logging.NewNop())
	_, err := fetcher.FetchLeague(context.Background(), 7)
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestLeagueFetcher_NotFoundAndInvalidInput(t *testing.T) {
	t.Parallel()

	provider := leaguemock.NewProvider(t)
	provider.On("FetchStandingsPage", mock.Anything, int64(404), 1).
		Return(league.StandingsPage{}, fmt.Errorf("%w: league", ErrNotFound)).
		Once()

	fetcher := NewLeagueFetcher(provider, LeagueFetcherConfig{}, logging.NewNop())
	if _, err := fetcher.FetchLeague(context.Background(), 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := fetcher.FetchLeague(context.Background(), 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestLeagueFetcher_RespectsPageLimit(t *testing.T) {
	t.Parallel()

	provider := leaguemock.NewProvider(t)
	for page := 1; page <= 2; page++ {
		provider.On("FetchStandingsPage", mock.Anything, int64(8), page).
			Return(league.StandingsPage{HasNext: true, Entries: []league.ManagerEntry{managerRow(int64(page), page)}}, nil).
			Once()
	}

	fetcher := NewLeagueFetcher(provider, LeagueFetcherConfig{MaxPages: 2}, logging.NewNop())
	_, err := fetcher.FetchLeague(context.Background(), 8)
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected upstream error for truncated standings, got %v", err)
	}
	if !strings.Contains(err.Error(), "exceed 2 pages") {
		t.Fatalf("error should name the page limit: %v", err)
	}
}

func TestLeagueFetcher_LastPageAtLimitSucceeds(t *testing.T) {
	t.Parallel()

	provider := leaguemock.NewProvider(t)
	provider.On("FetchStandingsPage", mock.Anything, int64(8), 1).
		Return(league.StandingsPage{HasNext: true, Entries: []league.ManagerEntry{managerRow(1, 1)}}, nil).
		Once()
	provider.On("FetchStandingsPage", mock.Anything, int64(8), 2).
		Return(league.StandingsPage{Entries: []league.ManagerEntry{managerRow(2, 2)}}, nil).
		Once()

	fetcher := NewLeagueFetcher(provider, LeagueFetcherConfig{MaxPages: 2}, logging.NewNop())
	got, err := fetcher.FetchLeague(context.Background(), 8)
	if err != nil {
		t.Fatalf("fetch league: %v", err)
	}
	if len(got.Managers) != 2 {
		t.Fatalf("expected two managers, got %+v", got.Managers)
	}
}
