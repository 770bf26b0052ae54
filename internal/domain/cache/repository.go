package cache

import (
	"context"

	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/league"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/picks"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/player"
)

// Repository describes the versioned local cache used by use cases.
// Reads return ok=false for absent or unreadable entries.
type Repository interface {
	GetLeague(ctx context.Context, leagueID int64, gameweek int) (LeagueEntry, bool, error)
	PutLeague(ctx context.Context, gameweek int, value league.League) error
	GetPicks(ctx context.Context, leagueID int64, gameweek int, managerID int64) (PicksEntry, bool, error)
	PutPicks(ctx context.Context, leagueID int64, value picks.ManagerPicks) error
	MarkNotPlayed(ctx context.Context, leagueID int64, gameweek int, managerID int64) error
	GetBootstrap(ctx context.Context) (BootstrapEntry, bool, error)
	PutBootstrap(ctx context.Context, value player.Bootstrap) error
	Summaries(ctx context.Context, filter Filter) ([]Summary, error)
	Delete(ctx context.Context, filter Filter) (int, error)
	UpgradeAll(ctx context.Context) (UpgradeReport, error)
}
