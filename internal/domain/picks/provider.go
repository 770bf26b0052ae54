package picks

import "context"

// Provider describes the upstream source of per-manager gameweek picks.
// A manager without a squad for the gameweek is reported as not found.
type Provider interface {
	FetchPicks(ctx context.Context, managerID int64, gameweek int) (ManagerPicks, error)
}
