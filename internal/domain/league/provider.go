package league

import "context"

// Provider describes the upstream standings source.
type Provider interface {
	FetchStandingsPage(ctx context.Context, leagueID int64, page int) (StandingsPage, error)
}
