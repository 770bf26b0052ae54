package combination

import (
	"fmt"
	"math"
	"sort"

	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/league"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/picks"
)

const entryURLFormat = "https://fantasy.premierleague.com/entry/%d/event/%d"

// PlayerLookup reports the first id that is not a known player.
type PlayerLookup interface {
	Contains(ids ...int64) (int64, bool)
}

// Row is one matching manager.
type Row struct {
	ManagerID      int64
	TeamName       string
	ManagerName    string
	Rank           int
	TotalPoints    int
	GameweekPoints int
	CaptainID      int64
	ActiveChip     string
	EntryURL       string
}

// Result is recomputed per query and never cached.
type Result struct {
	PlayerIDs        []int64
	Rows             []Row
	MatchCount       int
	TotalConsidered  int
	LeagueSize       int
	Excluded         int
	ExcludedByReason map[string]int
	MatchPercentage  float64
}

// ExclusionNote describes managers left out of the percentage, or "" when none were.
func (r Result) ExclusionNote() string {
	if r.Excluded == 0 {
		return ""
	}
	return fmt.Sprintf("%d of %d managers could not be loaded", r.Excluded, r.LeagueSize)
}

// Match returns the managers whose squad contains every player in query.
// Only managers with an entry in squads are considered.
func Match(managers []league.ManagerEntry, squads map[int64]picks.ManagerPicks, query Query, lookup PlayerLookup) (Result, error) {
	if query.IsZero() {
		return Result{}, fmt.Errorf("%w: at least one player id is required", ErrInvalidQuery)
	}
	if lookup != nil {
		if missing, ok := lookup.Contains(query.playerIDs...); !ok {
			return Result{}, fmt.Errorf("%w: player id %d", ErrUnknownPlayer, missing)
		}
	}

	result := Result{
		PlayerIDs:  query.PlayerIDs(),
		LeagueSize: len(managers),
		Rows:       make([]Row, 0),
	}
	for _, manager := range managers {
		squad, ok := squads[manager.ManagerID]
		if !ok {
			continue
		}
		result.TotalConsidered++
		if !containsAll(squad, query.playerIDs) {
			continue
		}

		result.Rows = append(result.Rows, Row{
			ManagerID:      manager.ManagerID,
			TeamName:       manager.TeamName,
			ManagerName:    manager.ManagerName,
			Rank:           manager.Rank,
			TotalPoints:    manager.TotalPoints,
			GameweekPoints: squad.Points,
			CaptainID:      squad.CaptainID,
			ActiveChip:     squad.ActiveChip,
			EntryURL:       fmt.Sprintf(entryURLFormat, manager.ManagerID, squad.Gameweek),
		})
	}

	sort.SliceStable(result.Rows, func(i, j int) bool {
		left, right := result.Rows[i], result.Rows[j]
		if left.Rank != right.Rank {
			// Unranked managers (rank 0) go last.
			if left.Rank == 0 || right.Rank == 0 {
				return right.Rank == 0
			}
			return left.Rank < right.Rank
		}
		return left.ManagerID < right.ManagerID
	})

	result.MatchCount = len(result.Rows)
	result.Excluded = result.LeagueSize - result.TotalConsidered
	result.MatchPercentage = Percentage(result.MatchCount, result.TotalConsidered)
	return result, nil
}

// Percentage returns part/total*100 rounded to one decimal place, or 0 when total is 0.
func Percentage(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10
}

func containsAll(squad picks.ManagerPicks, playerIDs []int64) bool {
	for _, id := range playerIDs {
		if !squad.Has(id) {
			return false
		}
	}
	return true
}
