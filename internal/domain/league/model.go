package league

import "fmt"

// ManagerEntry is one row of a classic league standings table.
type ManagerEntry struct {
	ManagerID      int64
	TeamName       string
	ManagerName    string
	TotalPoints    int
	Rank           int
	LastRank       int
	GameweekPoints int
}

// League is a full standings snapshot. Refreshes replace it wholesale.
type League struct {
	ID       int64
	Name     string
	Managers []ManagerEntry
}

func (l League) Validate() error {
	if l.ID <= 0 {
		return fmt.Errorf("league id must be greater than zero")
	}
	seen := make(map[int64]struct{}, len(l.Managers))
	for _, item := range l.Managers {
		if item.ManagerID <= 0 {
			return fmt.Errorf("manager id must be greater than zero")
		}
		if _, ok := seen[item.ManagerID]; ok {
			return fmt.Errorf("duplicate manager id %d", item.ManagerID)
		}
		seen[item.ManagerID] = struct{}{}
	}

	return nil
}

func (l League) ManagerIDs() []int64 {
	out := make([]int64, 0, len(l.Managers))
	for _, item := range l.Managers {
		out = append(out, item.ManagerID)
	}
	return out
}

// StandingsPage is a single page of upstream standings.
type StandingsPage struct {
	LeagueID   int64
	LeagueName string
	Page       int
	HasNext    bool
	Entries    []ManagerEntry
}
