package picks

import "fmt"

// SquadSize is the number of slots in a gameweek squad, starters first.
const SquadSize = 15

// StartingSlots is the number of slots that score without a bench boost.
const StartingSlots = 11

type Pick struct {
	PlayerID      int64
	Slot          int
	Multiplier    int
	IsCaptain     bool
	IsViceCaptain bool
}

func (p Pick) IsStarter() bool {
	return p.Slot >= 1 && p.Slot <= StartingSlots
}

// ManagerPicks is the squad one manager selected for one gameweek.
type ManagerPicks struct {
	ManagerID     int64
	Gameweek      int
	Picks         []Pick
	CaptainID     int64
	ViceCaptainID int64
	ActiveChip    string
	Points        int
}

func (m ManagerPicks) Validate() error {
	if m.ManagerID <= 0 {
		return fmt.Errorf("manager id must be greater than zero")
	}
	if m.Gameweek <= 0 {
		return fmt.Errorf("gameweek must be greater than zero")
	}
	if len(m.Picks) == 0 || len(m.Picks) > SquadSize {
		return fmt.Errorf("squad must have between 1 and %d picks, got %d", SquadSize, len(m.Picks))
	}
	for _, item := range m.Picks {
		if item.PlayerID <= 0 {
			return fmt.Errorf("pick player id must be greater than zero")
		}
	}

	return nil
}

func (m ManagerPicks) PlayerIDs() []int64 {
	out := make([]int64, 0, len(m.Picks))
	for _, item := range m.Picks {
		out = append(out, item.PlayerID)
	}
	return out
}

// Has reports whether playerID occupies any of the squad slots.
func (m ManagerPicks) Has(playerID int64) bool {
	for _, item := range m.Picks {
		if item.PlayerID == playerID {
			return true
		}
	}
	return false
}
