package player

import (
	"fmt"
	"strings"
)

// Position represents the upstream element type of a player.
type Position string

const (
	PositionGoalkeeper Position = "GK"
	PositionDefender   Position = "DEF"
	PositionMidfielder Position = "MID"
	PositionForward    Position = "FWD"
)

var AllPositions = map[Position]struct{}{
	PositionGoalkeeper: {},
	PositionDefender:   {},
	PositionMidfielder: {},
	PositionForward:    {},
}

// PositionFromElementType maps the upstream element_type id to a Position.
func PositionFromElementType(elementType int) Position {
	switch elementType {
	case 1:
		return PositionGoalkeeper
	case 2:
		return PositionDefender
	case 3:
		return PositionMidfielder
	case 4:
		return PositionForward
	default:
		return ""
	}
}

// Player is an immutable entry of the static player list.
type Player struct {
	ID         int64
	WebName    string
	FirstName  string
	SecondName string
	FullName   string
	TeamID     int64
	TeamName   string
	TeamShort  string
	Position   Position
}

func (p Player) Validate() error {
	if p.ID <= 0 {
		return fmt.Errorf("player id must be greater than zero")
	}
	if strings.TrimSpace(p.WebName) == "" {
		return fmt.Errorf("player web name is required")
	}
	if p.Position != "" {
		if _, ok := AllPositions[p.Position]; !ok {
			return fmt.Errorf("invalid player position: %s", p.Position)
		}
	}

	return nil
}

// DisplayName returns the full name when known, otherwise the web name.
func (p Player) DisplayName() string {
	if name := strings.TrimSpace(p.FullName); name != "" {
		return name
	}
	return p.WebName
}

// Bootstrap is the static reference snapshot served by the upstream bootstrap endpoint.
type Bootstrap struct {
	Players         []Player
	CurrentGameweek int
}

func (b Bootstrap) Validate() error {
	if len(b.Players) == 0 {
		return fmt.Errorf("bootstrap has no players")
	}
	for _, item := range b.Players {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("player %d: %w", item.ID, err)
		}
	}
	return nil
}
