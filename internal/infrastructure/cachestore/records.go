package cachestore

import (
	crerr "github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/cache"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/league"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/picks"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/player"
)

// Records below are the current (v3) payload shapes.

type leagueRecord struct {
	ID       int64           `json:"id" validate:"gt=0"`
	Name     string          `json:"name"`
	Managers []managerRecord `json:"managers" validate:"dive"`
}

type managerRecord struct {
	ManagerID      int64  `json:"manager_id" validate:"gt=0"`
	TeamName       string `json:"team_name"`
	ManagerName    string `json:"manager_name"`
	TotalPoints    int    `json:"total_points"`
	Rank           int    `json:"rank" validate:"gte=0"`
	LastRank       int    `json:"last_rank" validate:"gte=0"`
	GameweekPoints int    `json:"gameweek_points"`
}

type picksRecord struct {
	ManagerID     int64        `json:"manager_id" validate:"gt=0"`
	Gameweek      int          `json:"gameweek" validate:"gt=0"`
	Picks         []pickRecord `json:"picks" validate:"max=15,dive"`
	CaptainID     int64        `json:"captain_id" validate:"gte=0"`
	ViceCaptainID int64        `json:"vice_captain_id" validate:"gte=0"`
	ActiveChip    string       `json:"active_chip"`
	Points        int          `json:"points"`
	NotPlayed     bool         `json:"not_played"`
}

type pickRecord struct {
	PlayerID      int64 `json:"player_id" validate:"gt=0"`
	Slot          int   `json:"slot" validate:"gte=1,lte=15"`
	Multiplier    int   `json:"multiplier" validate:"gte=0,lte=3"`
	IsCaptain     bool  `json:"is_captain"`
	IsViceCaptain bool  `json:"is_vice_captain"`
}

type bootstrapRecord struct {
	CurrentGameweek int            `json:"current_gameweek" validate:"gte=0"`
	Players         []playerRecord `json:"players" validate:"min=1,dive"`
}

type playerRecord struct {
	ID         int64  `json:"id" validate:"gt=0"`
	WebName    string `json:"web_name" validate:"required"`
	FirstName  string `json:"first_name"`
	SecondName string `json:"second_name"`
	FullName   string `json:"full_name"`
	TeamID     int64  `json:"team_id"`
	TeamName   string `json:"team_name"`
	TeamShort  string `json:"team_short"`
	Position   string `json:"position" validate:"omitempty,oneof=GK DEF MID FWD"`
}

var recordValidator = validator.New(validator.WithRequiredStructEnabled())

// record is a decoded payload that can verify it belongs to the key it was read from.
type record interface {
	check(key cache.Key) error
}

func newRecord(kind cache.Kind) record {
	switch kind {
	case cache.KindLeague:
		return &leagueRecord{}
	case cache.KindPicks:
		return &picksRecord{}
	default:
		return &bootstrapRecord{}
	}
}

func (r *leagueRecord) check(key cache.Key) error {
	if r.ID != key.LeagueID {
		return crerr.Newf("league payload id %d stored under %s", r.ID, key)
	}
	return nil
}

func (r *picksRecord) check(key cache.Key) error {
	if r.ManagerID != key.ManagerID || r.Gameweek != key.Gameweek {
		return crerr.Newf("picks payload for manager %d gw %d stored under %s", r.ManagerID, r.Gameweek, key)
	}
	if !r.NotPlayed && len(r.Picks) == 0 {
		return crerr.Newf("picks payload under %s has no picks", key)
	}
	return nil
}

func (r *bootstrapRecord) check(cache.Key) error {
	return nil
}

func leagueToRecord(value league.League) leagueRecord {
	out := leagueRecord{ID: value.ID, Name: value.Name, Managers: make([]managerRecord, 0, len(value.Managers))}
	for _, item := range value.Managers {
		out.Managers = append(out.Managers, managerRecord{
			ManagerID:      item.ManagerID,
			TeamName:       item.TeamName,
			ManagerName:    item.ManagerName,
			TotalPoints:    item.TotalPoints,
			Rank:           item.Rank,
			LastRank:       item.LastRank,
			GameweekPoints: item.GameweekPoints,
		})
	}
	return out
}

func (r leagueRecord) toDomain() league.League {
	out := league.League{ID: r.ID, Name: r.Name, Managers: make([]league.ManagerEntry, 0, len(r.Managers))}
	for _, item := range r.Managers {
		out.Managers = append(out.Managers, league.ManagerEntry{
			ManagerID:      item.ManagerID,
			TeamName:       item.TeamName,
			ManagerName:    item.ManagerName,
			TotalPoints:    item.TotalPoints,
			Rank:           item.Rank,
			LastRank:       item.LastRank,
			GameweekPoints: item.GameweekPoints,
		})
	}
	return out
}

func picksToRecord(value picks.ManagerPicks) picksRecord {
	out := picksRecord{
		ManagerID:     value.ManagerID,
		Gameweek:      value.Gameweek,
		Picks:         make([]pickRecord, 0, len(value.Picks)),
		CaptainID:     value.CaptainID,
		ViceCaptainID: value.ViceCaptainID,
		ActiveChip:    value.ActiveChip,
		Points:        value.Points,
	}
	for _, item := range value.Picks {
		out.Picks = append(out.Picks, pickRecord{
			PlayerID:      item.PlayerID,
			Slot:          item.Slot,
			Multiplier:    item.Multiplier,
			IsCaptain:     item.IsCaptain,
			IsViceCaptain: item.IsViceCaptain,
		})
	}
	return out
}

func (r picksRecord) toDomain() picks.ManagerPicks {
	out := picks.ManagerPicks{
		ManagerID:     r.ManagerID,
		Gameweek:      r.Gameweek,
		Picks:         make([]picks.Pick, 0, len(r.Picks)),
		CaptainID:     r.CaptainID,
		ViceCaptainID: r.ViceCaptainID,
		ActiveChip:    r.ActiveChip,
		Points:        r.Points,
	}
	for _, item := range r.Picks {
		out.Picks = append(out.Picks, picks.Pick{
			PlayerID:      item.PlayerID,
			Slot:          item.Slot,
			Multiplier:    item.Multiplier,
			IsCaptain:     item.IsCaptain,
			IsViceCaptain: item.IsViceCaptain,
		})
	}
	return out
}

func bootstrapToRecord(value player.Bootstrap) bootstrapRecord {
	out := bootstrapRecord{CurrentGameweek: value.CurrentGameweek, Players: make([]playerRecord, 0, len(value.Players))}
	for _, item := range value.Players {
		out.Players = append(out.Players, playerRecord{
			ID:         item.ID,
			WebName:    item.WebName,
			FirstName:  item.FirstName,
			SecondName: item.SecondName,
			FullName:   item.FullName,
			TeamID:     item.TeamID,
			TeamName:   item.TeamName,
			TeamShort:  item.TeamShort,
			Position:   string(item.Position),
		})
	}
	return out
}

func (r bootstrapRecord) toDomain() player.Bootstrap {
	out := player.Bootstrap{CurrentGameweek: r.CurrentGameweek, Players: make([]player.Player, 0, len(r.Players))}
	for _, item := range r.Players {
		out.Players = append(out.Players, player.Player{
			ID:         item.ID,
			WebName:    item.WebName,
			FirstName:  item.FirstName,
			SecondName: item.SecondName,
			FullName:   item.FullName,
			TeamID:     item.TeamID,
			TeamName:   item.TeamName,
			TeamShort:  item.TeamShort,
			Position:   player.Position(item.Position),
		})
	}
	return out
}
