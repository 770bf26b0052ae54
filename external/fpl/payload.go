package fpl

import (
	"strings"

	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/league"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/picks"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/player"
)

type bootstrapResponse struct {
	Elements []elementItem `json:"elements"`
	Teams    []teamItem    `json:"teams"`
	Events   []eventItem   `json:"events"`
}

type elementItem struct {
	ID          int64  `json:"id"`
	WebName     string `json:"web_name"`
	FirstName   string `json:"first_name"`
	SecondName  string `json:"second_name"`
	Team        int64  `json:"team"`
	ElementType int    `json:"element_type"`
}

type teamItem struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
}

type eventItem struct {
	ID        int  `json:"id"`
	IsCurrent bool `json:"is_current"`
	Finished  bool `json:"finished"`
}

func (r bootstrapResponse) toDomain() player.Bootstrap {
	teams := make(map[int64]teamItem, len(r.Teams))
	for _, item := range r.Teams {
		teams[item.ID] = item
	}

	out := player.Bootstrap{
		Players:         make([]player.Player, 0, len(r.Elements)),
		CurrentGameweek: currentGameweek(r.Events),
	}
	for _, item := range r.Elements {
		if item.ID <= 0 {
			continue
		}
		first := strings.TrimSpace(item.FirstName)
		second := strings.TrimSpace(item.SecondName)
		team := teams[item.Team]
		out.Players = append(out.Players, player.Player{
			ID:         item.ID,
			WebName:    strings.TrimSpace(item.WebName),
			FirstName:  first,
			SecondName: second,
			FullName:   strings.TrimSpace(first + " " + second),
			TeamID:     item.Team,
			TeamName:   team.Name,
			TeamShort:  team.ShortName,
			Position:   player.PositionFromElementType(item.ElementType),
		})
	}
	return out
}

// currentGameweek prefers the event flagged current, then the latest finished one, then 1.
func currentGameweek(events []eventItem) int {
	latestFinished := 0
	for _, item := range events {
		if item.IsCurrent {
			return item.ID
		}
		if item.Finished && item.ID > latestFinished {
			latestFinished = item.ID
		}
	}
	if latestFinished > 0 {
		return latestFinished
	}
	return 1
}

type standingsResponse struct {
	League struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"league"`
	Standings struct {
		HasNext bool            `json:"has_next"`
		Page    int             `json:"page"`
		Results []standingsItem `json:"results"`
	} `json:"standings"`
}

type standingsItem struct {
	Entry      int64  `json:"entry"`
	EntryName  string `json:"entry_name"`
	PlayerName string `json:"player_name"`
	Total      int    `json:"total"`
	Rank       int    `json:"rank"`
	LastRank   int    `json:"last_rank"`
	EventTotal int    `json:"event_total"`
}

func (r standingsResponse) toDomain(leagueID int64, page int) league.StandingsPage {
	out := league.StandingsPage{
		LeagueID:   leagueID,
		LeagueName: strings.TrimSpace(r.League.Name),
		Page:       page,
		HasNext:    r.Standings.HasNext,
		Entries:    make([]league.ManagerEntry, 0, len(r.Standings.Results)),
	}
	for _, item := range r.Standings.Results {
		if item.Entry <= 0 {
			continue
		}
		out.Entries = append(out.Entries, league.ManagerEntry{
			ManagerID:      item.Entry,
			TeamName:       strings.TrimSpace(item.EntryName),
			ManagerName:    strings.TrimSpace(item.PlayerName),
			TotalPoints:    item.Total,
			Rank:           item.Rank,
			LastRank:       item.LastRank,
			GameweekPoints: item.EventTotal,
		})
	}
	return out
}

type picksResponse struct {
	ActiveChip   string `json:"active_chip"`
	EntryHistory struct {
		Event  int `json:"event"`
		Points int `json:"points"`
	} `json:"entry_history"`
	Picks []pickItem `json:"picks"`
}

type pickItem struct {
	Element       int64 `json:"element"`
	Position      int   `json:"position"`
	Multiplier    int   `json:"multiplier"`
	IsCaptain     bool  `json:"is_captain"`
	IsViceCaptain bool  `json:"is_vice_captain"`
}

func (r picksResponse) toDomain(managerID int64, gameweek int) picks.ManagerPicks {
	out := picks.ManagerPicks{
		ManagerID:  managerID,
		Gameweek:   gameweek,
		Picks:      make([]picks.Pick, 0, len(r.Picks)),
		ActiveChip: strings.TrimSpace(r.ActiveChip),
		Points:     r.EntryHistory.Points,
	}
	for i, item := range r.Picks {
		slot := item.Position
		if slot <= 0 {
			slot = i + 1
		}
		out.Picks = append(out.Picks, picks.Pick{
			PlayerID:      item.Element,
			Slot:          slot,
			Multiplier:    item.Multiplier,
			IsCaptain:     item.IsCaptain,
			IsViceCaptain: item.IsViceCaptain,
		})
		if item.IsCaptain {
			out.CaptainID = item.Element
		}
		if item.IsViceCaptain {
			out.ViceCaptainID = item.Element
		}
	}
	return out
}
