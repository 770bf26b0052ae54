package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/league"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/picks"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/player"
)

// ErrCorrupt marks an entry that cannot be decoded even after every upgrade step.
// Readers treat it as absent.
var ErrCorrupt = errors.New("cache entry corrupt")

// Kind identifies the payload family stored under a key.
type Kind string

const (
	KindLeague    Kind = "league"
	KindPicks     Kind = "picks"
	KindBootstrap Kind = "bootstrap"
)

var AllKinds = map[Kind]struct{}{
	KindLeague:    {},
	KindPicks:     {},
	KindBootstrap: {},
}

// Key addresses one cache entry. ManagerID is only set for picks.
type Key struct {
	Kind      Kind
	LeagueID  int64
	Gameweek  int
	ManagerID int64
}

func LeagueKey(leagueID int64, gameweek int) Key {
	return Key{Kind: KindLeague, LeagueID: leagueID, Gameweek: gameweek}
}

func PicksKey(leagueID int64, gameweek int, managerID int64) Key {
	return Key{Kind: KindPicks, LeagueID: leagueID, Gameweek: gameweek, ManagerID: managerID}
}

func BootstrapKey() Key {
	return Key{Kind: KindBootstrap}
}

func (k Key) Validate() error {
	if _, ok := AllKinds[k.Kind]; !ok {
		return fmt.Errorf("invalid cache kind: %q", k.Kind)
	}
	if k.Kind == KindBootstrap {
		return nil
	}
	if k.LeagueID <= 0 {
		return fmt.Errorf("cache key league id must be greater than zero")
	}
	if k.Gameweek <= 0 {
		return fmt.Errorf("cache key gameweek must be greater than zero")
	}
	if k.Kind == KindPicks && k.ManagerID <= 0 {
		return fmt.Errorf("cache key manager id must be greater than zero")
	}
	return nil
}

func (k Key) String() string {
	switch k.Kind {
	case KindBootstrap:
		return "bootstrap"
	case KindPicks:
		return fmt.Sprintf("league_%d/gw_%d/picks/%d", k.LeagueID, k.Gameweek, k.ManagerID)
	default:
		return fmt.Sprintf("league_%d/gw_%d/%s", k.LeagueID, k.Gameweek, k.Kind)
	}
}

// Meta describes how an entry was read.
type Meta struct {
	Key           Key
	SchemaVersion int
	// UpgradedFrom is the stored version before the read upgraded it, or 0.
	UpgradedFrom int
	FetchedAt    time.Time
	Stale        bool
	Size         int64
}

type LeagueEntry struct {
	League league.League
	Meta   Meta
}

// PicksEntry is either a squad or a marker that the manager did not play the gameweek.
type PicksEntry struct {
	Picks     picks.ManagerPicks
	NotPlayed bool
	Meta      Meta
}

type BootstrapEntry struct {
	Bootstrap player.Bootstrap
	Meta      Meta
}

// Filter selects entries for listing and deletion. Zero fields match anything.
type Filter struct {
	Kind     Kind
	LeagueID int64
	Gameweek int
}

func (f Filter) Matches(key Key) bool {
	if f.Kind != "" && f.Kind != key.Kind {
		return false
	}
	if f.LeagueID > 0 && f.LeagueID != key.LeagueID {
		return false
	}
	if f.Gameweek > 0 && f.Gameweek != key.Gameweek {
		return false
	}
	return true
}

// Summary aggregates the cached entries of one league and gameweek.
type Summary struct {
	LeagueID        int64
	Gameweek        int
	LeagueName      string
	HasStandings    bool
	Stale           bool
	ManagerCount    int
	PicksCached     int
	NotPlayed       int
	FetchedAt       time.Time
	Bytes           int64
	SchemaVersions  map[int]int
	CorruptEntries  int
	CoveragePercent float64
}

// UpgradeReport counts the outcome of a full cache upgrade pass.
type UpgradeReport struct {
	Scanned  int
	Upgraded int
	Corrupt  int
}
