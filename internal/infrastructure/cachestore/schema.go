package cachestore

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/cache"
)

// CurrentSchemaVersion is the payload shape written by this build.
//
//	v1: upstream-shaped payloads (standings.results rows, raw picks with entry_history)
//	v2: normalized league managers, picks as an ordered player_ids list, not-played markers
//	v3: picks as slot records with multipliers, league rows with gameweek_points, bootstrap payloads
const CurrentSchemaVersion = 3

type upgradeStep func(key cache.Key, payload map[string]any) (map[string]any, error)

// upgradeSteps[v] maps a version v payload to version v+1.
var upgradeSteps = map[int]upgradeStep{
	1: upgradeV1ToV2,
	2: upgradeV2ToV3,
}

// upgradePayload applies every step from version to CurrentSchemaVersion in order.
func upgradePayload(key cache.Key, version int, raw json.RawMessage) (json.RawMessage, error) {
	if version == CurrentSchemaVersion {
		return raw, nil
	}
	if version < 1 || version > CurrentSchemaVersion {
		return nil, crerr.Mark(crerr.Newf("unsupported schema version %d", version), cache.ErrCorrupt)
	}

	var payload map[string]any
	if err := decodeJSON(raw, &payload); err != nil {
		return nil, crerr.Mark(crerr.Wrapf(err, "decode v%d payload", version), cache.ErrCorrupt)
	}

	for v := version; v < CurrentSchemaVersion; v++ {
		step, ok := upgradeSteps[v]
		if !ok {
			return nil, crerr.Mark(crerr.Newf("missing upgrade step from v%d", v), cache.ErrCorrupt)
		}
		next, err := step(key, payload)
		if err != nil {
			return nil, crerr.Mark(crerr.Wrapf(err, "upgrade %s v%d to v%d", key.Kind, v, v+1), cache.ErrCorrupt)
		}
		payload = next
	}

	out, err := encodeJSON(payload)
	if err != nil {
		return nil, crerr.Wrap(err, "encode upgraded payload")
	}
	return out, nil
}

func upgradeV1ToV2(key cache.Key, payload map[string]any) (map[string]any, error) {
	switch key.Kind {
	case cache.KindLeague:
		return leagueV1ToV2(key, payload)
	case cache.KindPicks:
		return picksV1ToV2(key, payload)
	default:
		return payload, nil
	}
}

func upgradeV2ToV3(key cache.Key, payload map[string]any) (map[string]any, error) {
	switch key.Kind {
	case cache.KindLeague:
		return leagueV2ToV3(payload)
	case cache.KindPicks:
		return picksV2ToV3(payload)
	default:
		return payload, nil
	}
}

func leagueV1ToV2(key cache.Key, payload map[string]any) (map[string]any, error) {
	info := asMap(payload["league"])
	leagueID := asInt64(info["id"])
	if leagueID <= 0 {
		leagueID = key.LeagueID
	}

	rows := asSlice(asMap(payload["standings"])["results"])
	if rows == nil {
		return nil, crerr.New("standings.results is missing")
	}

	managers := make([]any, 0, len(rows))
	for _, item := range rows {
		row := asMap(item)
		managerID := asInt64(row["entry"])
		if managerID <= 0 {
			return nil, crerr.Newf("standings row without entry id: %v", row)
		}
		managers = append(managers, map[string]any{
			"manager_id":   managerID,
			"team_name":    asString(row["entry_name"]),
			"manager_name": asString(row["player_name"]),
			"total_points": asInt64(row["total"]),
			"rank":         asInt64(row["rank"]),
			"last_rank":    asInt64(row["last_rank"]),
			"event_total":  asInt64(row["event_total"]),
		})
	}

	return map[string]any{
		"id":       leagueID,
		"name":     asString(info["name"]),
		"managers": managers,
	}, nil
}

func leagueV2ToV3(payload map[string]any) (map[string]any, error) {
	managers := asSlice(payload["managers"])
	if managers == nil {
		return nil, crerr.New("managers is missing")
	}

	out := make([]any, 0, len(managers))
	for _, item := range managers {
		row := asMap(item)
		if row == nil {
			return nil, crerr.Newf("manager row has type %T", item)
		}
		row["gameweek_points"] = asInt64(row["event_total"])
		delete(row, "event_total")
		if _, ok := row["last_rank"]; !ok {
			row["last_rank"] = int64(0)
		}
		out = append(out, row)
	}
	payload["managers"] = out
	return payload, nil
}

func picksV1ToV2(key cache.Key, payload map[string]any) (map[string]any, error) {
	rows := asSlice(payload["picks"])
	if len(rows) == 0 {
		return nil, crerr.New("picks is empty")
	}

	type slot struct {
		position int64
		playerID int64
	}
	slots := make([]slot, 0, len(rows))
	var captainID, viceCaptainID int64
	for _, item := range rows {
		row := asMap(item)
		playerID := asInt64(row["element"])
		if playerID <= 0 {
			return nil, crerr.Newf("pick without element id: %v", row)
		}
		slots = append(slots, slot{position: asInt64(row["position"]), playerID: playerID})
		if asBool(row["is_captain"]) {
			captainID = playerID
		}
		if asBool(row["is_vice_captain"]) {
			viceCaptainID = playerID
		}
	}
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].position < slots[j].position })

	playerIDs := make([]any, 0, len(slots))
	for _, item := range slots {
		playerIDs = append(playerIDs, item.playerID)
	}

	history := asMap(payload["entry_history"])
	gameweek := asInt64(history["event"])
	if gameweek <= 0 {
		gameweek = int64(key.Gameweek)
	}

	return map[string]any{
		"manager_id":      key.ManagerID,
		"gameweek":        gameweek,
		"player_ids":      playerIDs,
		"captain_id":      captainID,
		"vice_captain_id": viceCaptainID,
		"active_chip":     asString(payload["active_chip"]),
		"points":          asInt64(history["points"]),
		"not_played":      false,
	}, nil
}

func picksV2ToV3(payload map[string]any) (map[string]any, error) {
	notPlayed := asBool(payload["not_played"])
	playerIDs := asSlice(payload["player_ids"])
	if !notPlayed && len(playerIDs) == 0 {
		return nil, crerr.New("player_ids is empty")
	}

	captainID := asInt64(payload["captain_id"])
	viceCaptainID := asInt64(payload["vice_captain_id"])
	chip := asString(payload["active_chip"])

	slots := make([]any, 0, len(playerIDs))
	for i, item := range playerIDs {
		playerID := asInt64(item)
		slotNo := i + 1
		slots = append(slots, map[string]any{
			"player_id":       playerID,
			"slot":            slotNo,
			"multiplier":      deriveMultiplier(slotNo, playerID == captainID, chip),
			"is_captain":      playerID == captainID,
			"is_vice_captain": playerID == viceCaptainID,
		})
	}

	return map[string]any{
		"manager_id":      asInt64(payload["manager_id"]),
		"gameweek":        asInt64(payload["gameweek"]),
		"picks":           slots,
		"captain_id":      captainID,
		"vice_captain_id": viceCaptainID,
		"active_chip":     chip,
		"points":          asInt64(payload["points"]),
		"not_played":      notPlayed,
	}, nil
}

// deriveMultiplier rebuilds the scoring multiplier v2 entries did not keep.
func deriveMultiplier(slot int, isCaptain bool, chip string) int {
	switch {
	case isCaptain && chip == "3xc":
		return 3
	case isCaptain:
		return 2
	case slot <= 11:
		return 1
	case chip == "bboost":
		return 1
	default:
		return 0
	}
}

func asMap(v any) map[string]any {
	out, _ := v.(map[string]any)
	return out
}

func asSlice(v any) []any {
	out, _ := v.([]any)
	return out
}

func asString(v any) string {
	out, _ := v.(string)
	return strings.TrimSpace(out)
}

func asBool(v any) bool {
	switch value := v.(type) {
	case bool:
		return value
	case string:
		parsed, _ := strconv.ParseBool(value)
		return parsed
	default:
		return false
	}
}

func asInt64(v any) int64 {
	switch value := v.(type) {
	case float64:
		return int64(value)
	case int64:
		return value
	case int:
		return int64(value)
	case json.Number:
		out, _ := value.Int64()
		return out
	case string:
		out, _ := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		return out
	default:
		return 0
	}
}
