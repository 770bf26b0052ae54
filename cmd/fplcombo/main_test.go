package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newFakeFPL(t *testing.T) *httptest.Server {
	t.Helper()

	responses := map[string]string{
		"/bootstrap-static/": `{
			"elements": [
				{"id": 1, "web_name": "Salah", "first_name": "Mohamed", "second_name": "Salah", "team": 1, "element_type": 3},
				{"id": 2, "web_name": "Haaland", "first_name": "Erling", "second_name": "Haaland", "team": 2, "element_type": 4},
				{"id": 3, "web_name": "Raya", "first_name": "David", "second_name": "Raya", "team": 3, "element_type": 1}
			],
			"teams": [{"id": 1, "name": "Liverpool", "short_name": "LIV"}, {"id": 2, "name": "Man City", "short_name": "MCI"}, {"id": 3, "name": "Arsenal", "short_name": "ARS"}],
			"events": [{"id": 5, "is_current": true}]
		}`,
		"/leagues-classic/321/standings/": `{
			"league": {"id": 321, "name": "Friends"},
			"standings": {"has_next": false, "page": 1, "results": [
				{"entry": 11, "entry_name": "Alpha", "player_name": "Ann", "total": 300, "rank": 1, "event_total": 60},
				{"entry": 12, "entry_name": "Bravo", "player_name": "Ben", "total": 280, "rank": 2, "event_total": 40},
				{"entry": 13, "entry_name": "Charlie", "player_name": "Cat", "total": 250, "rank": 3, "event_total": 30}
			]}
		}`,
		"/entry/11/event/5/picks/": `{"entry_history": {"event": 5, "points": 60}, "picks": [
			{"element": 1, "position": 1, "multiplier": 2, "is_captain": true},
			{"element": 3, "position": 2, "multiplier": 1}
		]}`,
		"/entry/12/event/5/picks/": `{"active_chip": "bboost", "entry_history": {"event": 5, "points": 40}, "picks": [
			{"element": 2, "position": 1, "multiplier": 2, "is_captain": true},
			{"element": 3, "position": 2, "multiplier": 1}
		]}`,
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := responses[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root, rt := newRootCommand(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := execute(context.Background(), root, rt)
	return out.String(), err
}

func setupEnv(t *testing.T) {
	t.Helper()

	server := newFakeFPL(t)
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_LOG_LEVEL", "error")
	t.Setenv("FPL_BASE_URL", server.URL)
	t.Setenv("FPL_MAX_RETRIES", "0")
	t.Setenv("FETCH_MAX_ATTEMPTS", "1")
	t.Setenv("FETCH_MODE", "maximum")
	t.Setenv("CACHE_BACKEND", "file")
	t.Setenv("CACHE_DIR", t.TempDir())
}

func TestCLI_ComboByName(t *testing.T) {
	setupEnv(t)

	out, err := runCLI(t, "combo", "--league", "321", "--name", "salah", "--name", "raya")
	if err != nil {
		t.Fatalf("combo: %v", err)
	}
	if !strings.Contains(out, "1 of 2 managers (50.0%) own Salah + Raya") {
		t.Fatalf("unexpected headline:\n%s", out)
	}
	if !strings.Contains(out, "Note: 1 of 3 managers could not be loaded") {
		t.Fatalf("missing exclusion note:\n%s", out)
	}
	if !strings.Contains(out, "https://fantasy.premierleague.com/entry/11/event/5") {
		t.Fatalf("missing entry url:\n%s", out)
	}
}

func TestCLI_LoadThenCacheCommands(t *testing.T) {
	setupEnv(t)

	out, err := runCLI(t, "load", "--league", "321")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !strings.Contains(out, "League: Friends (321), gameweek 5") || !strings.Contains(out, "not_played: 1") {
		t.Fatalf("unexpected load output:\n%s", out)
	}

	out, err = runCLI(t, "load", "--league", "321", "--gw", "5")
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if !strings.Contains(out, "cached: 3  fetched: 0") {
		t.Fatalf("second load must come from cache:\n%s", out)
	}

	out, err = runCLI(t, "cache", "list")
	if err != nil {
		t.Fatalf("cache list: %v", err)
	}
	if !strings.Contains(out, "Friends") {
		t.Fatalf("unexpected cache list:\n%s", out)
	}

	out, err = runCLI(t, "cache", "purge", "--league", "321")
	if err != nil {
		t.Fatalf("cache purge: %v", err)
	}
	if !strings.Contains(out, "Deleted 4 cache entries.") {
		t.Fatalf("unexpected purge output:\n%s", out)
	}

	out, err = runCLI(t, "cache", "upgrade")
	if err != nil {
		t.Fatalf("cache upgrade: %v", err)
	}
	if !strings.Contains(out, "0 upgraded") {
		t.Fatalf("unexpected upgrade output:\n%s", out)
	}
}

func TestCLI_SearchAndValidation(t *testing.T) {
	setupEnv(t)

	out, err := runCLI(t, "search", "raya")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(out, "David Raya") || !strings.Contains(out, "ARS") {
		t.Fatalf("unexpected search output:\n%s", out)
	}

	if _, err := runCLI(t, "cache", "purge"); err == nil {
		t.Fatalf("purge without scope must fail")
	}
	if _, err := runCLI(t, "combo", "--league", "321", "--player", "1", "--name", "salah"); err == nil {
		t.Fatalf("mixing --player and --name must fail")
	}
}

func TestCLI_FailedCommandReleasesRuntime(t *testing.T) {
	setupEnv(t)

	var out bytes.Buffer
	root, rt := newRootCommand(&out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"combo", "--league", "321", "--player", "1", "--name", "salah"})

	if err := execute(context.Background(), root, rt); err == nil {
		t.Fatalf("mixing --player and --name must fail")
	}
	if rt.logger == nil {
		t.Fatalf("runtime was never started")
	}
	if rt.engine != nil || rt.span != nil || rt.shutdown != nil {
		t.Fatalf("failed command left the runtime open: engine=%v span=%v shutdown=%d", rt.engine, rt.span, len(rt.shutdown))
	}
}

func TestCLI_RefreshStandingsAndRebuildPlayers(t *testing.T) {
	setupEnv(t)

	if _, err := runCLI(t, "load", "--league", "321"); err != nil {
		t.Fatalf("load: %v", err)
	}

	out, err := runCLI(t, "load", "--league", "321", "--refresh-standings")
	if err != nil {
		t.Fatalf("load with refreshed standings: %v", err)
	}
	if !strings.Contains(out, "Standings: fresh") || !strings.Contains(out, "cached: 3  fetched: 0") {
		t.Fatalf("refresh must keep cached picks:\n%s", out)
	}

	out, err = runCLI(t, "players", "rebuild")
	if err != nil {
		t.Fatalf("players rebuild: %v", err)
	}
	if !strings.Contains(out, "Indexed 3 players, current gameweek 5.") {
		t.Fatalf("unexpected rebuild output:\n%s", out)
	}
}
