package cachestore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/cache"
)

func TestFileBackendCompressionAndLayout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()
	compressed, err := NewFileBackend(FileBackendOptions{Root: root, Compress: true})
	if err != nil {
		t.Fatalf("new compressed backend: %v", err)
	}
	defer compressed.Close()

	key := cache.LeagueKey(testLeagueID, testGameweek)
	payload := bytes.Repeat([]byte(`{"kind":"league"}`), 64)
	if err := compressed.Write(ctx, key, payload); err != nil {
		t.Fatalf("write compressed: %v", err)
	}

	onDisk, err := os.ReadFile(filepath.Join(root, "league_77", "gw_5", "standings.json.zst"))
	if err != nil {
		t.Fatalf("read compressed file: %v", err)
	}
	if !bytes.HasPrefix(onDisk, zstdMagic) {
		t.Fatalf("expected zstd frame on disk")
	}
	if len(onDisk) >= len(payload) {
		t.Fatalf("expected compressed file to be smaller: %d >= %d", len(onDisk), len(payload))
	}

	got, ok, err := compressed.Read(ctx, key)
	if err != nil || !ok || !bytes.Equal(got, payload) {
		t.Fatalf("compressed round trip failed: ok=%v err=%v", ok, err)
	}

	plain, err := NewFileBackend(FileBackendOptions{Root: root})
	if err != nil {
		t.Fatalf("new plain backend: %v", err)
	}
	defer plain.Close()

	got, ok, err = plain.Read(ctx, key)
	if err != nil || !ok || !bytes.Equal(got, payload) {
		t.Fatalf("plain backend must read compressed entries: ok=%v err=%v", ok, err)
	}

	if err := plain.Write(ctx, key, []byte(`{"v":2}`)); err != nil {
		t.Fatalf("write plain: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "league_77", "gw_5", "standings.json.zst")); !os.IsNotExist(err) {
		t.Fatalf("compressed twin should be removed, stat err=%v", err)
	}
	got, _, _ = compressed.Read(ctx, key)
	if string(got) != `{"v":2}` {
		t.Fatalf("compressed backend should fall back to plain file, got %q", got)
	}
}

func TestFileBackendListAndDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()
	backend, err := NewFileBackend(FileBackendOptions{Root: root})
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	defer backend.Close()

	keys := []cache.Key{
		cache.BootstrapKey(),
		cache.LeagueKey(testLeagueID, testGameweek),
		cache.PicksKey(testLeagueID, testGameweek, 1),
		cache.PicksKey(testLeagueID, testGameweek, 2),
		cache.PicksKey(testLeagueID, testGameweek+1, 1),
	}
	for _, key := range keys {
		if err := backend.Write(ctx, key, []byte("{}")); err != nil {
			t.Fatalf("write %s: %v", key, err)
		}
	}
	// Leftover from an interrupted write.
	if err := os.WriteFile(filepath.Join(root, "league_77", "gw_5", ".tmp-123"), []byte("partial"), 0o644); err != nil {
		t.Fatalf("seed temp file: %v", err)
	}

	all, err := backend.List(ctx, cache.Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != len(keys) {
		t.Fatalf("expected %d records, got %+v", len(keys), all)
	}

	picksOnly, err := backend.List(ctx, cache.Filter{Kind: cache.KindPicks, LeagueID: testLeagueID, Gameweek: testGameweek})
	if err != nil {
		t.Fatalf("list picks: %v", err)
	}
	if len(picksOnly) != 2 || picksOnly[0].Key != cache.PicksKey(testLeagueID, testGameweek, 1) {
		t.Fatalf("unexpected picks records: %+v", picksOnly)
	}

	if err := backend.Delete(ctx, cache.PicksKey(testLeagueID, testGameweek+1, 1)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "league_77", "gw_6")); !os.IsNotExist(err) {
		t.Fatalf("empty gameweek dir should be pruned, stat err=%v", err)
	}
	if _, ok, _ := backend.Read(ctx, cache.PicksKey(testLeagueID, testGameweek+1, 1)); ok {
		t.Fatalf("deleted entry still readable")
	}
}

func TestParseKeyPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want cache.Key
		ok   bool
	}{
		{path: "bootstrap/players.json", want: cache.BootstrapKey(), ok: true},
		{path: "league_12/gw_3/standings.json.zst", want: cache.LeagueKey(12, 3), ok: true},
		{path: "league_12/gw_3/picks/99.json", want: cache.PicksKey(12, 3, 99), ok: true},
		{path: "league_12/gw_3/picks/abc.json"},
		{path: "league_x/gw_3/standings.json"},
		{path: "league_12/gw_3/standings.txt"},
		{path: "notes.json"},
	}

	for _, tc := range tests {
		got, ok := parseKeyPath(filepath.FromSlash(tc.path))
		if ok != tc.ok || got != tc.want {
			t.Fatalf("parseKeyPath(%q) = %+v, %v; want %+v, %v", tc.path, got, ok, tc.want, tc.ok)
		}
	}
}

func TestSQLiteBackendWithStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")
	backend, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	store := newTestStore(backend, 0)

	if err := store.PutLeague(ctx, testGameweek, sampleLeague()); err != nil {
		t.Fatalf("put league: %v", err)
	}
	if err := store.PutPicks(ctx, testLeagueID, samplePicks(1, testGameweek, 10)); err != nil {
		t.Fatalf("put picks: %v", err)
	}
	if err := store.PutPicks(ctx, testLeagueID, samplePicks(1, testGameweek, 20)); err != nil {
		t.Fatalf("overwrite picks: %v", err)
	}

	entry, ok, err := store.GetPicks(ctx, testLeagueID, testGameweek, 1)
	if err != nil || !ok || entry.Picks.Points != 20 {
		t.Fatalf("unexpected picks after upsert: ok=%v err=%v entry=%+v", ok, err, entry)
	}

	records, err := backend.List(ctx, cache.Filter{LeagueID: testLeagueID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %+v", records)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	store = newTestStore(reopened, 0)
	defer store.Close()

	if _, ok, err := store.GetLeague(ctx, testLeagueID, testGameweek); err != nil || !ok {
		t.Fatalf("league lost across reopen: ok=%v err=%v", ok, err)
	}
	deleted, err := store.Delete(ctx, cache.Filter{Kind: cache.KindPicks})
	if err != nil || deleted != 1 {
		t.Fatalf("delete picks: deleted=%d err=%v", deleted, err)
	}
}

func TestFormatQueryForTrace(t *testing.T) {
	t.Parallel()

	got := formatQueryForTrace("  SELECT payload\n\t FROM cache_entries  WHERE cache_key = ?1 ")
	if got != "SELECT payload FROM cache_entries WHERE cache_key = ?1" {
		t.Fatalf("unexpected formatted query: %q", got)
	}
}
