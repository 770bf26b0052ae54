package cachestore

import (
	"bytes"
	"context"
	"math"
	"sort"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/cache"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/league"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/picks"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/player"
	"github.com/riskibarqy/fpl-combination-analysis/internal/platform/logging"
)

type Options struct {
	// LeagueTTL is the age after which standings are reported stale. Zero disables staleness.
	LeagueTTL time.Duration
	Logger    *logging.Logger
}

// Store is the versioned cache over a Backend. Reads upgrade old payloads
// through the schema chain and write the upgraded form back once.
type Store struct {
	backend   Backend
	leagueTTL time.Duration
	logger    *logging.Logger
	locks     keyedMutex
	now       func() time.Time
}

var _ cache.Repository = (*Store)(nil)

func NewStore(backend Backend, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		backend:   backend,
		leagueTTL: opts.LeagueTTL,
		logger:    logger.With("component", "cache_store"),
		now:       time.Now,
	}
}

func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) GetLeague(ctx context.Context, leagueID int64, gameweek int) (cache.LeagueEntry, bool, error) {
	var rec leagueRecord
	meta, ok, err := s.load(ctx, cache.LeagueKey(leagueID, gameweek), &rec, true)
	if err != nil || !ok {
		return cache.LeagueEntry{}, false, err
	}
	return cache.LeagueEntry{League: rec.toDomain(), Meta: meta}, true, nil
}

func (s *Store) PutLeague(ctx context.Context, gameweek int, value league.League) error {
	if err := value.Validate(); err != nil {
		return crerr.Wrap(err, "validate league")
	}
	return s.put(ctx, cache.LeagueKey(value.ID, gameweek), leagueToRecord(value))
}

func (s *Store) GetPicks(ctx context.Context, leagueID int64, gameweek int, managerID int64) (cache.PicksEntry, bool, error) {
	var rec picksRecord
	meta, ok, err := s.load(ctx, cache.PicksKey(leagueID, gameweek, managerID), &rec, true)
	if err != nil || !ok {
		return cache.PicksEntry{}, false, err
	}
	entry := cache.PicksEntry{NotPlayed: rec.NotPlayed, Meta: meta}
	if !rec.NotPlayed {
		entry.Picks = rec.toDomain()
	}
	return entry, true, nil
}

func (s *Store) PutPicks(ctx context.Context, leagueID int64, value picks.ManagerPicks) error {
	if err := value.Validate(); err != nil {
		return crerr.Wrap(err, "validate picks")
	}
	return s.put(ctx, cache.PicksKey(leagueID, value.Gameweek, value.ManagerID), picksToRecord(value))
}

func (s *Store) MarkNotPlayed(ctx context.Context, leagueID int64, gameweek int, managerID int64) error {
	return s.put(ctx, cache.PicksKey(leagueID, gameweek, managerID), picksRecord{
		ManagerID: managerID,
		Gameweek:  gameweek,
		Picks:     []pickRecord{},
		NotPlayed: true,
	})
}

func (s *Store) GetBootstrap(ctx context.Context) (cache.BootstrapEntry, bool, error) {
	var rec bootstrapRecord
	meta, ok, err := s.load(ctx, cache.BootstrapKey(), &rec, true)
	if err != nil || !ok {
		return cache.BootstrapEntry{}, false, err
	}
	return cache.BootstrapEntry{Bootstrap: rec.toDomain(), Meta: meta}, true, nil
}

func (s *Store) PutBootstrap(ctx context.Context, value player.Bootstrap) error {
	if err := value.Validate(); err != nil {
		return crerr.Wrap(err, "validate bootstrap")
	}
	return s.put(ctx, cache.BootstrapKey(), bootstrapToRecord(value))
}

// Summaries aggregates entries per league and gameweek. It never writes.
func (s *Store) Summaries(ctx context.Context, filter cache.Filter) ([]cache.Summary, error) {
	records, err := s.backend.List(ctx, cache.Filter{LeagueID: filter.LeagueID, Gameweek: filter.Gameweek})
	if err != nil {
		return nil, crerr.Wrap(err, "list cache entries")
	}

	type groupKey struct {
		leagueID int64
		gameweek int
	}
	groups := make(map[groupKey]*cache.Summary)
	for _, record := range records {
		if record.Key.Kind == cache.KindBootstrap {
			continue
		}
		gk := groupKey{leagueID: record.Key.LeagueID, gameweek: record.Key.Gameweek}
		summary, ok := groups[gk]
		if !ok {
			summary = &cache.Summary{
				LeagueID:       gk.leagueID,
				Gameweek:       gk.gameweek,
				SchemaVersions: make(map[int]int),
			}
			groups[gk] = summary
		}
		summary.Bytes += record.Size

		target := newRecord(record.Key.Kind)
		meta, found, err := s.load(ctx, record.Key, target, false)
		if err != nil {
			return nil, err
		}
		if !found {
			summary.CorruptEntries++
			continue
		}
		summary.SchemaVersions[storedVersion(meta)]++

		switch rec := target.(type) {
		case *leagueRecord:
			summary.HasStandings = true
			summary.LeagueName = rec.Name
			summary.ManagerCount = len(rec.Managers)
			summary.FetchedAt = meta.FetchedAt
			summary.Stale = meta.Stale
		case *picksRecord:
			if rec.NotPlayed {
				summary.NotPlayed++
			} else {
				summary.PicksCached++
			}
		}
	}

	out := make([]cache.Summary, 0, len(groups))
	for _, summary := range groups {
		if summary.ManagerCount > 0 {
			covered := float64(summary.PicksCached+summary.NotPlayed) / float64(summary.ManagerCount) * 100
			summary.CoveragePercent = math.Round(covered*10) / 10
		}
		out = append(out, *summary)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LeagueID != out[j].LeagueID {
			return out[i].LeagueID < out[j].LeagueID
		}
		return out[i].Gameweek < out[j].Gameweek
	})
	return out, nil
}

// Delete removes every entry matching filter and returns how many were removed.
func (s *Store) Delete(ctx context.Context, filter cache.Filter) (int, error) {
	records, err := s.backend.List(ctx, filter)
	if err != nil {
		return 0, crerr.Wrap(err, "list cache entries")
	}

	deleted := 0
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		unlock := s.locks.lock(record.Key)
		err := s.backend.Delete(ctx, record.Key)
		unlock()
		if err != nil {
			return deleted, crerr.Wrapf(err, "delete %s", record.Key)
		}
		deleted++
	}

	s.logger.InfoContext(ctx, "cache entries deleted",
		"kind", filter.Kind,
		"league_id", filter.LeagueID,
		"gameweek", filter.Gameweek,
		"deleted", deleted,
	)
	return deleted, nil
}

// UpgradeAll reads every entry so that outdated ones are rewritten at the current schema.
func (s *Store) UpgradeAll(ctx context.Context) (cache.UpgradeReport, error) {
	records, err := s.backend.List(ctx, cache.Filter{})
	if err != nil {
		return cache.UpgradeReport{}, crerr.Wrap(err, "list cache entries")
	}

	var report cache.UpgradeReport
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++
		meta, found, err := s.load(ctx, record.Key, newRecord(record.Key.Kind), true)
		if err != nil {
			return report, err
		}
		switch {
		case !found:
			report.Corrupt++
		case meta.UpgradedFrom > 0:
			report.Upgraded++
		}
	}
	return report, nil
}

func (s *Store) put(ctx context.Context, key cache.Key, payload any) error {
	if err := key.Validate(); err != nil {
		return crerr.Wrap(err, "validate cache key")
	}

	env, err := newEnvelope(key, s.now(), payload)
	if err != nil {
		return err
	}
	raw, err := encodeEnvelope(env)
	if err != nil {
		return err
	}

	unlock := s.locks.lock(key)
	defer unlock()
	if err := s.backend.Write(ctx, key, raw); err != nil {
		return crerr.Wrapf(err, "write %s", key)
	}
	return nil
}

// load returns ok=false for absent and for unreadable entries; only backend failures are errors.
func (s *Store) load(ctx context.Context, key cache.Key, target record, writeThrough bool) (cache.Meta, bool, error) {
	raw, found, err := s.backend.Read(ctx, key)
	if err != nil {
		return cache.Meta{}, false, crerr.Wrapf(err, "read %s", key)
	}
	if !found {
		return cache.Meta{}, false, nil
	}

	meta, upgraded, err := s.decode(key, raw, target)
	if err != nil {
		if crerr.Is(err, cache.ErrCorrupt) {
			s.logger.WarnContext(ctx, "cache entry unreadable, treating as absent", "key", key.String(), "error", err)
			return cache.Meta{}, false, nil
		}
		return cache.Meta{}, false, err
	}

	if upgraded != nil && writeThrough {
		s.persistUpgrade(ctx, key, raw, upgraded, meta.UpgradedFrom)
	}
	return meta, true, nil
}

func (s *Store) decode(key cache.Key, raw []byte, target record) (cache.Meta, []byte, error) {
	env, err := decodeEnvelope(raw)
	if err != nil {
		return cache.Meta{}, nil, err
	}
	if err := matchKey(key, &env); err != nil {
		return cache.Meta{}, nil, err
	}

	version := env.version()
	payload, err := upgradePayload(key, version, env.Payload)
	if err != nil {
		return cache.Meta{}, nil, err
	}
	if err := decodeJSON(payload, target); err != nil {
		return cache.Meta{}, nil, crerr.Mark(crerr.Wrapf(err, "decode %s payload", key.Kind), cache.ErrCorrupt)
	}
	if err := recordValidator.Struct(target); err != nil {
		return cache.Meta{}, nil, crerr.Mark(crerr.Wrapf(err, "validate %s payload", key.Kind), cache.ErrCorrupt)
	}
	if err := target.check(key); err != nil {
		return cache.Meta{}, nil, crerr.Mark(err, cache.ErrCorrupt)
	}

	meta := cache.Meta{
		Key:           key,
		SchemaVersion: CurrentSchemaVersion,
		FetchedAt:     env.FetchedAt,
		Size:          int64(len(raw)),
	}
	if key.Kind == cache.KindLeague && s.leagueTTL > 0 {
		meta.Stale = s.now().Sub(env.FetchedAt) > s.leagueTTL
	}

	if version == CurrentSchemaVersion {
		return meta, nil, nil
	}

	meta.UpgradedFrom = version
	env.SchemaVersion = CurrentSchemaVersion
	env.Payload = payload
	upgraded, err := encodeEnvelope(env)
	if err != nil {
		return cache.Meta{}, nil, err
	}
	return meta, upgraded, nil
}

// persistUpgrade writes the upgraded form unless another writer replaced the entry since it was read.
func (s *Store) persistUpgrade(ctx context.Context, key cache.Key, original, upgraded []byte, from int) {
	unlock := s.locks.lock(key)
	defer unlock()

	current, found, err := s.backend.Read(ctx, key)
	if err != nil || !found || !bytes.Equal(current, original) {
		s.logger.DebugContext(ctx, "skip cache upgrade write-through, entry changed", "key", key.String())
		return
	}
	if err := s.backend.Write(ctx, key, upgraded); err != nil {
		s.logger.WarnContext(ctx, "cache upgrade write-through failed", "key", key.String(), "error", err)
		return
	}
	s.logger.InfoContext(ctx, "cache entry upgraded",
		"key", key.String(),
		"from_version", from,
		"to_version", CurrentSchemaVersion,
	)
}

// matchKey rejects envelopes stored under the wrong key and fills ids missing from legacy envelopes.
func matchKey(key cache.Key, env *envelope) error {
	if env.Kind != key.Kind {
		return crerr.Mark(crerr.Newf("entry kind %q stored under %s", env.Kind, key), cache.ErrCorrupt)
	}
	if env.LeagueID == 0 {
		env.LeagueID = key.LeagueID
	}
	if env.Gameweek == 0 {
		env.Gameweek = key.Gameweek
	}
	if env.ManagerID == 0 {
		env.ManagerID = key.ManagerID
	}
	if env.key() != key {
		return crerr.Mark(crerr.Newf("entry %s stored under %s", env.key(), key), cache.ErrCorrupt)
	}
	return nil
}

func storedVersion(meta cache.Meta) int {
	if meta.UpgradedFrom > 0 {
		return meta.UpgradedFrom
	}
	return meta.SchemaVersion
}
