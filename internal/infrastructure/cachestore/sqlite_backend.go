package cachestore

import (
	"context"
	"database/sql"
	"embed"
	"regexp"
	"strconv"
	"strings"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/cache"
	qb "github.com/riskibarqy/fpl-combination-analysis/internal/platform/querybuilder"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	cacheTable            = "cache_entries"
	maxTracedQueryLength  = 512
	sqliteBusyTimeoutMsec = 5000
)

var (
	queryWhitespaceRegex = regexp.MustCompile(`\s+`)
	listColumns          = []string{"cache_key", "kind", "league_id", "gameweek", "manager_id", "size_bytes", "updated_at"}
)

type cacheEntryRow struct {
	CacheKey  string `db:"cache_key"`
	Kind      string `db:"kind"`
	LeagueID  int64  `db:"league_id"`
	Gameweek  int    `db:"gameweek"`
	ManagerID int64  `db:"manager_id"`
	Payload   []byte `db:"payload"`
	SizeBytes int64  `db:"size_bytes"`
	UpdatedAt int64  `db:"updated_at"`
}

type cacheListRow struct {
	CacheKey  string `db:"cache_key"`
	Kind      string `db:"kind"`
	LeagueID  int64  `db:"league_id"`
	Gameweek  int    `db:"gameweek"`
	ManagerID int64  `db:"manager_id"`
	SizeBytes int64  `db:"size_bytes"`
	UpdatedAt int64  `db:"updated_at"`
}

// SQLiteBackend keeps every entry as one row of a single SQLite file. Each
// write is one upsert statement, so readers never observe a partial entry.
type SQLiteBackend struct {
	db *sqlx.DB
}

// OpenSQLite opens (or creates) the database at path and applies pending migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteBackend, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, crerr.New("sqlite path is required")
	}

	db, err := otelsqlx.Open("sqlite", sqliteDSN(path),
		otelsql.WithDBSystem("sqlite"),
		otelsql.WithQueryFormatter(formatQueryForTrace),
	)
	if err != nil {
		return nil, crerr.Wrapf(err, "open sqlite %s", path)
	}
	// SQLite serializes writers anyway; one connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, crerr.Wrapf(err, "ping sqlite %s", path)
	}
	if err := applyMigrations(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteBackend{db: db}, nil
}

func sqliteDSN(path string) string {
	dsn := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		dsn = "file:" + path
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(" + strconv.Itoa(sqliteBusyTimeoutMsec) + ")&_pragma=journal_mode(WAL)"
}

func applyMigrations(db *sql.DB) error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return crerr.Wrap(err, "load cache migrations")
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return crerr.Wrap(err, "init sqlite migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return crerr.Wrap(err, "init cache migrator")
	}
	// m.Close would close the shared *sql.DB, so only the source is released.
	defer source.Close()

	if err := m.Up(); err != nil && !crerr.Is(err, migrate.ErrNoChange) {
		return crerr.Wrap(err, "apply cache migrations")
	}
	return nil
}

func (b *SQLiteBackend) Read(ctx context.Context, key cache.Key) ([]byte, bool, error) {
	query, args, err := qb.Select("payload").From(cacheTable).
		Where(qb.Eq("cache_key", key.String())).
		ToSQL()
	if err != nil {
		return nil, false, crerr.Wrap(err, "build select cache entry query")
	}

	var payload []byte
	if err := b.db.GetContext(ctx, &payload, query, args...); err != nil {
		if crerr.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, crerr.Wrapf(err, "select cache entry %s", key)
	}
	return payload, true, nil
}

func (b *SQLiteBackend) Write(ctx context.Context, key cache.Key, data []byte) error {
	row := cacheEntryRow{
		CacheKey:  key.String(),
		Kind:      string(key.Kind),
		LeagueID:  key.LeagueID,
		Gameweek:  key.Gameweek,
		ManagerID: key.ManagerID,
		Payload:   data,
		SizeBytes: int64(len(data)),
		UpdatedAt: time.Now().UTC().UnixMilli(),
	}
	query, args, err := qb.InsertModel(cacheTable, row,
		"ON CONFLICT(cache_key) DO UPDATE SET payload = excluded.payload, size_bytes = excluded.size_bytes, updated_at = excluded.updated_at",
	)
	if err != nil {
		return crerr.Wrap(err, "build upsert cache entry query")
	}
	if _, err := b.db.ExecContext(ctx, query, args...); err != nil {
		return crerr.Wrapf(err, "upsert cache entry %s", key)
	}
	return nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, key cache.Key) error {
	query, args, err := qb.DeleteFrom(cacheTable).
		Where(qb.Eq("cache_key", key.String())).
		ToSQL()
	if err != nil {
		return crerr.Wrap(err, "build delete cache entry query")
	}
	if _, err := b.db.ExecContext(ctx, query, args...); err != nil {
		return crerr.Wrapf(err, "delete cache entry %s", key)
	}
	return nil
}

func (b *SQLiteBackend) List(ctx context.Context, filter cache.Filter) ([]Record, error) {
	conditions := make([]qb.Condition, 0, 3)
	if filter.Kind != "" {
		conditions = append(conditions, qb.Eq("kind", string(filter.Kind)))
	}
	if filter.LeagueID > 0 {
		conditions = append(conditions, qb.Eq("league_id", filter.LeagueID))
	}
	if filter.Gameweek > 0 {
		conditions = append(conditions, qb.Eq("gameweek", filter.Gameweek))
	}

	query, args, err := qb.Select(listColumns...).From(cacheTable).
		Where(conditions...).
		OrderBy("cache_key").
		ToSQL()
	if err != nil {
		return nil, crerr.Wrap(err, "build list cache entries query")
	}

	var rows []cacheListRow
	if err := b.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, crerr.Wrap(err, "list cache entries")
	}

	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		key := cache.Key{
			Kind:      cache.Kind(row.Kind),
			LeagueID:  row.LeagueID,
			Gameweek:  row.Gameweek,
			ManagerID: row.ManagerID,
		}
		if !filter.Matches(key) {
			continue
		}
		out = append(out, Record{
			Key:        key,
			Size:       row.SizeBytes,
			ModifiedAt: time.UnixMilli(row.UpdatedAt).UTC(),
		})
	}
	return out, nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func formatQueryForTrace(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return query
	}

	normalized := queryWhitespaceRegex.ReplaceAllString(query, " ")
	if len(normalized) <= maxTracedQueryLength {
		return normalized
	}
	return normalized[:maxTracedQueryLength] + "..."
}
