package cachestore

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	crerr "github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/cache"
)

const (
	jsonExt       = ".json"
	zstdExt       = ".json.zst"
	tempPrefix    = ".tmp-"
	bootstrapDir  = "bootstrap"
	bootstrapFile = "players"
	standingsFile = "standings"
	picksDir      = "picks"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

type FileBackendOptions struct {
	Root     string
	Compress bool
}

// FileBackend stores one file per entry:
//
//	<root>/bootstrap/players.json
//	<root>/league_<id>/gw_<n>/standings.json
//	<root>/league_<id>/gw_<n>/picks/<manager>.json
//
// With compression enabled files get a .zst suffix. Reads accept either form.
type FileBackend struct {
	root     string
	compress bool
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
}

func NewFileBackend(opts FileBackendOptions) (*FileBackend, error) {
	root := strings.TrimSpace(opts.Root)
	if root == "" {
		return nil, crerr.New("cache root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, crerr.Wrapf(err, "create cache root %s", root)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, crerr.Wrap(err, "create zstd encoder")
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		_ = encoder.Close()
		return nil, crerr.Wrap(err, "create zstd decoder")
	}

	return &FileBackend{
		root:     root,
		compress: opts.Compress,
		encoder:  encoder,
		decoder:  decoder,
	}, nil
}

func (b *FileBackend) Read(_ context.Context, key cache.Key) ([]byte, bool, error) {
	primary, secondary := b.paths(key)
	for _, path := range []string{primary, secondary} {
		raw, err := os.ReadFile(path)
		if err != nil {
			if crerr.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, false, crerr.Wrapf(err, "read %s", path)
		}
		if !bytes.HasPrefix(raw, zstdMagic) {
			return raw, true, nil
		}
		decoded, err := b.decoder.DecodeAll(raw, nil)
		if err != nil {
			// Unreadable bytes surface as an envelope decode failure upstream.
			return raw, true, nil
		}
		return decoded, true, nil
	}
	return nil, false, nil
}

// Write publishes data with a temp file, fsync and rename in the target directory.
func (b *FileBackend) Write(_ context.Context, key cache.Key, data []byte) error {
	path, stale := b.paths(key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return crerr.Wrapf(err, "create cache dir %s", dir)
	}

	if b.compress {
		data = b.encoder.EncodeAll(data, make([]byte, 0, len(data)/3))
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return crerr.Wrapf(err, "create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return crerr.Wrapf(err, "write temp file %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return crerr.Wrapf(err, "sync temp file %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return crerr.Wrapf(err, "close temp file %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return crerr.Wrapf(err, "publish %s", path)
	}

	// Drop the copy in the other encoding so reads never see an older twin.
	if err := os.Remove(stale); err != nil && !crerr.Is(err, fs.ErrNotExist) {
		return crerr.Wrapf(err, "remove %s", stale)
	}
	return nil
}

func (b *FileBackend) Delete(_ context.Context, key cache.Key) error {
	primary, secondary := b.paths(key)
	for _, path := range []string{primary, secondary} {
		if err := os.Remove(path); err != nil && !crerr.Is(err, fs.ErrNotExist) {
			return crerr.Wrapf(err, "remove %s", path)
		}
	}

	// Prune now-empty parents up to the root; failures mean the dir still has entries.
	for dir := filepath.Dir(primary); dir != b.root && strings.HasPrefix(dir, b.root); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			break
		}
	}
	return nil
}

func (b *FileBackend) List(ctx context.Context, filter cache.Filter) ([]Record, error) {
	out := make([]Record, 0, 64)
	err := filepath.WalkDir(b.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}

		rel, err := filepath.Rel(b.root, path)
		if err != nil {
			return nil
		}
		key, ok := parseKeyPath(rel)
		if !ok || !filter.Matches(key) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out = append(out, Record{Key: key, Size: info.Size(), ModifiedAt: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, crerr.Wrapf(err, "walk cache root %s", b.root)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out, nil
}

func (b *FileBackend) Close() error {
	b.decoder.Close()
	return b.encoder.Close()
}

// paths returns the path for the configured encoding and the path of the other encoding.
func (b *FileBackend) paths(key cache.Key) (string, string) {
	var base string
	switch key.Kind {
	case cache.KindBootstrap:
		base = filepath.Join(b.root, bootstrapDir, bootstrapFile)
	case cache.KindPicks:
		base = filepath.Join(b.root, leagueDir(key.LeagueID), gameweekDir(key.Gameweek), picksDir, strconv.FormatInt(key.ManagerID, 10))
	default:
		base = filepath.Join(b.root, leagueDir(key.LeagueID), gameweekDir(key.Gameweek), standingsFile)
	}

	if b.compress {
		return base + zstdExt, base + jsonExt
	}
	return base + jsonExt, base + zstdExt
}

func leagueDir(leagueID int64) string {
	return "league_" + strconv.FormatInt(leagueID, 10)
}

func gameweekDir(gameweek int) string {
	return "gw_" + strconv.Itoa(gameweek)
}

func parseKeyPath(rel string) (cache.Key, bool) {
	rel = filepath.ToSlash(rel)
	switch {
	case strings.HasSuffix(rel, zstdExt):
		rel = strings.TrimSuffix(rel, zstdExt)
	case strings.HasSuffix(rel, jsonExt):
		rel = strings.TrimSuffix(rel, jsonExt)
	default:
		return cache.Key{}, false
	}

	parts := strings.Split(rel, "/")
	if len(parts) == 2 && parts[0] == bootstrapDir && parts[1] == bootstrapFile {
		return cache.BootstrapKey(), true
	}
	if len(parts) < 3 {
		return cache.Key{}, false
	}

	leagueID, err := strconv.ParseInt(strings.TrimPrefix(parts[0], "league_"), 10, 64)
	if err != nil || !strings.HasPrefix(parts[0], "league_") {
		return cache.Key{}, false
	}
	gameweek, err := strconv.Atoi(strings.TrimPrefix(parts[1], "gw_"))
	if err != nil || !strings.HasPrefix(parts[1], "gw_") {
		return cache.Key{}, false
	}

	switch {
	case len(parts) == 3 && parts[2] == standingsFile:
		return cache.LeagueKey(leagueID, gameweek), true
	case len(parts) == 4 && parts[2] == picksDir:
		managerID, err := strconv.ParseInt(parts[3], 10, 64)
		if err != nil {
			return cache.Key{}, false
		}
		return cache.PicksKey(leagueID, gameweek, managerID), true
	default:
		return cache.Key{}, false
	}
}
