package cachestore

import (
	"encoding/json"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/cache"
	"github.com/valyala/bytebufferpool"
)

// envelope is the persisted form of every entry. Entries written before
// versioning existed carry no schema_version and are read as version 1.
type envelope struct {
	SchemaVersion int             `json:"schema_version,omitempty"`
	Kind          cache.Kind      `json:"kind"`
	LeagueID      int64           `json:"league_id,omitempty"`
	Gameweek      int             `json:"gameweek,omitempty"`
	ManagerID     int64           `json:"manager_id,omitempty"`
	FetchedAt     time.Time       `json:"fetched_at"`
	Payload       json.RawMessage `json:"payload"`
}

func (e envelope) key() cache.Key {
	return cache.Key{Kind: e.Kind, LeagueID: e.LeagueID, Gameweek: e.Gameweek, ManagerID: e.ManagerID}
}

func (e envelope) version() int {
	if e.SchemaVersion <= 0 {
		return 1
	}
	return e.SchemaVersion
}

func newEnvelope(key cache.Key, fetchedAt time.Time, payload any) (envelope, error) {
	raw, err := encodeJSON(payload)
	if err != nil {
		return envelope{}, crerr.Wrapf(err, "encode %s payload", key.Kind)
	}
	return envelope{
		SchemaVersion: CurrentSchemaVersion,
		Kind:          key.Kind,
		LeagueID:      key.LeagueID,
		Gameweek:      key.Gameweek,
		ManagerID:     key.ManagerID,
		FetchedAt:     fetchedAt.UTC(),
		Payload:       raw,
	}, nil
}

func encodeEnvelope(env envelope) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if err := sonic.ConfigDefault.NewEncoder(buf).Encode(env); err != nil {
		return nil, crerr.Wrapf(err, "encode envelope %s", env.key())
	}
	out := make([]byte, buf.Len())
	copy(out, buf.B)
	return out, nil
}

func decodeEnvelope(raw []byte) (envelope, error) {
	var env envelope
	if err := decodeJSON(raw, &env); err != nil {
		return envelope{}, crerr.Mark(crerr.Wrap(err, "decode envelope"), cache.ErrCorrupt)
	}
	if _, ok := cache.AllKinds[env.Kind]; !ok {
		return envelope{}, crerr.Mark(crerr.Newf("unknown entry kind %q", env.Kind), cache.ErrCorrupt)
	}
	if len(env.Payload) == 0 {
		return envelope{}, crerr.Mark(crerr.New("missing payload"), cache.ErrCorrupt)
	}
	return env, nil
}

func encodeJSON(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

func decodeJSON(raw []byte, target any) error {
	return sonic.Unmarshal(raw, target)
}
