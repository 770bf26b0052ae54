package combination

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrInvalidQuery  = errors.New("invalid combination query")
	ErrUnknownPlayer = errors.New("unknown player")
)

// Query is a deduplicated, order-independent set of player ids.
type Query struct {
	playerIDs []int64
}

func NewQuery(playerIDs []int64) (Query, error) {
	if len(playerIDs) == 0 {
		return Query{}, fmt.Errorf("%w: at least one player id is required", ErrInvalidQuery)
	}

	ids := make([]int64, 0, len(playerIDs))
	for _, id := range playerIDs {
		if id <= 0 {
			return Query{}, fmt.Errorf("%w: player id must be greater than zero, got %d", ErrInvalidQuery, id)
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)

	return Query{playerIDs: slices.Compact(ids)}, nil
}

func (q Query) PlayerIDs() []int64 {
	return slices.Clone(q.playerIDs)
}

func (q Query) Len() int {
	return len(q.playerIDs)
}

func (q Query) IsZero() bool {
	return len(q.playerIDs) == 0
}
