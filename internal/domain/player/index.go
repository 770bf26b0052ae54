package player

import (
	"iter"
	"sort"
	"strings"
	"unicode/utf8"
)

type matchTier int

const (
	tierExactWebName matchTier = iota
	tierWebNamePrefix
	tierWebNameSubstring
	tierFullNameSubstring
	tierCount
	tierNone matchTier = -1
)

type indexEntry struct {
	player  Player
	webName string
	full    string
	webLen  int
}

// Index is the read-only lookup and search structure over the static player list.
type Index struct {
	byID    map[int64]Player
	entries []indexEntry
}

func NewIndex(players []Player) *Index {
	idx := &Index{
		byID:    make(map[int64]Player, len(players)),
		entries: make([]indexEntry, 0, len(players)),
	}
	for _, item := range players {
		if item.ID <= 0 {
			continue
		}
		if _, exists := idx.byID[item.ID]; exists {
			continue
		}
		idx.byID[item.ID] = item

		webName := Normalize(item.WebName)
		full := Normalize(strings.Join([]string{item.FullName, item.FirstName, item.SecondName}, " "))
		idx.entries = append(idx.entries, indexEntry{
			player:  item,
			webName: webName,
			full:    full,
			webLen:  utf8.RuneCountInString(webName),
		})
	}

	sort.SliceStable(idx.entries, func(i, j int) bool {
		left, right := idx.entries[i], idx.entries[j]
		if left.webLen != right.webLen {
			return left.webLen < right.webLen
		}
		if left.webName != right.webName {
			return left.webName < right.webName
		}
		return left.player.ID < right.player.ID
	})

	return idx
}

func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.byID)
}

func (idx *Index) Get(id int64) (Player, bool) {
	if idx == nil {
		return Player{}, false
	}
	item, ok := idx.byID[id]
	return item, ok
}

// Contains reports whether every id is a known player. The first unknown id is returned.
func (idx *Index) Contains(ids ...int64) (int64, bool) {
	for _, id := range ids {
		if _, ok := idx.Get(id); !ok {
			return id, false
		}
	}
	return 0, true
}

// Search ranks players against fragment: exact web name, web name prefix,
// web name substring, then full name substring. Within a tier shorter web
// names come first, then alphabetical order. limit <= 0 disables truncation.
// The returned sequence can be iterated any number of times.
func (idx *Index) Search(fragment string, limit int) iter.Seq[Player] {
	query := Normalize(fragment)
	return func(yield func(Player) bool) {
		if idx == nil || query == "" {
			return
		}

		emitted := 0
		for tier := tierExactWebName; tier < tierCount; tier++ {
			for i := range idx.entries {
				if classify(idx.entries[i], query) != tier {
					continue
				}
				if !yield(idx.entries[i].player) {
					return
				}
				emitted++
				if limit > 0 && emitted >= limit {
					return
				}
			}
		}
	}
}

// Resolve returns the best ranked player for name.
func (idx *Index) Resolve(name string) (Player, bool) {
	for item := range idx.Search(name, 1) {
		return item, true
	}
	return Player{}, false
}

func classify(entry indexEntry, query string) matchTier {
	switch {
	case entry.webName == query:
		return tierExactWebName
	case strings.HasPrefix(entry.webName, query):
		return tierWebNamePrefix
	case strings.Contains(entry.webName, query):
		return tierWebNameSubstring
	case strings.Contains(entry.full, query):
		return tierFullNameSubstring
	default:
		return tierNone
	}
}
