package knownposts

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"likesync/pkg/config"
	"likesync/pkg/logger"
	"likesync/pkg/storage"
)

// Store is the set of post identifiers already processed for one user.
// Staged identifiers become durable on Commit. Implementations are not safe
// for concurrent use; the sync loop is the only caller.
type Store interface {
	// Contains reports whether id is known, committed or staged
	Contains(id string) bool
	// Stage buffers id for the next Commit. It returns false when id is
	// already known or not a valid identifier, so repeated staging is a no-op.
	Stage(id string) bool
	// Commit makes every staged identifier durable and clears the buffer.
	// It returns the number of identifiers written.
	Commit() (int, error)
	Pending() int
	Len() int
	// Identifiers returns every committed identifier, oldest first
	Identifiers() ([]string, error)
	// Recent returns up to limit committed identifiers, newest first.
	// A limit of zero or less returns all of them.
	Recent(limit int) ([]string, error)
	ShardCount() int
	Stats() Stats
	Close() error
}

// Stats describes the durable layout of a store
type Stats struct {
	Backend     string
	Identifiers int
	Capacity    int
	Shards      []ShardStat
}

// ShardStat is one shard file and its identifier count
type ShardStat struct {
	File  string
	Count int
}

// Open opens the store of the configured backend inside the user layout
func Open(cfg config.StoreConfig, layout storage.Layout, log logger.Logger) (Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return OpenSQLite(layout.SQLitePath(), log)
	case config.BackendShards, "":
		return OpenShards(layout.ShardDir(), cfg.ShardCapacity, log)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// Index is the in-memory membership structure built at load
type Index struct {
	ids map[string]struct{}
}

// NewIndex creates an empty index
func NewIndex() *Index {
	return &Index{ids: make(map[string]struct{})}
}

// Contains reports membership
func (x *Index) Contains(id string) bool {
	_, ok := x.ids[id]
	return ok
}

// Add inserts id and reports whether it was new
func (x *Index) Add(id string) bool {
	if _, ok := x.ids[id]; ok {
		return false
	}
	x.ids[id] = struct{}{}
	return true
}

// Len returns the number of identifiers
func (x *Index) Len() int {
	return len(x.ids)
}

// staging buffers identifiers between commits in arrival order
type staging struct {
	index   *Index
	pending []string
	set     map[string]struct{}
}

func newStaging(index *Index) staging {
	return staging{index: index, set: make(map[string]struct{})}
}

func (s *staging) contains(id string) bool {
	if s.index.Contains(id) {
		return true
	}
	_, ok := s.set[id]
	return ok
}

func (s *staging) stage(id string) bool {
	if validID(id) != nil || s.contains(id) {
		return false
	}
	s.pending = append(s.pending, id)
	s.set[id] = struct{}{}
	return true
}

// promote moves the pending identifiers into the index after a durable write
func (s *staging) promote() {
	for _, id := range s.pending {
		s.index.Add(id)
	}
	s.pending = nil
	s.set = make(map[string]struct{})
}

// validID rejects identifiers that cannot round trip through a line based
// shard: empty, invalid UTF-8, whitespace or control characters.
func validID(id string) error {
	if id == "" {
		return fmt.Errorf("empty identifier")
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("identifier is not valid UTF-8")
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("identifier %q contains whitespace or control characters", id)
		}
	}
	return nil
}
