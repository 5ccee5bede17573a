package knownposts

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	likeerrors "likesync/pkg/errors"
	"likesync/pkg/logger"
	"likesync/pkg/storage"
)

const (
	indexFile    = "index.json"
	indexVersion = 1
)

var shardName = regexp.MustCompile(`^([1-9][0-9]*)\.txt$`)

type shardMeta struct {
	File  string `json:"file"`
	Count int    `json:"count"`
}

type shardIndex struct {
	Version  int         `json:"version"`
	Capacity int         `json:"capacity"`
	Shards   []shardMeta `json:"shards"`
}

// ShardStore keeps identifiers in capacity bounded text files, one
// identifier per line, named 1.txt, 2.txt, ... and filled in order.
// index.json records the shard count and sizes.
type ShardStore struct {
	dir      string
	capacity int
	logger   logger.Logger

	index  *Index
	shards []shardMeta
	staging

	// tornAt is the valid length of the last shard when its final line was
	// cut short by a crash; -1 when the shard is clean
	tornAt int64
	// dirty is set when index.json disagrees with the shard files
	dirty bool
}

// OpenShards loads every shard in dir into memory. A missing directory is
// an empty store. Shards that cannot be trusted fail with
// *errors.CorruptShardError and nothing is modified.
func OpenShards(dir string, capacity int, log logger.Logger) (*ShardStore, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("shard capacity must be positive, got %d", capacity)
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	index := NewIndex()
	s := &ShardStore{
		dir:      dir,
		capacity: capacity,
		logger:   log.WithField("component", "knownposts"),
		index:    index,
		staging:  newStaging(index),
		tornAt:   -1,
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	s.logger.DebugWithFields("Known posts loaded", map[string]interface{}{
		"dir":         dir,
		"shards":      len(s.shards),
		"identifiers": s.index.Len(),
		"capacity":    capacity,
	})
	return s, nil
}

func (s *ShardStore) load() error {
	recorded, err := s.readIndex()
	if err != nil {
		return err
	}

	files, err := s.listShards()
	if err != nil {
		return err
	}

	if recorded == nil && len(files) > 0 {
		s.logger.WarnWithFields("Shard index missing, rebuilding from files", map[string]interface{}{
			"dir":    s.dir,
			"shards": len(files),
		})
		s.dirty = true
	}
	if recorded != nil && recorded.Capacity != s.capacity && recorded.Capacity != 0 {
		s.logger.InfoWithFields("Shard capacity changed", map[string]interface{}{
			"previous": recorded.Capacity,
			"current":  s.capacity,
		})
		s.dirty = true
	}

	var indexed []shardMeta
	if recorded != nil {
		indexed = recorded.Shards
	}
	if len(indexed) > len(files) {
		missing := indexed[len(files)].File
		return &likeerrors.CorruptShardError{
			Path:   filepath.Join(s.dir, missing),
			Reason: "shard listed in index.json is missing",
		}
	}

	for i, name := range files {
		path := filepath.Join(s.dir, name)
		last := i == len(files)-1

		ids, validLen, torn, err := readShard(path)
		if err != nil {
			return err
		}
		if torn {
			if !last {
				return &likeerrors.CorruptShardError{Path: path, Line: len(ids) + 1, Reason: "incomplete final line in a full shard"}
			}
			s.logger.WarnWithFields("Dropping incomplete trailing identifier", map[string]interface{}{
				"shard": path,
			})
			s.tornAt = validLen
		}

		if i < len(indexed) {
			want := indexed[i]
			if want.File != name {
				return &likeerrors.CorruptShardError{Path: path, Reason: fmt.Sprintf("index.json expects %s at position %d", want.File, i+1)}
			}
			if len(ids) < want.Count {
				return &likeerrors.CorruptShardError{
					Path:   path,
					Reason: fmt.Sprintf("index.json records %d identifiers, file holds %d", want.Count, len(ids)),
				}
			}
			if len(ids) > want.Count {
				s.logger.WarnWithFields("Shard holds identifiers missing from index, keeping them", map[string]interface{}{
					"shard":   path,
					"indexed": want.Count,
					"found":   len(ids),
				})
				s.dirty = true
			}
		} else if recorded != nil {
			s.dirty = true
		}

		for n, id := range ids {
			if !s.index.Add(id) {
				return &likeerrors.CorruptShardError{Path: path, Line: n + 1, Reason: "duplicate identifier " + strconv.Quote(id)}
			}
		}

		s.shards = append(s.shards, shardMeta{File: name, Count: len(ids)})
	}

	return nil
}

func (s *ShardStore) readIndex() (*shardIndex, error) {
	path := filepath.Join(s.dir, indexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read shard index: %w", err)
	}

	var idx shardIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, &likeerrors.CorruptShardError{Path: path, Reason: err.Error()}
	}
	if idx.Version != indexVersion {
		return nil, &likeerrors.CorruptShardError{Path: path, Reason: fmt.Sprintf("unsupported index version %d", idx.Version)}
	}
	return &idx, nil
}

// listShards returns the shard file names in order and rejects gaps
func (s *ShardStore) listShards() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read shard directory: %w", err)
	}

	var nums []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := shardName.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}
	sort.Ints(nums)

	names := make([]string, len(nums))
	for i, n := range nums {
		if n != i+1 {
			return nil, &likeerrors.CorruptShardError{
				Path:   filepath.Join(s.dir, shardFile(i+1)),
				Reason: fmt.Sprintf("shard %d is missing but shard %d exists", i+1, n),
			}
		}
		names[i] = shardFile(n)
	}
	return names, nil
}

func shardFile(n int) string {
	return strconv.Itoa(n) + ".txt"
}

// readShard parses one shard. validLen is the byte length up to the last
// complete line; torn reports trailing bytes without a newline.
func readShard(path string) (ids []string, validLen int64, torn bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to read shard %s: %w", path, err)
	}

	complete := data
	if n := bytes.LastIndexByte(data, '\n'); n+1 < len(data) {
		torn = true
		complete = data[:n+1]
	}
	validLen = int64(len(complete))

	line := 0
	for len(complete) > 0 {
		n := bytes.IndexByte(complete, '\n')
		raw := string(complete[:n])
		complete = complete[n+1:]
		line++

		if err := validID(raw); err != nil {
			return nil, 0, false, &likeerrors.CorruptShardError{Path: path, Line: line, Reason: err.Error()}
		}
		ids = append(ids, raw)
	}

	return ids, validLen, torn, nil
}

// Contains reports whether id is committed or staged
func (s *ShardStore) Contains(id string) bool { return s.contains(id) }

// Stage buffers id for the next Commit
func (s *ShardStore) Stage(id string) bool { return s.stage(id) }

// Pending returns the number of staged identifiers
func (s *ShardStore) Pending() int { return len(s.pending) }

// Len returns the number of committed identifiers
func (s *ShardStore) Len() int { return s.index.Len() }

// Commit appends the staged identifiers to the current shard, opening the
// next shard whenever the current one reaches capacity, then rewrites
// index.json. The staged buffer is only cleared when every write succeeded.
func (s *ShardStore) Commit() (int, error) {
	if len(s.pending) == 0 && !s.dirty {
		return 0, nil
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return 0, &likeerrors.PersistWriteError{Path: s.dir, Op: "mkdir", Err: err}
	}

	if s.tornAt >= 0 {
		path := filepath.Join(s.dir, s.lastShardName())
		if err := os.Truncate(path, s.tornAt); err != nil {
			return 0, &likeerrors.PersistWriteError{Path: path, Op: "truncate", Err: err}
		}
		s.tornAt = -1
	}

	shards := append([]shardMeta(nil), s.shards...)
	var touched []shardMark
	remaining := s.pending
	for len(remaining) > 0 {
		if len(shards) == 0 || shards[len(shards)-1].Count >= s.capacity {
			shards = append(shards, shardMeta{File: shardFile(len(shards) + 1)})
		}
		current := &shards[len(shards)-1]

		n := s.capacity - current.Count
		if n > len(remaining) {
			n = len(remaining)
		}
		mark, err := s.markShard(current.File)
		if err != nil {
			s.rollback(touched)
			return 0, err
		}
		touched = append(touched, mark)
		if err := s.appendLines(current.File, remaining[:n]); err != nil {
			s.rollback(touched)
			return 0, err
		}
		current.Count += n
		remaining = remaining[n:]
	}

	if err := s.writeIndex(shards); err != nil {
		s.rollback(touched)
		return 0, err
	}

	written := len(s.pending)
	s.shards = shards
	s.dirty = false
	s.promote()

	s.logger.DebugWithFields("Known posts committed", map[string]interface{}{
		"written": written,
		"shards":  len(shards),
		"total":   s.index.Len(),
	})
	return written, nil
}

// shardMark is the size of a shard before a commit appended to it
type shardMark struct {
	path    string
	size    int64
	existed bool
}

func (s *ShardStore) markShard(name string) (shardMark, error) {
	path := filepath.Join(s.dir, name)
	info, err := os.Stat(path)
	switch {
	case err == nil:
		return shardMark{path: path, size: info.Size(), existed: true}, nil
	case os.IsNotExist(err):
		return shardMark{path: path}, nil
	default:
		return shardMark{}, &likeerrors.PersistWriteError{Path: path, Op: "stat", Err: err}
	}
}

// rollback cuts every shard touched by a failed commit back to its previous
// size, so a retried commit appends the same identifiers exactly once.
func (s *ShardStore) rollback(marks []shardMark) {
	for i := len(marks) - 1; i >= 0; i-- {
		m := marks[i]
		var err error
		if m.existed {
			err = os.Truncate(m.path, m.size)
		} else {
			err = os.Remove(m.path)
			if os.IsNotExist(err) {
				err = nil
			}
		}
		if err != nil {
			s.logger.ErrorWithFields("Failed to roll back shard after commit error", map[string]interface{}{
				"shard": m.path,
				"error": err.Error(),
			})
		}
	}
}

func (s *ShardStore) appendLines(name string, ids []string) error {
	path := filepath.Join(s.dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return &likeerrors.PersistWriteError{Path: path, Op: "open", Err: err}
	}

	w := bufio.NewWriter(file)
	for _, id := range ids {
		w.WriteString(id)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return &likeerrors.PersistWriteError{Path: path, Op: "write", Err: err}
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return &likeerrors.PersistWriteError{Path: path, Op: "sync", Err: err}
	}
	if err := file.Close(); err != nil {
		return &likeerrors.PersistWriteError{Path: path, Op: "close", Err: err}
	}
	return nil
}

func (s *ShardStore) lastShardName() string {
	if len(s.shards) == 0 {
		return ""
	}
	return s.shards[len(s.shards)-1].File
}

func (s *ShardStore) writeIndex(shards []shardMeta) error {
	path := filepath.Join(s.dir, indexFile)
	idx := shardIndex{Version: indexVersion, Capacity: s.capacity, Shards: shards}
	if idx.Shards == nil {
		idx.Shards = []shardMeta{}
	}

	err := storage.WriteAtomic(path, 0644, func(w io.Writer) error {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(idx)
	})
	if err != nil {
		return &likeerrors.PersistWriteError{Path: path, Op: "index", Err: err}
	}
	return nil
}

// Identifiers reads every shard in order
func (s *ShardStore) Identifiers() ([]string, error) {
	all := make([]string, 0, s.index.Len())
	for _, shard := range s.shards {
		ids, _, _, err := readShard(filepath.Join(s.dir, shard.File))
		if err != nil {
			return nil, err
		}
		all = append(all, ids...)
	}
	return all, nil
}

// Recent reads shards from the newest backwards
func (s *ShardStore) Recent(limit int) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	for i := len(s.shards) - 1; i >= 0; i-- {
		ids, _, _, err := readShard(filepath.Join(s.dir, s.shards[i].File))
		if err != nil {
			return nil, err
		}
		for j := len(ids) - 1; j >= 0; j-- {
			if _, ok := seen[ids[j]]; ok {
				continue
			}
			seen[ids[j]] = struct{}{}
			out = append(out, ids[j])
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// ShardCount returns the number of shard files
func (s *ShardStore) ShardCount() int { return len(s.shards) }

// Stats describes the shard layout
func (s *ShardStore) Stats() Stats {
	stats := Stats{
		Backend:     "shards",
		Identifiers: s.index.Len(),
		Capacity:    s.capacity,
	}
	for _, shard := range s.shards {
		stats.Shards = append(stats.Shards, ShardStat{File: shard.File, Count: shard.Count})
	}
	return stats
}

// Close releases nothing; shard files are closed after every commit
func (s *ShardStore) Close() error { return nil }
