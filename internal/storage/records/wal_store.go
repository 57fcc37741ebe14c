// Package records implements a keyed record store persisted in a WAL and replayed into memory on open.
package records

import (
	"encoding/json"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
)

const (
	segmentThreshold = 1000
	// segments are never rotated away: every record ever written must survive replay.
	maxSegments    = 1 << 20
	dirPermissions = 0o755
)

// ErrNotInitialized is returned by methods of a nil or closed store.
var ErrNotInitialized = errors.New("record store is not initialized")

// Store keeps the latest version of every record of type T keyed by id.
// Each Put appends the full record under "<prefix><id>"; replay keeps the last write per key.
type Store[T any] struct {
	mu      sync.RWMutex
	wal     *gowal.Wal
	prefix  string
	records map[string]T
	order   []string
}

// Open creates or replays a store under dir.
func Open[T any](dir, prefix string) (*Store[T], error) {
	if dir == "" {
		return nil, errors.New("record store dir is required")
	}
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, errors.Wrapf(err, "ensure record store dir %s", dir)
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           prefix,
		SegmentThreshold: segmentThreshold,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "init %s WAL", strings.TrimSuffix(prefix, "_"))
	}

	s := &Store[T]{
		wal:     wal,
		prefix:  prefix,
		records: make(map[string]T),
	}

	for msg := range wal.Iterator() {
		if !strings.HasPrefix(msg.Key, prefix) {
			continue
		}
		var rec T
		if err := json.Unmarshal(msg.Value, &rec); err != nil {
			_ = wal.Close()
			return nil, errors.Wrapf(err, "decode record %s", msg.Key)
		}
		s.remember(strings.TrimPrefix(msg.Key, prefix), rec)
	}

	return s, nil
}

// Put persists rec as the latest version of id.
func (s *Store[T]) Put(id string, rec T) error {
	if s == nil || s.wal == nil {
		return ErrNotInitialized
	}
	if id == "" {
		return errors.New("record id is required")
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(nextIndex, s.prefix+id, payload); err != nil {
		return errors.Wrapf(err, "write record %s", id)
	}
	s.remember(id, rec)
	return nil
}

// Get returns the latest version of id.
func (s *Store[T]) Get(id string) (T, bool, error) {
	var zero T
	if s == nil || s.wal == nil {
		return zero, false, ErrNotInitialized
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	return rec, ok, nil
}

// List returns records in first-write order, filtered by keep when it is not nil.
func (s *Store[T]) List(keep func(T) bool) ([]T, error) {
	if s == nil || s.wal == nil {
		return nil, ErrNotInitialized
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]T, 0, len(s.order))
	for _, id := range s.order {
		rec := s.records[id]
		if keep == nil || keep(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Keys returns all ids in lexical order.
func (s *Store[T]) Keys() []string {
	if s == nil {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := append([]string(nil), s.order...)
	sort.Strings(keys)
	return keys
}

// Close closes the underlying WAL.
func (s *Store[T]) Close() error {
	if s == nil || s.wal == nil {
		return ErrNotInitialized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}

// remember must be called with mu held or before the store is shared.
func (s *Store[T]) remember(id string, rec T) {
	if _, ok := s.records[id]; !ok {
		s.order = append(s.order, id)
	}
	s.records[id] = rec
}
