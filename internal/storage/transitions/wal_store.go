// Package transitions keeps an append-only log of state-machine transitions for streaming and audit.
package transitions

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/remit/internal/domain"
)

const (
	// DefaultDir default location of the transition log.
	DefaultDir     = "./wal/transitions"
	segmentLimit   = 1000
	maxSegments    = 1 << 20
	eventKeyPrefix = "transition_"
)

// WALStore persists transition events in a WAL.
type WALStore struct {
	wal     *gowal.Wal
	mu      sync.RWMutex
	records []domain.TransitionEventRecord
}

// NewWALStore initializes a WAL-backed transition log under dir and replays existing events.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create transition log dir")
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "transition_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init transition WAL")
	}

	s := &WALStore{wal: wal}
	var idx uint64
	for msg := range wal.Iterator() {
		idx++
		if !strings.HasPrefix(msg.Key, eventKeyPrefix) {
			continue
		}
		var event domain.TransitionEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			_ = wal.Close()
			return nil, errors.Wrap(err, "decode transition event")
		}
		s.records = append(s.records, domain.TransitionEventRecord{Index: idx, Event: event})
	}

	return s, nil
}

// Save appends the event to the WAL.
func (s *WALStore) Save(event domain.TransitionEvent) error {
	if s == nil || s.wal == nil {
		return errors.New("transition store is not initialized")
	}
	if event.EntityID == "" {
		return fmt.Errorf("transition event entity id is required")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal transition event")
	}

	key := fmt.Sprintf("%s%s_%s", eventKeyPrefix, event.Machine, event.EntityID)

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(nextIndex, key, payload); err != nil {
		return errors.Wrap(err, "write transition event")
	}
	s.records = append(s.records, domain.TransitionEventRecord{Index: nextIndex, Event: event})
	return nil
}

// EventsAfter returns all events written after the provided index.
func (s *WALStore) EventsAfter(index uint64) ([]domain.TransitionEventRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("transition store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.TransitionEventRecord, 0)
	for _, rec := range s.records {
		if rec.Index > index {
			out = append(out, rec)
		}
	}
	return out, nil
}

// History returns every event of one entity in write order.
func (s *WALStore) History(machine domain.Machine, entityID string) []domain.TransitionEvent {
	if s == nil {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.TransitionEvent
	for _, rec := range s.records {
		if rec.Event.Machine == machine && rec.Event.EntityID == entityID {
			out = append(out, rec.Event)
		}
	}
	return out
}

// CurrentIndex returns the latest index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("transition store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
