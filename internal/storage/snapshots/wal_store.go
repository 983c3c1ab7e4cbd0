// Package snapshots persists control loop status snapshots in a WAL so the
// web layer can stream them incrementally and survive restarts.
package snapshots

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"coinpilot/internal/domain"
)

const (
	defaultSnapshotDir   = "./wal/status"
	snapshotSegmentLimit = 1000
	snapshotMaxSegments  = 100
	snapshotKeyPrefix    = "status_snapshot_"
)

// Record pairs a snapshot with its WAL index for incremental streaming.
type Record struct {
	Index    uint64                `json:"index"`
	Snapshot domain.StatusSnapshot `json:"snapshot"`
}

// WALStore is a WAL-backed status snapshot store.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed snapshot store under the provided directory.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultSnapshotDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "snapshot_",
		SegmentThreshold: snapshotSegmentLimit,
		MaxSegments:      snapshotMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init status snapshot WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Save appends the snapshot to the WAL.
func (s *WALStore) Save(snapshot domain.StatusSnapshot) error {
	if s == nil || s.wal == nil {
		return errors.New("status snapshot store is not initialized")
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "marshal status snapshot")
	}

	key := fmt.Sprintf("%s%s", snapshotKeyPrefix, snapshot.At.Format("20060102T150405.000"))

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, key, payload)
}

// Latest returns the most recent snapshot, if any.
func (s *WALStore) Latest() (domain.StatusSnapshot, bool, error) {
	if s == nil || s.wal == nil {
		return domain.StatusSnapshot{}, false, errors.New("status snapshot store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for idx := s.wal.CurrentIndex(); idx > 0; idx-- {
		key, payload, err := s.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, snapshotKeyPrefix) {
			continue
		}
		var snapshot domain.StatusSnapshot
		if err := json.Unmarshal(payload, &snapshot); err != nil {
			return domain.StatusSnapshot{}, false, errors.Wrap(err, "decode status snapshot")
		}
		return snapshot, true, nil
	}

	return domain.StatusSnapshot{}, false, nil
}

// SnapshotsAfter returns all snapshots written after the provided WAL index.
func (s *WALStore) SnapshotsAfter(index uint64) ([]Record, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("status snapshot store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]Record, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, snapshotKeyPrefix) {
			continue
		}
		var snapshot domain.StatusSnapshot
		if err := json.Unmarshal(payload, &snapshot); err != nil {
			return nil, errors.Wrap(err, "decode status snapshot")
		}
		records = append(records, Record{Index: idx, Snapshot: snapshot})
	}

	return records, nil
}

// CurrentIndex returns the latest WAL index stored.
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
		return errors.New("status snapshot store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
