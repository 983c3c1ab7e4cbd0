// Package feed maintains the shared price table and the streaming ingestion
// worker that keeps it fresh.
package feed

import (
	"sync"

	"coinpilot/internal/domain"
)

// PriceTable maps instrument symbol to its latest price snapshot.
//
// Single-writer, multiple-reader: only the ingestion Feed writes, everyone
// else reads. Entries are last-write-wins per symbol with no cross-key
// guarantees; staleness is bounded by feed latency and reconnect pauses,
// which is acceptable because readers treat prices as advisory.
type PriceTable struct {
	mu    sync.RWMutex
	snaps map[string]domain.PriceSnapshot
}

// NewPriceTable creates an empty price table.
func NewPriceTable() *PriceTable {
	return &PriceTable{snaps: make(map[string]domain.PriceSnapshot)}
}

// Put stores the latest snapshot for its symbol. Called only by the Feed.
func (t *PriceTable) Put(snap domain.PriceSnapshot) {
	t.mu.Lock()
	t.snaps[snap.Symbol] = snap
	t.mu.Unlock()
}

// Get returns the latest snapshot for the symbol.
func (t *PriceTable) Get(symbol string) (domain.PriceSnapshot, bool) {
	t.mu.RLock()
	snap, ok := t.snaps[symbol]
	t.mu.RUnlock()
	return snap, ok
}

// Len returns the number of tracked symbols.
func (t *PriceTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.snaps)
}

// Snapshot returns a copy of all tracked snapshots.
func (t *PriceTable) Snapshot() []domain.PriceSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]domain.PriceSnapshot, 0, len(t.snaps))
	for _, snap := range t.snaps {
		out = append(out, snap)
	}
	return out
}
