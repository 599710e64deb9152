// Package buffer implements the flat buffer (§4.C): a bounded append-only
// region holding recently added vectors that have not yet been migrated into
// the HNSW graph. It is brute-force searchable with a bounded max-heap for
// early-exit top-k pruning, and never blocks — append fails closed with
// ErrFull once buffer_capacity is reached.
package buffer

import (
	"context"
	"errors"
	"sync"

	"github.com/omendb/omen/internal/kernel"
)

// ErrFull is returned by Append when the buffer is at capacity.
var ErrFull = errors.New("buffer: at capacity")

// state tracks a slot's lifecycle per the hybrid coordinator's state machine
// (§4.G): live (default), migrated (present in the graph too, kept
// resident and searchable), tombstoned (logically deleted).
type state uint8

const (
	stateLive state = iota
	stateMigrated
	stateTombstoned
)

type slot struct {
	internalIndex uint32
	vec           []float32
	st            state
}

// Buffer is the flat, fixed-capacity vector store.
type Buffer struct {
	mu       sync.RWMutex
	capacity int
	slots    []slot
	dist     kernel.Func

	// drainCursor tracks how far drain_unmigrated has scanned, so repeated
	// calls return batches in insertion order without rescanning from zero
	// every time.
	drainCursor int
}

// New creates a buffer with the given capacity and distance metric. Capacity
// must be at least 1024 per §4.C.
func New(capacity int, dist kernel.Func) *Buffer {
	if capacity < 1024 {
		capacity = 1024
	}
	return &Buffer{
		capacity: capacity,
		slots:    make([]slot, 0, capacity),
		dist:     dist,
	}
}

// Append adds vec under internalIndex, returning its slot number. O(1)
// amortized; fails with ErrFull rather than blocking once capacity slots
// sit at or past the drain cursor. Slots behind the cursor are migrated or
// tombstoned and no longer count against capacity.
func (b *Buffer) Append(internalIndex uint32, vec []float32) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.slots)-b.drainCursor >= b.capacity {
		return 0, ErrFull
	}
	cp := make([]float32, len(vec))
	copy(cp, vec)
	b.slots = append(b.slots, slot{internalIndex: internalIndex, vec: cp, st: stateLive})
	return len(b.slots) - 1, nil
}

// Len returns the number of occupied slots (including migrated/tombstoned).
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.slots)
}

// Capacity returns the buffer's fixed capacity.
func (b *Buffer) Capacity() int { return b.capacity }

// Get returns a copy of the vector stored at slot, or false if out of range
// or tombstoned.
func (b *Buffer) Get(slotNum int) ([]float32, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if slotNum < 0 || slotNum >= len(b.slots) {
		return nil, false
	}
	s := b.slots[slotNum]
	if s.st == stateTombstoned {
		return nil, false
	}
	out := make([]float32, len(s.vec))
	copy(out, s.vec)
	return out, true
}

// MarkMigrated sets the migrated bit for slot; the vector stays resident and
// searchable (it still counts toward "unmigrated" == false, but remains live
// for unfiltered brute-force search per §4.G: migrated entries stay
// BUFFER_AND_GRAPH).
func (b *Buffer) MarkMigrated(slotNum int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if slotNum >= 0 && slotNum < len(b.slots) {
		b.slots[slotNum].st = stateMigrated
	}
}

// Tombstone excludes slot from future searches without freeing memory.
func (b *Buffer) Tombstone(slotNum int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if slotNum >= 0 && slotNum < len(b.slots) {
		b.slots[slotNum].st = stateTombstoned
	}
}

// DrainItem is one entry returned by DrainUnmigrated.
type DrainItem struct {
	Slot          int
	InternalIndex uint32
	Vector        []float32
}

// DrainUnmigrated returns up to batchSize live (unmigrated, non-tombstoned)
// slots in insertion order. Slots remain searchable (they are not marked
// migrated here — the caller does that only after the graph insert commits).
func (b *Buffer) DrainUnmigrated(batchSize int) []DrainItem {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]DrainItem, 0, batchSize)
	for i := b.drainCursor; i < len(b.slots) && len(out) < batchSize; i++ {
		s := b.slots[i]
		if s.st == stateLive {
			vec := make([]float32, len(s.vec))
			copy(vec, s.vec)
			out = append(out, DrainItem{Slot: i, InternalIndex: s.internalIndex, Vector: vec})
		}
	}
	return out
}

// AdvanceDrainCursor moves the drain cursor forward to at least to, letting
// the caller skip re-scanning a prefix it has already durably migrated.
// Never moves the cursor backward.
func (b *Buffer) AdvanceDrainCursor(to int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if to > b.drainCursor {
		b.drainCursor = to
	}
}

// UnmigratedCount returns the number of slots still awaiting graph migration.
func (b *Buffer) UnmigratedCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, s := range b.slots {
		if s.st == stateLive {
			n++
		}
	}
	return n
}

// SearchTopK performs a brute-force scan with early-exit pruning via a
// bounded max-heap of size k. When filterUnindexed is true, only live
// (unmigrated) slots are scanned — used by the coordinator's search protocol
// step 2, which restricts the buffer pass to entries not yet in the graph.
func (b *Buffer) SearchTopK(ctx context.Context, query []float32, k int, filterUnindexed bool) ([]kernel.Candidate, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	heap := kernel.NewMaxHeap(k)
	for _, s := range b.slots {
		if s.st == stateTombstoned {
			continue
		}
		if filterUnindexed && s.st != stateLive {
			continue
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		d := b.dist(query, s.vec)
		heap.Offer(kernel.Candidate{ID: s.internalIndex, Distance: d})
	}
	return heap.Sorted(), nil
}

// InternalIndexAt returns the internal index stored at a given slot.
func (b *Buffer) InternalIndexAt(slotNum int) (uint32, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if slotNum < 0 || slotNum >= len(b.slots) {
		return 0, false
	}
	return b.slots[slotNum].internalIndex, true
}

// SlotRecord is one buffer slot's persisted shape, as returned by ForEach.
type SlotRecord struct {
	InternalIndex uint32
	Vector        []float32
	Migrated      bool
	Tombstoned    bool
}

// ForEach calls fn once per occupied slot, in slot order. Used by the
// persistence layer to snapshot buffer state.
func (b *Buffer) ForEach(fn func(SlotRecord)) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.slots {
		fn(SlotRecord{
			InternalIndex: s.internalIndex,
			Vector:        s.vec,
			Migrated:      s.st == stateMigrated,
			Tombstoned:    s.st == stateTombstoned,
		})
	}
}

// Restore appends a slot exactly as recorded, for snapshot recovery. Slots
// must be restored in their original order so slot numbers line up with
// DrainCursor.
func (b *Buffer) Restore(rec SlotRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := stateLive
	switch {
	case rec.Tombstoned:
		st = stateTombstoned
	case rec.Migrated:
		st = stateMigrated
	}
	b.slots = append(b.slots, slot{internalIndex: rec.InternalIndex, vec: rec.Vector, st: st})
}

// RestoreDrainCursor sets the drain cursor directly, for snapshot recovery.
func (b *Buffer) RestoreDrainCursor(at int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drainCursor = at
}

// DrainCursor returns the current drain cursor position, for snapshotting.
func (b *Buffer) DrainCursor() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.drainCursor
}
