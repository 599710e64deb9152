// Package iddir implements the external-id to internal-index mapping (§4.I):
// a purpose-built open-addressing hash table, not a plain Go map, since a map
// of string keys to uint32 carries far more than the ~50 bytes/entry target
// once bucket/hash overhead is counted.
package iddir

import (
	"bytes"

	"github.com/cespare/xxhash/v2"
)

const maxLoadFactor = 0.75

type entryState uint8

const (
	empty entryState = iota
	occupied
	deleted
)

type bucket struct {
	key   []byte
	index uint32
	state entryState
}

// Dir is an open-addressing hash table from external id bytes to a dense
// internal index, plus the inverse dense array required by §4.I so internal
// index -> external id is an O(1) array lookup.
type Dir struct {
	buckets []bucket
	count   int // occupied, excludes tombstoned deleted slots
	inverse [][]byte
}

// New creates a directory sized for at least capacityHint entries.
func New(capacityHint int) *Dir {
	size := nextPow2(int(float64(capacityHint)/maxLoadFactor) + 1)
	if size < 16 {
		size = 16
	}
	return &Dir{buckets: make([]bucket, size)}
}

func nextPow2(n int) int {
	p := 16
	for p < n {
		p *= 2
	}
	return p
}

func (d *Dir) hash(key []byte) uint64 { return xxhash.Sum64(key) }

// find returns the bucket index for key: either its occupied slot, or the
// first empty/deleted slot on its probe sequence where it would be inserted.
func (d *Dir) find(key []byte) (int, bool) {
	mask := uint64(len(d.buckets) - 1)
	h := d.hash(key)
	firstTomb := -1
	for i := uint64(0); i < uint64(len(d.buckets)); i++ {
		idx := (h + i) & mask
		b := &d.buckets[idx]
		switch b.state {
		case empty:
			if firstTomb >= 0 {
				return firstTomb, false
			}
			return int(idx), false
		case deleted:
			if firstTomb < 0 {
				firstTomb = int(idx)
			}
		case occupied:
			if bytes.Equal(b.key, key) {
				return int(idx), true
			}
		}
	}
	if firstTomb >= 0 {
		return firstTomb, false
	}
	return -1, false
}

func (d *Dir) grow() {
	old := d.buckets
	d.buckets = make([]bucket, len(old)*2)
	d.count = 0
	for _, b := range old {
		if b.state == occupied {
			d.insertNoGrow(b.key, b.index)
		}
	}
}

func (d *Dir) insertNoGrow(key []byte, index uint32) {
	idx, _ := d.find(key)
	d.buckets[idx] = bucket{key: key, index: index, state: occupied}
	d.count++
}

// Assign returns the internal index for key, creating one (via Put-like
// insertion) if key is not already present. The bool reports whether a new
// entry was created.
func (d *Dir) Assign(key []byte, next func() uint32) (uint32, bool) {
	if idx, ok := d.find(key); ok {
		return d.buckets[idx].index, false
	}
	if float64(d.count+1) > maxLoadFactor*float64(len(d.buckets)) {
		d.grow()
	}
	owned := append([]byte(nil), key...)
	internalIndex := next()
	idx, _ := d.find(owned)
	d.buckets[idx] = bucket{key: owned, index: internalIndex, state: occupied}
	d.count++
	for int(internalIndex) >= len(d.inverse) {
		d.inverse = append(d.inverse, nil)
	}
	d.inverse[internalIndex] = owned
	return internalIndex, true
}

// AssignFixed inserts key bound to a caller-chosen internal index, rather
// than allocating one from `next`. Used by the coordinator, which must
// reserve the internal index (and stage the flat-buffer slot under it)
// before committing the id-directory entry, so a failed buffer append never
// leaves a dangling directory entry (§7 P10: "index unmodified" on
// BufferFull).
func (d *Dir) AssignFixed(key []byte, internalIndex uint32) {
	if float64(d.count+1) > maxLoadFactor*float64(len(d.buckets)) {
		d.grow()
	}
	owned := append([]byte(nil), key...)
	idx, _ := d.find(owned)
	d.buckets[idx] = bucket{key: owned, index: internalIndex, state: occupied}
	d.count++
	for int(internalIndex) >= len(d.inverse) {
		d.inverse = append(d.inverse, nil)
	}
	d.inverse[internalIndex] = owned
}

// Lookup resolves an external id to its internal index.
func (d *Dir) Lookup(key []byte) (uint32, bool) {
	idx, ok := d.find(key)
	if !ok {
		return 0, false
	}
	return d.buckets[idx].index, true
}

// ExternalID resolves an internal index back to the original external id
// bytes (§I5: get must return the originally supplied bytes exactly).
func (d *Dir) ExternalID(internalIndex uint32) ([]byte, bool) {
	if int(internalIndex) >= len(d.inverse) || d.inverse[internalIndex] == nil {
		return nil, false
	}
	return d.inverse[internalIndex], true
}

// Delete removes key from the directory, tombstoning its bucket and clearing
// the inverse entry. The internal index itself is not reused by this package;
// the caller (coordinator) decides whether freed indices are recycled.
func (d *Dir) Delete(key []byte) (uint32, bool) {
	idx, ok := d.find(key)
	if !ok {
		return 0, false
	}
	internalIndex := d.buckets[idx].index
	d.buckets[idx] = bucket{state: deleted}
	d.count--
	if int(internalIndex) < len(d.inverse) {
		d.inverse[internalIndex] = nil
	}
	return internalIndex, true
}

// Len returns the number of live entries.
func (d *Dir) Len() int { return d.count }

// Entry is one (external id, internal index) pair as returned by Each.
type Entry struct {
	Key           []byte
	InternalIndex uint32
}

// Each calls fn once per live entry, in bucket order. Used by the
// persistence layer to snapshot the directory; callers must not mutate d
// from within fn.
func (d *Dir) Each(fn func(Entry)) {
	for _, b := range d.buckets {
		if b.state == occupied {
			fn(Entry{Key: b.key, InternalIndex: b.index})
		}
	}
}
