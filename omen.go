// Package omen implements OMEN, an embedded approximate-nearest-neighbor
// vector index: a hybrid flat-buffer-plus-HNSW-graph structure with
// optional quantization and on-disk persistence (§2 SYSTEM OVERVIEW).
//
// Index is the host API's handle (§6): open it with Open, mutate it with
// Add/AddBatch/Delete, query it with Search, and make it durable with Flush
// or Snapshot.
package omen

import (
	"context"

	"github.com/omendb/omen/internal/coordinator"
	"github.com/omendb/omen/internal/obs"
)

// Index is a single open vector index (§9 "explicit handle over singleton").
type Index struct {
	c      *coordinator.Coordinator
	health *obs.HealthChecker
}

// Open creates or recovers an index per cfg (§6 `open(config)`). If
// cfg.Path names an existing persisted index, its state is recovered before
// Open returns.
func Open(cfg Config) (*Index, error) {
	c, err := coordinator.New(cfg)
	if err != nil {
		return nil, err
	}
	return &Index{c: c, health: obs.NewHealthChecker(c)}, nil
}

// Add inserts vec under id (§6 `add`). It returns DuplicateId if id is
// already live, DimensionMismatch if len(vec) != cfg.Dimension, and
// BufferFull if the flat buffer is at capacity and the background worker
// has not yet caught up.
func (idx *Index) Add(id []byte, vec []float32) error {
	return idx.c.Add(id, vec)
}

// BatchEntry is one (id, vector) pair submitted to AddBatch.
type BatchEntry = coordinator.BatchEntry

// AddBatch applies Add to every entry in order and is atomic per entry
// (§6 `add_batch`): one entry's failure never rolls back or blocks any
// other entry in the batch. The returned slice has entries' length and
// order, one error (or nil) per entry.
func (idx *Index) AddBatch(entries []BatchEntry) []error {
	return idx.c.AddBatch(entries)
}

// Get returns the exact bytes supplied to Add for id (P1), or NotFound.
func (idx *Index) Get(id []byte) ([]float32, error) {
	return idx.c.Get(id)
}

// Delete tombstones id (§6 `delete`): Get and Search stop returning it at
// once. Its buffer slot and graph node are not reclaimed; there is no
// compaction pass.
func (idx *Index) Delete(id []byte) error {
	return idx.c.Delete(id)
}

// SearchOptions carries search()'s optional parameters (§6): Ef overrides
// cfg.EfSearch for this call when positive, and IncludeBuffer folds the
// unindexed buffer suffix into the result via brute force. The spec's
// `deadline` option is just ctx's deadline — Go already has a type for that.
type SearchOptions struct {
	Ef            int
	IncludeBuffer bool
}

// Search returns up to k nearest neighbors to query, nearest first (§6
// `search`).
func (idx *Index) Search(ctx context.Context, query []float32, k int, opts SearchOptions) ([]Result, error) {
	return idx.c.Search(ctx, query, k, opts.Ef, opts.IncludeBuffer)
}

// Flush drains the flat buffer into the graph synchronously and, when the
// index is opened with a Path, snapshots it (§6 `flush`).
func (idx *Index) Flush(ctx context.Context) error {
	return idx.c.Flush(ctx)
}

// Snapshot writes a full point-in-time image to cfg.Path and truncates the
// append log. Returns ConfigInvalid if the index was opened without a Path.
func (idx *Index) Snapshot() error {
	return idx.c.Snapshot()
}

// Stats reports the host API's stats() shape (§6).
func (idx *Index) Stats() Stats {
	return idx.c.Stats()
}

// Health runs the standard set of liveness checks (buffer fill, drain
// worker, snapshot age) against this index.
func (idx *Index) Health(ctx context.Context) (*obs.HealthStatus, error) {
	return idx.health.Check(ctx)
}

// Close stops the background drain worker and releases any open
// persistence files, blocking until both complete (§6 `close`).
func (idx *Index) Close() {
	idx.c.Close()
}
