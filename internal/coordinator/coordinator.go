// Package coordinator implements the hybrid coordinator (§4.G): it routes
// writes through the id directory and flat buffer, asynchronously drains
// buffered vectors into the HNSW graph (using the segmented builder for
// large batches), and merges graph + buffer results on search.
package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omendb/omen/internal/buffer"
	"github.com/omendb/omen/internal/graph"
	"github.com/omendb/omen/internal/hnsw"
	"github.com/omendb/omen/internal/iddir"
	"github.com/omendb/omen/internal/kernel"
	"github.com/omendb/omen/internal/obs"
	"github.com/omendb/omen/internal/persist"
	"github.com/omendb/omen/internal/quant"
)

// Result is one search hit: an external id and its distance to the query.
type Result struct {
	ID       []byte
	Distance float32
}

// Stats mirrors the host API's `stats(handle)` shape (§6).
type Stats struct {
	NodeCount       int
	BufferCount     int
	Tombstones      int
	MemoryBytes     int64
	EntryPointLevel int
}

// Coordinator is the state machine described in §4.G: every entry moves
// ∅ -> BUFFER_ONLY -> BUFFER_AND_GRAPH (migrated), driven by a single
// background drain worker. There is no compaction pass, so no entry reaches
// GRAPH_ONLY: migrated slots stay resident in the flat buffer.
type Coordinator struct {
	cfg  Config
	dist kernel.Func
	quantizer quant.Quantizer

	dir   *iddir.Dir
	dirMu sync.RWMutex // guards all iddir access; iddir itself is not internally synchronized

	vecs  *vectorStore
	buf   *buffer.Buffer
	store *graph.Store
	engine *hnsw.Engine

	slotByIndex   map[uint32]int
	slotByIndexMu sync.Mutex

	nextIndex uint32 // atomic

	tombstones int64 // atomic

	metrics *obs.Metrics

	log     *persist.AppendLog // nil when cfg.Path == "" (persistence disabled)
	breaker *obs.CircuitBreaker // guards snapshot I/O against transient disk pressure

	workerAlive   int32 // atomic bool
	lastSnapshot  atomic.Value // time.Time
	stopOnce      sync.Once
	stopCh        chan struct{}
	workerDone    chan struct{}
	triggerCh     chan struct{}
	drainMu       sync.Mutex // serializes all drain activity (worker and Flush)
}

// New opens a coordinator with the given configuration, starting its
// background drain worker immediately.
func New(cfg Config) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	q, err := quant.New(cfg.Dimension, &cfg.Quantization)
	if err != nil {
		return nil, newError(ConfigInvalid, "%v", err)
	}

	dist := kernel.Select(cfg.Metric)
	vecs := newVectorStore()
	store := graph.NewStore(1024)
	engine := hnsw.New(cfg.hnswConfig(), store, vecs)

	c := &Coordinator{
		cfg:         cfg,
		dist:        dist,
		quantizer:   q,
		dir:         iddir.New(1024),
		vecs:        vecs,
		buf:         buffer.New(cfg.BufferCapacity, dist),
		store:       store,
		engine:      engine,
		slotByIndex: make(map[uint32]int),
		metrics:     obs.NewMetrics(),
		breaker:     obs.NewCircuitBreaker(obs.DefaultCircuitBreakerConfig("persistence")),
		stopCh:      make(chan struct{}),
		workerDone:  make(chan struct{}),
		triggerCh:   make(chan struct{}, 1),
	}
	log, err := c.openPersistence()
	if err != nil {
		return nil, err
	}
	c.log = log

	atomic.StoreInt32(&c.workerAlive, 1)
	go c.drainLoop()
	return c, nil
}

// Add assigns an internal index to id, stages vec in the flat buffer, and
// returns immediately without touching the graph (§4.G insertion protocol
// steps 1-3).
func (c *Coordinator) Add(id []byte, vec []float32) error {
	if len(vec) != c.cfg.Dimension {
		return newError(DimensionMismatch, "expected dimension %d, got %d", c.cfg.Dimension, len(vec))
	}

	// The id directory's lock is held across the buffer append too (not just
	// the lookup/reserve), since Append never blocks (§4.C: O(1), fails
	// closed) — this keeps duplicate detection and the BufferFull rollback
	// atomic without ever taking the graph lock (§5). It is released before
	// the log append below: that append fsyncs (persist.AppendLog.Append),
	// and an fsync is unbounded disk I/O, not the "short lock" per-call APIs
	// are allowed to block on (§7) — holding dirMu across it would stall
	// every concurrent Add/Get for the fsync's duration. A log append
	// failure here is returned as IOFailed after the entry is already live
	// in the directory/buffer/vector store; the entry is the durability
	// gap, not a correctness one (Get/Search still see it).
	c.dirMu.Lock()
	if _, exists := c.dir.Lookup(id); exists {
		c.dirMu.Unlock()
		return newError(DuplicateId, "id already present")
	}
	internalIndex := atomic.AddUint32(&c.nextIndex, 1) - 1

	slot, err := c.buf.Append(internalIndex, vec)
	if err != nil {
		c.dirMu.Unlock()
		c.metrics.BufferFullRejects.Inc()
		return newError(BufferFull, "flat buffer at capacity")
	}
	c.dir.AssignFixed(id, internalIndex)
	c.vecs.Set(internalIndex, vec)
	c.dirMu.Unlock()

	c.slotByIndexMu.Lock()
	c.slotByIndex[internalIndex] = slot
	c.slotByIndexMu.Unlock()

	if c.log != nil {
		if err := c.log.Append(persist.OpAdd, internalIndex, persist.EncodeAdd(id, vec)); err != nil {
			return newError(IOFailed, "append log: %v", err)
		}
	}

	c.metrics.VectorInserts.Inc()
	c.metrics.BufferDepth.Set(float64(c.buf.UnmigratedCount()))

	if c.buf.UnmigratedCount() >= c.cfg.DrainBatch {
		select {
		case c.triggerCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// BatchEntry is one (id, vector) pair submitted to AddBatch.
type BatchEntry struct {
	ID  []byte
	Vec []float32
}

// AddBatch applies Add to every entry in order, atomic per entry (§6
// `add_batch`: one entry's failure does not roll back or block any other
// entry). The returned slice has the same length and order as entries.
func (c *Coordinator) AddBatch(entries []BatchEntry) []error {
	results := make([]error, len(entries))
	for i, e := range entries {
		results[i] = c.Add(e.ID, e.Vec)
	}
	return results
}

// Get returns the verbatim original vector for id (P1).
func (c *Coordinator) Get(id []byte) ([]float32, error) {
	c.dirMu.RLock()
	idx, ok := c.dir.Lookup(id)
	c.dirMu.RUnlock()
	if !ok {
		return nil, newError(NotFound, "unknown id")
	}
	vec := c.vecs.Get(idx)
	if vec == nil {
		return nil, newError(NotFound, "unknown id")
	}
	return vec, nil
}

// Delete tombstones id everywhere it may appear (buffer slot and/or graph
// node). Nothing is physically removed; there is no compaction pass.
func (c *Coordinator) Delete(id []byte) error {
	c.dirMu.Lock()
	idx, ok := c.dir.Delete(id)
	c.dirMu.Unlock()
	if !ok {
		return newError(NotFound, "unknown id")
	}

	if c.log != nil {
		if err := c.log.Append(persist.OpDelete, idx, persist.EncodeDelete(id)); err != nil {
			return newError(IOFailed, "append log: %v", err)
		}
	}

	c.slotByIndexMu.Lock()
	slot, hasSlot := c.slotByIndex[idx]
	delete(c.slotByIndex, idx)
	c.slotByIndexMu.Unlock()
	if hasSlot {
		c.buf.Tombstone(slot)
	}
	c.engine.Delete(idx)
	c.vecs.Delete(idx)
	atomic.AddInt64(&c.tombstones, 1)
	c.metrics.VectorTombstones.Inc()
	return nil
}

// Search implements the §4.G search protocol: graph search on the indexed
// prefix, flat-buffer brute force on the unindexed suffix, merged and
// deduped by internal index taking the minimum distance.
func (c *Coordinator) Search(ctx context.Context, query []float32, k int, ef int, includeBuffer bool) ([]Result, error) {
	start := time.Now()
	c.metrics.SearchQueries.Inc()
	defer func() { c.metrics.SearchLatency.Observe(time.Since(start).Seconds()) }()

	if len(query) != c.cfg.Dimension {
		c.metrics.SearchErrors.Inc()
		return nil, newError(DimensionMismatch, "expected dimension %d, got %d", c.cfg.Dimension, len(query))
	}
	if ef <= 0 {
		ef = c.cfg.EfSearch
	}
	if ef < k {
		ef = k
	}

	best := make(map[uint32]float32)
	if c.engine.NodeCount() > 0 {
		for _, cand := range c.engine.Search(ctx, query, k, ef) {
			if d, ok := best[cand.ID]; !ok || cand.Distance < d {
				best[cand.ID] = cand.Distance
			}
		}
	}
	if includeBuffer && c.buf.UnmigratedCount() > 0 {
		bufCands, err := c.buf.SearchTopK(ctx, query, k, true)
		if err != nil {
			c.metrics.SearchErrors.Inc()
			return nil, newError(Cancelled, "%v", err)
		}
		for _, cand := range bufCands {
			if d, ok := best[cand.ID]; !ok || cand.Distance < d {
				best[cand.ID] = cand.Distance
			}
		}
	}

	merged := make([]kernel.Candidate, 0, len(best))
	for id, d := range best {
		merged = append(merged, kernel.Candidate{ID: id, Distance: d})
	}
	sortCandidatesAscending(merged)
	if len(merged) > k {
		merged = merged[:k]
	}

	c.dirMu.RLock()
	defer c.dirMu.RUnlock()
	out := make([]Result, 0, len(merged))
	for _, cand := range merged {
		extID, ok := c.dir.ExternalID(cand.ID)
		if !ok {
			continue
		}
		out = append(out, Result{ID: extID, Distance: cand.Distance})
	}
	return out, nil
}

// sortCandidatesAscending sorts ascending by distance, breaking ties by
// lower internal index (§4.A/§4.E).
func sortCandidatesAscending(c []kernel.Candidate) {
	less := func(a, b kernel.Candidate) bool {
		return a.Distance < b.Distance || (a.Distance == b.Distance && a.ID < b.ID)
	}
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && less(c[j], c[j-1]); j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

// Flush synchronously drains every unmigrated entry into the graph, then
// snapshots if persistence is configured (§6 `flush`: "drains buffer
// synchronously and snapshots").
func (c *Coordinator) Flush(ctx context.Context) error {
	c.drainMu.Lock()
	for c.buf.UnmigratedCount() > 0 {
		if err := c.drainOnce(ctx, c.buf.UnmigratedCount()); err != nil {
			c.drainMu.Unlock()
			return err
		}
	}
	c.drainMu.Unlock()

	if c.cfg.Path == "" {
		return nil
	}
	return c.Snapshot()
}

// Stats reports the host API's stats() shape.
func (c *Coordinator) Stats() Stats {
	return Stats{
		NodeCount:       c.engine.NodeCount(),
		BufferCount:     c.buf.UnmigratedCount(),
		Tombstones:      int(atomic.LoadInt64(&c.tombstones)),
		MemoryBytes:     c.estimateMemoryBytes(),
		EntryPointLevel: c.engine.MaxLevel(),
	}
}

// estimateMemoryBytes reports the per-vector storage cost (§8 scenario 5:
// "stats.memory_bytes for encoded storage ... 100,000 x (128 + 8)"): each
// graph-resident entry costs the quantizer's CodeSize when quantization is
// configured, or 4 bytes/dimension uncompressed; each still-buffered entry
// is always uncompressed (§4.C flat buffer has no quantized path). This
// excludes graph adjacency and the verbatim original-vector store every
// entry keeps regardless of quantization (§3 P1 requires exact Get results
// independent of this budget line) — scenario 5's bound is only satisfiable
// if memory_bytes tracks vector payload size, not total index footprint.
func (c *Coordinator) estimateMemoryBytes() int64 {
	nodeCount := int64(c.engine.NodeCount())
	bufCount := int64(c.buf.UnmigratedCount())
	dimBytes := int64(c.cfg.Dimension) * 4

	vectorBytes := dimBytes
	if c.cfg.Quantization.Type != quant.None {
		vectorBytes = int64(c.quantizer.CodeSize())
	}
	return nodeCount*vectorBytes + bufCount*dimBytes
}

// Close stops the background worker, blocking until it acknowledges (§4.G
// cancellation: "a pending close blocks until the worker acknowledges").
func (c *Coordinator) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.workerDone
	atomic.StoreInt32(&c.workerAlive, 0)
	if c.log != nil {
		c.log.Close()
	}
}

// BufferFillRatio, DrainWorkerAlive, and LastSnapshotAge implement
// obs.Prober so the health checker can assess this coordinator without obs
// importing this package.
func (c *Coordinator) BufferFillRatio() float64 {
	return float64(c.buf.UnmigratedCount()) / float64(c.buf.Capacity())
}

func (c *Coordinator) DrainWorkerAlive() bool {
	return atomic.LoadInt32(&c.workerAlive) == 1
}

func (c *Coordinator) LastSnapshotAge() (float64, bool) {
	v := c.lastSnapshot.Load()
	if v == nil {
		return 0, false
	}
	return time.Since(v.(time.Time)).Seconds(), true
}

// NoteSnapshot records that a snapshot just completed, for health reporting.
func (c *Coordinator) NoteSnapshot(at time.Time) { c.lastSnapshot.Store(at) }
