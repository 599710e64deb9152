// Package hnsw implements the HNSW engine (§4.E): hierarchical layer
// assignment, greedy descent, layer-wise search, and robust (α-RNG) neighbor
// pruning. The engine operates purely on internal node indices and a
// VectorSource; it owns no id mapping or persistence, which live in
// internal/iddir and internal/persist respectively.
package hnsw

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/omendb/omen/internal/graph"
	"github.com/omendb/omen/internal/kernel"
)

// VectorSource resolves an internal node index to its vector. The HNSW
// engine never owns vector storage directly so it can be reused unmodified
// by both the single-threaded path and the segmented builder (§4.F), which
// gives each segment its own storage.
type VectorSource interface {
	Vector(internalIndex uint32) []float32
}

// Config holds the engine's open-time parameters, fixed for the lifetime of
// the index (§4.E).
type Config struct {
	M              int
	Mmax0          int
	EfConstruction int
	EfSearch       int
	Seed           int64
	Alpha          float32 // robust-prune expansion factor, default 1.2
	Metric         kernel.Metric
}

// DefaultConfig fills in the spec's defaults.
func DefaultConfig() Config {
	m := 16
	return Config{
		M:              m,
		Mmax0:          2 * m,
		EfConstruction: 200,
		EfSearch:       50,
		Seed:           0,
		Alpha:          1.2,
		Metric:         kernel.L2,
	}
}

// Engine is the HNSW graph index. Safe for concurrent Search calls; Insert
// and Delete must be serialized by the caller (the hybrid coordinator's
// background worker is the sole writer under normal operation, §5).
type Engine struct {
	cfg   Config
	dist  kernel.Func
	store *graph.Store
	src   VectorSource

	mu sync.RWMutex // guards entryPoint/maxLevel/levelRNG; graph edges are store-internal

	levelRNG   *rand.Rand
	entryPoint uint32
	hasEntry   bool
	maxLevel   int

	nodeCount int64 // atomic
}

// New creates an empty engine backed by store and src.
func New(cfg Config, store *graph.Store, src VectorSource) *Engine {
	return &Engine{
		cfg:      cfg,
		dist:     kernel.Select(cfg.Metric),
		store:    store,
		src:      src,
		levelRNG: rand.New(rand.NewSource(cfg.Seed)),
	}
}

// NodeCount returns the number of nodes inserted (including tombstoned).
func (e *Engine) NodeCount() int { return int(atomic.LoadInt64(&e.nodeCount)) }

// EntryPoint returns the current entry point and whether one has been set.
func (e *Engine) EntryPoint() (uint32, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.entryPoint, e.hasEntry
}

// MaxLevel returns the current top layer of the graph.
func (e *Engine) MaxLevel() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.maxLevel
}

// RestoreState sets the entry point, top layer, and node count directly,
// bypassing normal insertion. Used only by snapshot recovery, after every
// node has already been installed into the backing store via graph.Store's
// own Restore.
func (e *Engine) RestoreState(entryPoint uint32, hasEntry bool, maxLevel int, nodeCount int64) {
	e.mu.Lock()
	e.entryPoint = entryPoint
	e.hasEntry = hasEntry
	e.maxLevel = maxLevel
	e.mu.Unlock()
	atomic.StoreInt64(&e.nodeCount, nodeCount)
}

// generateLevel samples L = floor(-ln(U(0,1]) / ln(M)), clamped to [0,32]
// (§4.E). The per-engine RNG is seeded deterministically so identical seed +
// insertion order reproduces identical topology (P6).
func (e *Engine) generateLevel() uint8 {
	u := e.levelRNG.Float64()
	for u <= 0 {
		u = e.levelRNG.Float64()
	}
	l := int(math.Floor(-math.Log(u) / math.Log(float64(e.cfg.M))))
	if l < 0 {
		l = 0
	}
	if l > 32 {
		l = 32
	}
	return uint8(l)
}

// layerCap returns the per-layer neighbor cap: Mmax0 at layer 0, M above.
func (e *Engine) layerCap(level int) int {
	if level == 0 {
		return e.cfg.Mmax0
	}
	return e.cfg.M
}

// Insert adds internalIndex (whose vector is resolved via src) to the graph,
// sampling its layer assignment via generateLevel.
// Inserting an already-present index is a caller error the coordinator is
// responsible for preventing via the id directory (§4.E "duplicate external
// id is a caller error").
func (e *Engine) Insert(ctx context.Context, internalIndex uint32) error {
	return e.insertAtLevel(ctx, internalIndex, e.generateLevel())
}

// InsertAtLevel inserts internalIndex with a pre-determined layer assignment
// rather than sampling one. It is used by the segmented builder's merge
// phase (§4.F step 2), where a node being grafted into the base segment's
// graph already has the max level it was assigned during its own segment's
// isolated build.
func (e *Engine) InsertAtLevel(ctx context.Context, internalIndex uint32, level uint8) error {
	return e.insertAtLevel(ctx, internalIndex, level)
}

func (e *Engine) insertAtLevel(ctx context.Context, internalIndex uint32, level uint8) error {
	vec := e.src.Vector(internalIndex)
	if vec == nil {
		return fmt.Errorf("hnsw: no vector for internal index %d", internalIndex)
	}
	e.store.AddNode(internalIndex, level)
	atomic.AddInt64(&e.nodeCount, 1)

	e.mu.Lock()
	if !e.hasEntry {
		e.entryPoint = internalIndex
		e.hasEntry = true
		e.maxLevel = int(level)
		e.mu.Unlock()
		return nil
	}
	entry := e.entryPoint
	top := e.maxLevel
	e.mu.Unlock()

	best := entry
	for l := top; l > int(level); l-- {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		cands := e.searchLayer(vec, best, 1, l)
		if len(cands) > 0 {
			best = cands[0].ID
		}
	}

	for l := min(int(level), top); l >= 0; l-- {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		cands := e.searchLayer(vec, best, e.cfg.EfConstruction, l)
		selected := e.robustPrune(vec, cands, e.layerCap(l))
		e.connectBidirectional(internalIndex, l, selected)
		if len(selected) > 0 {
			best = selected[0].ID
		}
	}

	if int(level) > top {
		e.mu.Lock()
		if int(level) > e.maxLevel {
			e.entryPoint = internalIndex
			e.maxLevel = int(level)
		}
		e.mu.Unlock()
	}
	return nil
}

// connectBidirectional wires internalIndex <-> each selected neighbor at
// layer l. Whenever a neighbor's resulting outdegree exceeds the layer cap,
// its neighbor set is re-pruned and the dropped edges removed on both sides
// (§4.E step 3).
func (e *Engine) connectBidirectional(internalIndex uint32, l int, selected []kernel.Candidate) {
	edges := make([]uint32, len(selected))
	for i, c := range selected {
		edges[i] = c.ID
	}
	e.store.SetEdges(internalIndex, l, edges)

	cap := e.layerCap(l)
	for _, c := range selected {
		n := e.store.AddEdge(c.ID, l, internalIndex)
		if n > cap {
			e.repruneNode(c.ID, l, cap)
		}
	}
}

// repruneNode reruns robust pruning on node's neighbor set at layer l,
// dropping edges on both sides that lose out.
func (e *Engine) repruneNode(node uint32, l int, cap int) {
	nodeVec := e.src.Vector(node)
	if nodeVec == nil {
		return
	}
	neighbors := e.store.Node(node).Edges(l)
	cands := make([]kernel.Candidate, len(neighbors))
	for i, nb := range neighbors {
		cands[i] = kernel.Candidate{ID: nb, Distance: e.dist(nodeVec, e.src.Vector(nb))}
	}
	sortCandidates(cands)
	kept := e.robustPrune(nodeVec, cands, cap)
	keptSet := make(map[uint32]bool, len(kept))
	edges := make([]uint32, len(kept))
	for i, c := range kept {
		edges[i] = c.ID
		keptSet[c.ID] = true
	}
	e.store.SetEdges(node, l, edges)
	for _, nb := range neighbors {
		if !keptSet[nb] {
			e.store.RemoveEdge(nb, l, node)
		}
	}
}

// sortCandidates sorts ascending by distance, breaking ties by lower
// internal index (§4.A/§4.E "equal-distance ties are broken by lower
// internal index").
func sortCandidates(c []kernel.Candidate) {
	less := func(a, b kernel.Candidate) bool {
		return a.Distance < b.Distance || (a.Distance == b.Distance && a.ID < b.ID)
	}
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && less(c[j], c[j-1]); j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

// Delete tombstones internalIndex. Its edges are left in place; no
// compaction pass removes them later.
func (e *Engine) Delete(internalIndex uint32) {
	e.store.Tombstone(internalIndex)
}
