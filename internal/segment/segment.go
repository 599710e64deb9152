// Package segment implements the segmented parallel builder (§4.F): bulk
// loads are partitioned into disjoint segments, each built by an isolated
// single-threaded hnsw.Engine with no shared mutable graph state, then merged
// by grafting every non-base segment's nodes into the largest segment's
// graph under a single-threaded merge phase. Parallel writers never touch a
// shared edge list; the only concurrency is segment-isolated construction.
package segment

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/omendb/omen/internal/graph"
	"github.com/omendb/omen/internal/hnsw"
)

// DefaultThreshold is the minimum input size (§4.F "N >= segment_threshold")
// below which a single-threaded build should be used instead.
const DefaultThreshold = 10000

// DefaultSegmentSize is the default target segment size.
const DefaultSegmentSize = 1000

// Plan computes the number of segments S = min(numCores, ceil(N/segmentSize)).
func Plan(n, segmentSize, numCores int) int {
	if segmentSize <= 0 {
		segmentSize = DefaultSegmentSize
	}
	if numCores <= 0 {
		numCores = runtime.NumCPU()
	}
	segs := (n + segmentSize - 1) / segmentSize
	if segs < 1 {
		segs = 1
	}
	if segs > numCores {
		segs = numCores
	}
	return segs
}

// Partition splits ids into numSegments contiguous, disjoint, roughly equal
// groups, preserving input order within each group.
func Partition(ids []uint32, numSegments int) [][]uint32 {
	if numSegments < 1 {
		numSegments = 1
	}
	out := make([][]uint32, 0, numSegments)
	n := len(ids)
	base := n / numSegments
	rem := n % numSegments
	start := 0
	for s := 0; s < numSegments; s++ {
		size := base
		if s < rem {
			size++
		}
		if size == 0 {
			continue
		}
		out = append(out, ids[start:start+size])
		start += size
	}
	return out
}

type built struct {
	ids    []uint32
	store  *graph.Store
	engine *hnsw.Engine
}

// Result is the merged output of a segmented build: the combined graph store
// and the engine wired to search it, ready to accept further single-threaded
// inserts via the hybrid coordinator.
type Result struct {
	Store  *graph.Store
	Engine *hnsw.Engine
}

// Build partitions ids into segments, constructs each segment's graph
// concurrently (bounded by errgroup to numCores), then merges them into one
// graph. src must resolve every id in ids; the same src is reused for every
// segment and for the merged engine since vectors are immutable during a
// bulk build.
func Build(ctx context.Context, cfg hnsw.Config, ids []uint32, src hnsw.VectorSource, segmentSize, numCores int) (*Result, error) {
	if len(ids) == 0 {
		store := graph.NewStore(1)
		return &Result{Store: store, Engine: hnsw.New(cfg, store, src)}, nil
	}

	numSegments := Plan(len(ids), segmentSize, numCores)
	partitions := Partition(ids, numSegments)

	segs := make([]*built, len(partitions))
	g, gctx := errgroup.WithContext(ctx)
	if numCores > 0 {
		g.SetLimit(numCores)
	}
	for i, part := range partitions {
		i, part := i, part
		g.Go(func() error {
			store := graph.NewStore(len(part))
			segCfg := cfg
			segCfg.Seed = cfg.Seed + int64(i) + 1 // distinct per-segment RNG stream
			engine := hnsw.New(segCfg, store, src)
			for _, id := range part {
				if err := engine.Insert(gctx, id); err != nil {
					return err
				}
			}
			segs[i] = &built{ids: part, store: store, engine: engine}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	baseIdx := 0
	for i := 1; i < len(segs); i++ {
		if len(segs[i].ids) > len(segs[baseIdx].ids) {
			baseIdx = i
		}
	}
	base := segs[baseIdx]
	baseResult := &Result{Store: base.store, Engine: base.engine}

	for i, s := range segs {
		if i == baseIdx {
			continue
		}
		if err := MergeInto(ctx, baseResult, s.store, s.ids); err != nil {
			return nil, err
		}
	}

	return baseResult, nil
}

// MergeInto grafts every id in ids (drawn from sourceStore, which carries
// each node's already-assigned max level) into base's graph, via the same
// greedy-descent + robust-prune + bidirectional-connect logic used by a
// normal insert (§4.F step 2: "robust-pruned bidirectional edge addition as
// in single-threaded insert"). Used both by Build's own merge phase and by
// callers merging one extra segment into an already-existing graph (e.g. a
// coordinator migrating one large drain batch via the segmented builder).
func MergeInto(ctx context.Context, base *Result, sourceStore *graph.Store, ids []uint32) error {
	for _, id := range ids {
		level := sourceStore.MaxLevel(id)
		if err := base.Engine.InsertAtLevel(ctx, id, level); err != nil {
			return err
		}
	}
	return nil
}
