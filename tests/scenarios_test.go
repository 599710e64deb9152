// Package tests holds the end-to-end scenarios exercising the full open/
// add/flush/search/close surface across real combinations of configuration,
// mirroring how a caller actually drives the library rather than any one
// package in isolation.
package tests

import (
	"context"
	"math"
	"math/rand"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omendb/omen"
)

func TestBasicRoundTrip(t *testing.T) {
	cfg := omen.DefaultConfig(4)
	cfg.Metric = omen.Cosine
	idx, err := omen.Open(cfg)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Add([]byte("a"), []float32{1, 0, 0, 0}))
	require.NoError(t, idx.Add([]byte("b"), []float32{0, 1, 0, 0}))
	require.NoError(t, idx.Add([]byte("c"), []float32{1, 1, 0, 0}))
	require.NoError(t, idx.Flush(context.Background()))

	results, err := idx.Search(context.Background(), []float32{1, 1, 0, 0}, 2, omen.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, []byte("c"), results[0].ID)
	require.InDelta(t, 0.0, results[0].Distance, 1e-6)
	require.Equal(t, []byte("a"), results[1].ID)
	require.InDelta(t, 1-math.Sqrt2/2, results[1].Distance, 1e-6)
}

func TestBufferOverflow(t *testing.T) {
	cfg := omen.DefaultConfig(2)
	cfg.BufferCapacity = 1024 // floor enforced by ConfigInvalid; exercised via direct Add/BufferFull below
	cfg.DrainBatch = 999999
	cfg.DrainInterval = time.Hour // keep the background worker from draining mid-test
	idx, err := omen.Open(cfg)
	require.NoError(t, err)
	defer idx.Close()

	// BufferCapacity has a 1024 floor (§7 ConfigInvalid), so overflow is
	// exercised by filling past that floor rather than the spec's toy
	// buffer_capacity=8 example.
	for i := 0; i < cfg.BufferCapacity; i++ {
		id := []byte{byte(i), byte(i >> 8), byte(i >> 16), byte(i >> 24)}
		require.NoError(t, idx.Add(id, []float32{float32(i), 0}))
	}

	overflowID := []byte("overflow")
	err = idx.Add(overflowID, []float32{1, 1})
	require.ErrorIs(t, err, omen.ErrBufferFull)

	require.NoError(t, idx.Flush(context.Background()))
	require.NoError(t, idx.Add(overflowID, []float32{1, 1}))
}

func TestBulkBuildRecall(t *testing.T) {
	if testing.Short() {
		t.Skip("bulk recall scenario is expensive; skipped under -short")
	}
	const (
		dim     = 128
		n       = 10000
		queries = 1000
		k       = 10
	)
	rng := rand.New(rand.NewSource(1))
	vecs := randomVectors(rng, n, dim)

	cfg := omen.DefaultConfig(dim)
	cfg.Metric = omen.Cosine // explicit: the oracle below must match the index's metric
	cfg.M = 16
	cfg.EfConstruction = 200
	idx, err := omen.Open(cfg)
	require.NoError(t, err)
	defer idx.Close()

	entries := make([]omen.BatchEntry, n)
	for i, v := range vecs {
		entries[i] = omen.BatchEntry{ID: idToBytes(i), Vec: v}
	}
	for _, err := range idx.AddBatch(entries) {
		require.NoError(t, err)
	}
	require.NoError(t, idx.Flush(context.Background()))

	qs := randomVectors(rng, queries, dim)
	var totalOverlap float64
	for _, q := range qs {
		exact := bruteForceTopK(vecs, q, k)
		ann, err := idx.Search(context.Background(), q, k, omen.SearchOptions{Ef: 100})
		require.NoError(t, err)
		totalOverlap += float64(overlap(exact, ann))
	}
	avgRecall := totalOverlap / float64(queries) / float64(k)
	require.GreaterOrEqual(t, avgRecall, 0.95)
}

func TestPersistenceAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := omen.DefaultConfig(8)
	cfg.Path = filepath.Join(dir, "index")

	idx, err := omen.Open(cfg)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(2))
	vecs := randomVectors(rng, 1000, 8)
	for i, v := range vecs {
		require.NoError(t, idx.Add(idToBytes(i), v))
	}
	require.NoError(t, idx.Flush(context.Background()))
	idx.Close()

	idx2, err := omen.Open(cfg)
	require.NoError(t, err)
	defer idx2.Close()

	require.Equal(t, 1000, idx2.Stats().NodeCount)
	for i, v := range vecs {
		got, err := idx2.Get(idToBytes(i))
		require.NoError(t, err)
		require.Equal(t, v, got)
	}

	require.NoError(t, idx2.Add(idToBytes(1000), vecs[0]))
	require.NoError(t, idx2.Flush(context.Background()))
	idx2.Close()

	idx3, err := omen.Open(cfg)
	require.NoError(t, err)
	defer idx3.Close()
	require.Equal(t, 1001, idx3.Stats().NodeCount)
}

func TestQuantizationMemory(t *testing.T) {
	if testing.Short() {
		t.Skip("quantization memory scenario is expensive; skipped under -short")
	}
	const (
		dim = 128
		n   = 100000
	)
	cfg := omen.DefaultConfig(dim)
	cfg.Quantization = omen.Quantization{Type: omen.Scalar8}
	idx, err := omen.Open(cfg)
	require.NoError(t, err)
	defer idx.Close()

	rng := rand.New(rand.NewSource(3))
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = rng.Float32()
	}
	entries := make([]omen.BatchEntry, n)
	for i := range entries {
		entries[i] = omen.BatchEntry{ID: idToBytes(i), Vec: vec}
	}
	for _, err := range idx.AddBatch(entries) {
		require.NoError(t, err)
	}
	require.NoError(t, idx.Flush(context.Background()))

	stats := idx.Stats()
	budget := int64(n) * int64(dim+8)
	require.LessOrEqual(t, stats.MemoryBytes, budget+budget/10)

	got, err := idx.Get(idToBytes(0))
	require.NoError(t, err)
	require.Equal(t, vec, got)
}

func TestSegmentedBuildEquivalence(t *testing.T) {
	if testing.Short() {
		t.Skip("segmented build scenario is expensive; skipped under -short")
	}
	const (
		dim     = 32
		n       = 20000
		queries = 1000
		k       = 10
	)
	rng := rand.New(rand.NewSource(4))
	vecs := randomVectors(rng, n, dim)
	qs := randomVectors(rng, queries, dim)

	single := buildAndSearch(t, vecs, qs, k, dim, n+1) // segment_threshold above n: single-threaded path
	segmented := buildAndSearch(t, vecs, qs, k, dim, n/4)

	recallSingle := avgRecall(vecs, qs, k, single)
	recallSegmented := avgRecall(vecs, qs, k, segmented)
	require.InDelta(t, recallSingle, recallSegmented, 0.02)
}

func buildAndSearch(t *testing.T, vecs, qs [][]float32, k, dim, segmentThreshold int) [][]omen.Result {
	cfg := omen.DefaultConfig(dim)
	cfg.Metric = omen.Cosine // explicit: avgRecall's oracle below must match the index's metric
	cfg.Seed = 42
	cfg.SegmentThreshold = segmentThreshold
	idx, err := omen.Open(cfg)
	require.NoError(t, err)
	defer idx.Close()

	entries := make([]omen.BatchEntry, len(vecs))
	for i, v := range vecs {
		entries[i] = omen.BatchEntry{ID: idToBytes(i), Vec: v}
	}
	for _, err := range idx.AddBatch(entries) {
		require.NoError(t, err)
	}
	require.NoError(t, idx.Flush(context.Background()))

	out := make([][]omen.Result, len(qs))
	for i, q := range qs {
		results, err := idx.Search(context.Background(), q, k, omen.SearchOptions{Ef: 100})
		require.NoError(t, err)
		out[i] = results
	}
	return out
}

func avgRecall(vecs, qs [][]float32, k int, results [][]omen.Result) float64 {
	var total float64
	for i, q := range qs {
		exact := bruteForceTopK(vecs, q, k)
		total += float64(overlapIDs(exact, results[i]))
	}
	return total / float64(len(qs)) / float64(k)
}

// --- shared scenario helpers ---

func randomVectors(rng *rand.Rand, n, dim int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = rng.Float32()
		}
		out[i] = v
	}
	return out
}

func idToBytes(i int) []byte {
	return []byte{byte(i), byte(i >> 8), byte(i >> 16), byte(i >> 24)}
}

type scored struct {
	idx  int
	dist float32
}

// bruteForceTopK computes the exact oracle under cosine distance, matching
// the ANN index's Metric in every test that calls it — comparing a Cosine
// index against an L2 oracle would make recall meaningless without ever
// failing on a systematic ranking divergence between the two metrics.
func bruteForceTopK(vecs [][]float32, query []float32, k int) []int {
	scores := make([]scored, len(vecs))
	for i, v := range vecs {
		scores[i] = scored{idx: i, dist: cosineDist(v, query)}
	}
	sort.Slice(scores, func(a, b int) bool { return scores[a].dist < scores[b].dist })
	if len(scores) > k {
		scores = scores[:k]
	}
	out := make([]int, len(scores))
	for i, s := range scores {
		out[i] = s.idx
	}
	return out
}

func cosineDist(a, b []float32) float32 {
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 1.0
	}
	cos := dot / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
	dist := 1.0 - cos
	if dist < 0 {
		return 0
	}
	if dist > 2 {
		return 2
	}
	return dist
}

func overlap(exactIdx []int, ann []omen.Result) int {
	exact := make(map[int]bool, len(exactIdx))
	for _, i := range exactIdx {
		exact[i] = true
	}
	count := 0
	for _, r := range ann {
		if exact[bytesToID(r.ID)] {
			count++
		}
	}
	return count
}

func overlapIDs(exactIdx []int, results []omen.Result) int {
	return overlap(exactIdx, results)
}

func bytesToID(b []byte) int {
	return int(b[0]) | int(b[1])<<8 | int(b[2])<<16 | int(b[3])<<24
}
