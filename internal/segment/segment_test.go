package segment

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omendb/omen/internal/hnsw"
	"github.com/omendb/omen/internal/kernel"
)

type memSource struct {
	vecs map[uint32][]float32
}

func (m *memSource) Vector(i uint32) []float32 { return m.vecs[i] }

func TestPlanRespectsCoreAndSizeCaps(t *testing.T) {
	require.Equal(t, 1, Plan(500, 1000, 8))
	require.Equal(t, 4, Plan(4000, 1000, 8))
	require.Equal(t, 8, Plan(20000, 1000, 8))
}

func TestPartitionCoversAllIdsDisjointly(t *testing.T) {
	ids := make([]uint32, 23)
	for i := range ids {
		ids[i] = uint32(i)
	}
	parts := Partition(ids, 5)
	seen := make(map[uint32]bool)
	total := 0
	for _, p := range parts {
		total += len(p)
		for _, id := range p {
			require.False(t, seen[id])
			seen[id] = true
		}
	}
	require.Equal(t, len(ids), total)
}

func TestBuildMergesAllSegments(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	src := &memSource{vecs: make(map[uint32][]float32)}
	n := 200
	ids := make([]uint32, n)
	for i := 0; i < n; i++ {
		ids[i] = uint32(i)
		src.vecs[uint32(i)] = []float32{rng.Float32() * 10, rng.Float32() * 10}
	}

	cfg := hnsw.DefaultConfig()
	cfg.Metric = kernel.L2
	result, err := Build(context.Background(), cfg, ids, src, 50, 4)
	require.NoError(t, err)
	require.Equal(t, n, result.Engine.NodeCount())

	_, ok := result.Engine.EntryPoint()
	require.True(t, ok)

	res := result.Engine.Search(context.Background(), src.vecs[0], 5, 50)
	require.NotEmpty(t, res)
}

func TestBuildEmptyInput(t *testing.T) {
	src := &memSource{vecs: make(map[uint32][]float32)}
	cfg := hnsw.DefaultConfig()
	result, err := Build(context.Background(), cfg, nil, src, 50, 4)
	require.NoError(t, err)
	require.Equal(t, 0, result.Engine.NodeCount())
}
