package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omendb/omen/internal/kernel"
)

func testConfig(dim int) Config {
	cfg := DefaultConfig(dim)
	cfg.Metric = kernel.L2
	cfg.BufferCapacity = 1024
	cfg.DrainBatch = 4
	cfg.DrainInterval = 20 * time.Millisecond
	cfg.SegmentThreshold = 1 << 30 // effectively disabled for small unit tests
	return cfg
}

func TestAddGetRoundTrip(t *testing.T) {
	c, err := New(testConfig(3))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Add([]byte("a"), []float32{1, 2, 3}))
	got, err := c.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 3}, got)
}

func TestAddDuplicateId(t *testing.T) {
	c, err := New(testConfig(2))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Add([]byte("x"), []float32{0, 0}))
	err = c.Add([]byte("x"), []float32{1, 1})
	require.Error(t, err)
	require.Equal(t, DuplicateId, err.(*Error).Kind)
}

func TestAddDimensionMismatch(t *testing.T) {
	c, err := New(testConfig(4))
	require.NoError(t, err)
	defer c.Close()

	err = c.Add([]byte("x"), []float32{0, 0})
	require.Error(t, err)
	require.Equal(t, DimensionMismatch, err.(*Error).Kind)
}

func TestBufferFullThenFlushRecovers(t *testing.T) {
	cfg := testConfig(1)
	cfg.BufferCapacity = 1024
	cfg.DrainBatch = 1 << 30      // keep the batch-size trigger from firing during the fill
	cfg.DrainInterval = time.Hour // keep the timer trigger from firing during the fill
	c, err := New(cfg)
	require.NoError(t, err)
	defer c.Close()

	for i := 0; i < 1024; i++ {
		require.NoError(t, c.Add([]byte{byte(i), byte(i >> 8)}, []float32{float32(i)}))
	}
	err = c.Add([]byte("overflow"), []float32{0})
	require.Error(t, err)
	require.Equal(t, BufferFull, err.(*Error).Kind)

	require.NoError(t, c.Flush(context.Background()))
	require.NoError(t, c.Add([]byte("overflow"), []float32{0}))
}

func TestDeleteThenGetNotFound(t *testing.T) {
	c, err := New(testConfig(2))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Add([]byte("a"), []float32{1, 1}))
	require.NoError(t, c.Delete([]byte("a")))
	_, err = c.Get([]byte("a"))
	require.Error(t, err)
	require.Equal(t, NotFound, err.(*Error).Kind)
}

func TestSearchAfterFlushFindsExactMatch(t *testing.T) {
	c, err := New(testConfig(2))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Add([]byte("a"), []float32{0, 0}))
	require.NoError(t, c.Add([]byte("b"), []float32{10, 10}))
	require.NoError(t, c.Add([]byte("c"), []float32{1, 1}))
	require.NoError(t, c.Flush(context.Background()))

	results, err := c.Search(context.Background(), []float32{0, 0}, 1, 50, true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, []byte("a"), results[0].ID)
	require.InDelta(t, 0.0, results[0].Distance, 1e-6)
}

func TestSearchFindsUnmigratedFromBuffer(t *testing.T) {
	cfg := testConfig(2)
	cfg.DrainBatch = 1 << 30
	cfg.DrainInterval = time.Hour
	c, err := New(cfg)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Add([]byte("only"), []float32{3, 3}))
	results, err := c.Search(context.Background(), []float32{3, 3}, 1, 10, true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, []byte("only"), results[0].ID)
}

func TestStatsReflectsCounts(t *testing.T) {
	c, err := New(testConfig(1))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Add([]byte("a"), []float32{0}))
	require.NoError(t, c.Add([]byte("b"), []float32{1}))
	require.NoError(t, c.Flush(context.Background()))
	require.NoError(t, c.Delete([]byte("a")))

	stats := c.Stats()
	require.Equal(t, 2, stats.NodeCount)
	require.Equal(t, 1, stats.Tombstones)
}
