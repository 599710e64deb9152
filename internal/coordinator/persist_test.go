package coordinator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSnapshotAndRecoverRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(2)
	cfg.Path = filepath.Join(dir, "index")

	c, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, c.Add([]byte("a"), []float32{0, 0}))
	require.NoError(t, c.Add([]byte("b"), []float32{10, 10}))
	require.NoError(t, c.Flush(context.Background()))
	require.NoError(t, c.Snapshot())
	c.Close()

	c2, err := New(cfg)
	require.NoError(t, err)
	defer c2.Close()

	got, err := c2.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []float32{0, 0}, got)

	results, err := c2.Search(context.Background(), []float32{0, 0}, 1, 10, true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, []byte("a"), results[0].ID)

	stats := c2.Stats()
	require.Equal(t, 2, stats.NodeCount)
}

func TestRecoverReplaysAppendLogAfterSnapshot(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(1)
	cfg.Path = filepath.Join(dir, "index")

	c, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, c.Add([]byte("a"), []float32{1}))
	require.NoError(t, c.Snapshot())
	require.NoError(t, c.Add([]byte("b"), []float32{2})) // recorded only in the append log
	c.Close()

	c2, err := New(cfg)
	require.NoError(t, err)
	defer c2.Close()

	_, err = c2.Get([]byte("a"))
	require.NoError(t, err)
	_, err = c2.Get([]byte("b"))
	require.NoError(t, err)
}

func TestRecoverReinsertsMigratedEntryWithoutSnapshot(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(1)
	cfg.Path = filepath.Join(dir, "index")

	c, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, c.Add([]byte("a"), []float32{1}))
	// Migrate into the graph and log it, but crash before any snapshot: only
	// the append log's OpAdd/OpMigrate records describe this entry's state.
	require.NoError(t, c.drainOnce(context.Background(), 1))
	c.Close()

	c2, err := New(cfg)
	require.NoError(t, err)
	defer c2.Close()

	got, err := c2.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []float32{1}, got)

	// Without replaying OpMigrate into the graph, "a" would be flagged
	// migrated but absent from engine/store, making it unreachable here.
	results, err := c2.Search(context.Background(), []float32{1}, 1, 10, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, []byte("a"), results[0].ID)
}

func TestRecoverAppliesDeleteFromAppendLog(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(1)
	cfg.Path = filepath.Join(dir, "index")

	c, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, c.Add([]byte("a"), []float32{1}))
	require.NoError(t, c.Delete([]byte("a")))
	c.Close()

	c2, err := New(cfg)
	require.NoError(t, err)
	defer c2.Close()

	_, err = c2.Get([]byte("a"))
	require.Error(t, err)
	require.Equal(t, NotFound, err.(*Error).Kind)
}
