package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleState() *State {
	return &State{
		Dimension:     4,
		M:             16,
		Mmax0:         32,
		EntryPoint:    3,
		HasEntryPoint: true,
		NodeCount:     2,
		QuantizerType: 0,
		IDs: []IDEntry{
			{Key: []byte("a"), InternalIndex: 0},
			{Key: []byte("b"), InternalIndex: 1},
		},
		Nodes: []NodeEntry{
			{InternalIndex: 0, MaxLevel: 1, Edges: [][]uint32{{1}, {1}}},
			{InternalIndex: 1, MaxLevel: 1, Edges: [][]uint32{{0}, {0}}},
		},
		Vectors: []VectorEntry{
			{InternalIndex: 0, Vector: []float32{1, 2, 3, 4}},
			{InternalIndex: 1, Vector: []float32{5, 6, 7, 8}},
		},
		DrainCursor: 2,
	}
}

func TestSnapshotWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.omen")
	want := sampleState()
	require.NoError(t, WriteSnapshot(path, want))

	got, err := ReadSnapshot(path)
	require.NoError(t, err)
	require.Equal(t, want.Dimension, got.Dimension)
	require.Equal(t, want.EntryPoint, got.EntryPoint)
	require.Equal(t, want.HasEntryPoint, got.HasEntryPoint)
	require.Equal(t, want.IDs, got.IDs)
	require.Equal(t, want.Nodes, got.Nodes)
	require.Equal(t, want.Vectors, got.Vectors)
	require.Equal(t, want.DrainCursor, got.DrainCursor)
}

func TestSnapshotNoEntryPoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.omen")
	s := sampleState()
	s.HasEntryPoint = false
	require.NoError(t, WriteSnapshot(path, s))

	got, err := ReadSnapshot(path)
	require.NoError(t, err)
	require.False(t, got.HasEntryPoint)
}

func TestSnapshotDetectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.omen")
	require.NoError(t, WriteSnapshot(path, sampleState()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = ReadSnapshot(path)
	require.Error(t, err)
}

func TestSnapshotAtomicNoPartialFileOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "snapshot.omen") // parent dir does not exist
	err := WriteSnapshot(path, sampleState())
	require.Error(t, err)

	_, statErr := os.Stat(path + ".tmp")
	require.Error(t, statErr)
}
