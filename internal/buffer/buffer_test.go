package buffer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omendb/omen/internal/kernel"
)

func TestAppendAndFull(t *testing.T) {
	b := New(1024, kernel.L2Sq)
	for i := 0; i < 1024; i++ {
		_, err := b.Append(uint32(i), []float32{float32(i)})
		require.NoError(t, err)
	}
	_, err := b.Append(9999, []float32{0})
	require.ErrorIs(t, err, ErrFull)
}

func TestSearchTopK(t *testing.T) {
	b := New(1024, kernel.L2Sq)
	b.Append(0, []float32{0, 0})
	b.Append(1, []float32{1, 1})
	b.Append(2, []float32{5, 5})
	got, err := b.SearchTopK(context.Background(), []float32{0, 0}, 2, false)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, uint32(0), got[0].ID)
}

func TestTombstoneExcludesFromSearch(t *testing.T) {
	b := New(1024, kernel.L2Sq)
	b.Append(0, []float32{0, 0})
	b.Tombstone(0)
	got, err := b.SearchTopK(context.Background(), []float32{0, 0}, 5, false)
	require.NoError(t, err)
	require.Len(t, got, 0)
}

func TestDrainUnmigratedInsertionOrder(t *testing.T) {
	b := New(1024, kernel.L2Sq)
	b.Append(0, []float32{0})
	b.Append(1, []float32{1})
	b.Append(2, []float32{2})
	items := b.DrainUnmigrated(2)
	require.Len(t, items, 2)
	require.Equal(t, uint32(0), items[0].InternalIndex)
	require.Equal(t, uint32(1), items[1].InternalIndex)
}

func TestMarkMigratedExcludesFromFilteredSearch(t *testing.T) {
	b := New(1024, kernel.L2Sq)
	b.Append(0, []float32{0})
	b.MarkMigrated(0)
	got, err := b.SearchTopK(context.Background(), []float32{0}, 5, true)
	require.NoError(t, err)
	require.Len(t, got, 0)

	got, err = b.SearchTopK(context.Background(), []float32{0}, 5, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
}
