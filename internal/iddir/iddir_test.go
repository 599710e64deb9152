package iddir

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssignAndLookup(t *testing.T) {
	d := New(4)
	var next uint32
	alloc := func() uint32 {
		v := next
		next++
		return v
	}

	idx1, created := d.Assign([]byte("alice"), alloc)
	require.True(t, created)
	require.Equal(t, uint32(0), idx1)

	idx2, created := d.Assign([]byte("alice"), alloc)
	require.False(t, created)
	require.Equal(t, idx1, idx2)

	idx3, created := d.Assign([]byte("bob"), alloc)
	require.True(t, created)
	require.Equal(t, uint32(1), idx3)

	got, ok := d.Lookup([]byte("bob"))
	require.True(t, ok)
	require.Equal(t, idx3, got)

	_, ok = d.Lookup([]byte("carol"))
	require.False(t, ok)
}

func TestExternalIDRoundTrip(t *testing.T) {
	d := New(4)
	var next uint32
	alloc := func() uint32 { v := next; next++; return v }

	idx, _ := d.Assign([]byte("original-bytes"), alloc)
	ext, ok := d.ExternalID(idx)
	require.True(t, ok)
	require.Equal(t, []byte("original-bytes"), ext)
}

func TestDeleteRemovesEntry(t *testing.T) {
	d := New(4)
	var next uint32
	alloc := func() uint32 { v := next; next++; return v }

	idx, _ := d.Assign([]byte("x"), alloc)
	require.Equal(t, 1, d.Len())

	removed, ok := d.Delete([]byte("x"))
	require.True(t, ok)
	require.Equal(t, idx, removed)
	require.Equal(t, 0, d.Len())

	_, ok = d.Lookup([]byte("x"))
	require.False(t, ok)
	_, ok = d.ExternalID(idx)
	require.False(t, ok)
}

func TestGrowsPastLoadFactor(t *testing.T) {
	d := New(4)
	var next uint32
	alloc := func() uint32 { v := next; next++; return v }

	for i := 0; i < 1000; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		_, created := d.Assign(key, alloc)
		require.True(t, created)
	}
	require.Equal(t, 1000, d.Len())
	for i := 0; i < 1000; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		idx, ok := d.Lookup(key)
		require.True(t, ok)
		require.Equal(t, uint32(i), idx)
	}
}

func TestAssignAfterDeleteResolvesNewKey(t *testing.T) {
	d := New(4)
	var next uint32
	alloc := func() uint32 { v := next; next++; return v }

	d.Assign([]byte("a"), alloc)
	d.Delete([]byte("a"))
	idx, created := d.Assign([]byte("b"), alloc)
	require.True(t, created)
	got, ok := d.Lookup([]byte("b"))
	require.True(t, ok)
	require.Equal(t, idx, got)
}
