package palloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestAllocator(t *testing.T, size int) *Allocator {
	t.Helper()
	mem := make([]byte, size)
	a, err := New(mem, false)
	require.NoError(t, err)
	return a
}

func TestAllocReturnsUsableDistinctRegions(t *testing.T) {
	a := newTestAllocator(t, 1<<16)

	off1, err := a.Alloc(40)
	require.NoError(t, err)
	off2, err := a.Alloc(40)
	require.NoError(t, err)
	require.NotEqual(t, off1, off2)

	require.GreaterOrEqual(t, a.Size(off1), uint64(40))
	require.GreaterOrEqual(t, a.Size(off2), uint64(40))
}

func TestFreeThenAllocReusesSameClass(t *testing.T) {
	a := newTestAllocator(t, 1<<16)

	off, err := a.Alloc(100)
	require.NoError(t, err)
	require.NoError(t, a.Free(off))

	off2, err := a.Alloc(100)
	require.NoError(t, err)
	require.Equal(t, off, off2, "same-class reuse should pop the just-freed block")
}

func TestAllocRoundsUpToPowerOfTwoClass(t *testing.T) {
	a := newTestAllocator(t, 1<<16)

	off, err := a.Alloc(17)
	require.NoError(t, err)
	require.Equal(t, uint64(32), a.Size(off))
}

func TestAllocFailsWhenHeapExhausted(t *testing.T) {
	// Room for the allocator's metadata, but not for a 1 KiB block.
	a := newTestAllocator(t, 1024)

	_, err := a.Alloc(1024)
	require.Error(t, err)
}

func TestNewIsIdempotentOnAlreadyInitializedHeap(t *testing.T) {
	mem := make([]byte, 1<<16)
	a1, err := New(mem, false)
	require.NoError(t, err)
	off, err := a1.Alloc(64)
	require.NoError(t, err)

	a2, err := New(mem, false)
	require.NoError(t, err)
	require.Equal(t, a1.Size(off), a2.Size(off), "reopening must not reinitialize a live heap")
}
