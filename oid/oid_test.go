package oid

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sliceBase(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}

func uintptrOf(p unsafe.Pointer) uintptr {
	return uintptr(p)
}

func TestNullIsNull(t *testing.T) {
	assert.True(t, Null.IsNull())
	assert.True(t, Oid{}.IsNull())
	assert.False(t, At(0x1000, 64).IsNull())
}

func TestAtAndDirect(t *testing.T) {
	backing := make([]byte, 256)
	base := sliceBase(backing)

	o := At(base, 128)
	require.False(t, o.IsNull())
	assert.Equal(t, base+128, uintptrOf(o.Direct()))
	assert.Equal(t, o.Direct(), o.DirectNonTransactional())
}

func TestEqualComparesOffsetOnly(t *testing.T) {
	a := At(0x1000, 16)
	b := At(0x2000, 16)
	c := At(0x1000, 32)
	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
}
