package pool

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func tempPoolPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.pool")
}

func TestOpenCreatesAndValidatesHeader(t *testing.T) {
	path := tempPoolPath(t)

	p, err := Open(path, WithCreate(MinPoolSize, 0o644))
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Check())
	require.GreaterOrEqual(t, p.Size(), uint64(MinPoolSize))
}

func TestOpenRejectsMissingFileWithoutCreate(t *testing.T) {
	path := tempPoolPath(t)
	_, err := Open(path)
	require.Error(t, err)
}

func TestReopenPreservesHeaderAndRoot(t *testing.T) {
	path := tempPoolPath(t)

	p1, err := Open(path, WithCreate(MinPoolSize, 0o644))
	require.NoError(t, err)
	root1, err := p1.RootDirect(64)
	require.NoError(t, err)
	require.NoError(t, p1.Close())

	p2, err := Open(path)
	require.NoError(t, err)
	defer p2.Close()

	root2, err := p2.RootDirect(64)
	require.NoError(t, err)
	require.Equal(t, root1.Offset, root2.Offset, "root offset must survive a close/reopen cycle")
}

func TestRootDirectIsAllocatedExactlyOnce(t *testing.T) {
	path := tempPoolPath(t)
	p, err := Open(path, WithCreate(MinPoolSize, 0o644))
	require.NoError(t, err)
	defer p.Close()

	r1, err := p.RootDirect(128)
	require.NoError(t, err)
	r2, err := p.RootDirect(256)
	require.NoError(t, err)
	require.Equal(t, r1.Offset, r2.Offset, "a second RootDirect call must return the same object regardless of the requested size")
}

// TestOpenDowngradesOnUnknownRoCompatBit hand-writes a header declaring a
// ro-compat feature bit this version doesn't recognize, matching
// spec.md's "unknown ro_compat bit -> open read-only" rule. It confirms
// the pool still opens (rather than failing like an unknown incompat
// bit would), reports itself read-only, and can still read an
// already-allocated root.
func TestOpenDowngradesOnUnknownRoCompatBit(t *testing.T) {
	path := tempPoolPath(t)

	p1, err := Open(path, WithCreate(MinPoolSize, 0o644))
	require.NoError(t, err)
	root1, err := p1.RootDirect(64)
	require.NoError(t, err)
	require.NoError(t, p1.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	h := decodeHeader(raw[0:HeaderLen])
	h.RoCompatFeature |= 0x2 // a bit this version does not understand
	h.Checksum = headerChecksum(h)
	enc := h.encode()
	copy(raw[0:HeaderLen], enc[:])
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	p2, err := Open(path)
	require.NoError(t, err)
	defer p2.Close()

	require.True(t, p2.ReadOnly())

	root2, err := p2.RootDirect(64)
	require.NoError(t, err)
	require.Equal(t, root1.Offset, root2.Offset)
}

func TestOpenRejectsUndersizedFile(t *testing.T) {
	path := tempPoolPath(t)
	require.NoError(t, os.WriteFile(path, make([]byte, 1024), 0o644))

	p, err := Open(path)
	require.Error(t, err)
	require.Nil(t, p)
}
