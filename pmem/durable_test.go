package pmem

import (
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestPersistAndFlushOnOrdinaryMapping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapped")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, f.Truncate(4096))

	data, err := unix.Mmap(int(f.Fd()), 0, 4096, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	require.NoError(t, err)
	defer unix.Munmap(data)

	data[0] = 0xAB
	require.NoError(t, Persist(false, unsafe.Pointer(&data[0]), 1))
	require.NoError(t, Flush(false, unsafe.Pointer(&data[0]), 1))
	Fence()
	Drain()
}

func TestIsPmemIsFalseForOrdinaryFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapped")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, f.Truncate(4096))

	data, err := unix.Mmap(int(f.Fd()), 0, 4096, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	require.NoError(t, err)
	defer unix.Munmap(data)

	require.False(t, IsPmem(unsafe.Pointer(&data[0]), uintptr(len(data))))
}

func TestIsPmemFalseForZeroLength(t *testing.T) {
	var x byte
	require.False(t, IsPmem(unsafe.Pointer(&x), 0))
}
