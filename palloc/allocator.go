// Package palloc is the persistent allocator facade: pmalloc/pfree over a
// byte range owned by a pool. The transaction engine treats it as an
// opaque contract ("produces a durable offset", "releases a durable
// offset") and calls into it both for user allocations and for its own
// undo-backup copies.
//
// The allocator is a segregated free-list over power-of-two size classes.
// Each block is prefixed by an 8-byte header holding its class size; a
// free block reuses the first 8 bytes of its own data region to hold the
// next pointer of its class's free list, so the free lists cost no extra
// space. There is no coalescing: per spec this store makes no promise
// beyond what the underlying allocator provides, and a non-coalescing
// design is the simplest one that is still crash-consistent at the
// metadata level.
package palloc

import (
	"math/bits"
	"sync"
	"unsafe"

	"github.com/mansub1029/go-pmem-store/perrors"
	"github.com/mansub1029/go-pmem-store/pmem"
)

const (
	magic         = 0x706d616c6c6f6300 // "pmalloc\0"
	headerSize    = 8
	minBlockSize  = 16
	numClasses    = 64
	metaHeaderLen = int(unsafe.Sizeof(meta{}))
)

// meta is the allocator's own persistent bookkeeping. It always lives at
// offset 0 of the heap region handed to New.
type meta struct {
	magic uint64
	bump  uint64
	free  [numClasses]uint64
}

// Allocator hands out and reclaims offsets within a single pool's heap
// region. It is safe for concurrent use by multiple goroutines; the spec
// leaves inter-process safety out of scope (no multi-process concurrent
// open), so the guard here is a plain in-process mutex, not a persistent
// lock.
type Allocator struct {
	mem    []byte
	isPmem bool
	mu     sync.Mutex
}

// New wraps mem (the heap region of an already-mapped pool) with an
// allocator, initializing its metadata on first use and trusting it as-is
// otherwise.
func New(mem []byte, isPmem bool) (*Allocator, error) {
	if len(mem) < metaHeaderLen {
		return nil, perrors.ErrNoMem
	}
	a := &Allocator{mem: mem, isPmem: isPmem}
	m := a.metaPtr()
	if m.magic != magic {
		m.magic = magic
		m.bump = uint64(metaHeaderLen)
		for i := range m.free {
			m.free[i] = 0
		}
		a.persistMeta()
	}
	return a, nil
}

func (a *Allocator) metaPtr() *meta {
	return (*meta)(unsafe.Pointer(&a.mem[0]))
}

func (a *Allocator) persistMeta() {
	pmem.Persist(a.isPmem, unsafe.Pointer(&a.mem[0]), uintptr(metaHeaderLen))
}

func (a *Allocator) readUint64(off uint64) uint64 {
	return *(*uint64)(unsafe.Pointer(&a.mem[off]))
}

func (a *Allocator) writeUint64(off uint64, v uint64) {
	*(*uint64)(unsafe.Pointer(&a.mem[off])) = v
	pmem.Persist(a.isPmem, unsafe.Pointer(&a.mem[off]), 8)
}

// classFor returns the size class and the rounded-up block size for a
// requested allocation. The minimum block is 16 bytes so a free block
// always has room for its own next-pointer.
func classFor(size uint64) (class int, rounded uint64) {
	if size < minBlockSize {
		size = minBlockSize
	}
	rounded = nextPow2(size)
	class = bits.TrailingZeros64(rounded)
	return
}

func nextPow2(v uint64) uint64 {
	if v&(v-1) == 0 {
		return v
	}
	return 1 << bits.Len64(v)
}

// Alloc returns an offset pointing to at least size bytes, durable before
// Alloc returns. Allocating size 0 is treated as a request for the minimum
// block size; PMDK leaves this undefined and this store picks "succeeds
// with a usable, if oversized, block" rather than erroring.
func (a *Allocator) Alloc(size uint64) (uint64, error) {
	class, rounded := classFor(size)

	a.mu.Lock()
	defer a.mu.Unlock()

	m := a.metaPtr()
	if head := m.free[class]; head != 0 {
		next := a.readUint64(head + headerSize)
		m.free[class] = next
		a.persistMeta()
		return head + headerSize, nil
	}

	total := uint64(headerSize) + rounded
	if m.bump+total > uint64(len(a.mem)) {
		return 0, perrors.ErrNoMem
	}
	off := m.bump
	a.writeUint64(off, rounded)
	m.bump += total
	a.persistMeta()
	return off + headerSize, nil
}

// Free releases an offset previously returned by Alloc.
func (a *Allocator) Free(offset uint64) error {
	if offset == 0 {
		return nil
	}
	headerOff := offset - headerSize

	a.mu.Lock()
	defer a.mu.Unlock()

	size := a.readUint64(headerOff)
	class := bits.TrailingZeros64(size)

	m := a.metaPtr()
	a.writeUint64(offset, m.free[class])
	m.free[class] = headerOff
	a.persistMeta()
	return nil
}

// Size returns the usable size of the block at offset (the rounded class
// size, which may be larger than what the caller originally requested).
func (a *Allocator) Size(offset uint64) uint64 {
	if offset == 0 {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.readUint64(offset - headerSize)
}
