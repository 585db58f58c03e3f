package pool

import (
	"sync/atomic"
	"unsafe"

	"github.com/mansub1029/go-pmem-store/oid"
	"github.com/mansub1029/go-pmem-store/perrors"
	"github.com/mansub1029/go-pmem-store/pmem"
)

// ToOid converts an offset returned by the pool's allocator (relative to
// the heap region) into a pool-wide Oid.
func (p *Pool) ToOid(heapOffset uint64) oid.Oid {
	return oid.At(p.Base(), HeapOffset+heapOffset)
}

// FromOid recovers the allocator-relative offset backing an Oid that
// belongs to this pool.
func (p *Pool) FromOid(o oid.Oid) uint64 {
	return o.Offset - HeapOffset
}

// RootDirect returns the pool's single root object, allocating and
// zeroing it on first use (guarded by the pool's root mutex so concurrent
// callers race safely). The root is never grown once created: a second
// call with a larger size just returns the existing (smaller) object,
// matching pmemobj_root_direct.
//
// A read-only pool (unrecognized ro-compat bit) may only read an
// already-allocated root: taking the root mutex writes its bind state
// into pool-mapped memory, which a read-only pool has mprotect'd away,
// so that path - and allocating a root that doesn't exist yet - is
// skipped entirely in favor of a plain atomic load.
func (p *Pool) RootDirect(size uint64) (oid.Oid, error) {
	if size == 0 {
		return oid.Null, perrors.ErrInvalidPool
	}

	if p.readOnly {
		off := atomic.LoadUint64(p.rootOffsetPtr())
		if off == 0 {
			return oid.Null, perrors.ErrReadOnly
		}
		return p.ToOid(off), nil
	}

	if err := p.rootMutex().Lock(); err != nil {
		return oid.Null, err
	}
	defer p.rootMutex().Unlock()

	if off := atomic.LoadUint64(p.rootOffsetPtr()); off != 0 {
		return p.ToOid(off), nil
	}

	heapOff, err := p.alloc.Alloc(size)
	if err != nil {
		return oid.Null, err
	}
	root := p.ToOid(heapOff)

	region := p.data[HeapOffset+heapOff : HeapOffset+heapOff+size]
	for i := range region {
		region[i] = 0
	}
	if err := pmem.Persist(p.isPmem, unsafe.Pointer(&region[0]), uintptr(size)); err != nil {
		return oid.Null, err
	}

	atomic.StoreUint64(p.rootOffsetPtr(), heapOff)
	if err := pmem.Persist(p.isPmem, unsafe.Pointer(p.rootOffsetPtr()), 8); err != nil {
		return oid.Null, err
	}

	return root, nil
}
