package transaction

import (
	"unsafe"

	"github.com/mansub1029/go-pmem-store/oid"
	"github.com/mansub1029/go-pmem-store/pmem"
)

// Alloc reserves size bytes from the pool's heap and logs the allocation
// so an abort frees it again; its contents are whatever the allocator
// handed back (uninitialized free-list memory).
func Alloc(tx *Tx, size uint64) (oid.Oid, error) {
	if tx.done {
		return oid.Null, nil
	}
	heapOff, err := tx.pool.Allocator().Alloc(size)
	if err != nil {
		return oid.Null, err
	}
	if err := tx.logOp(op{kind: opAlloc, a: heapOff}); err != nil {
		tx.pool.Allocator().Free(heapOff)
		return oid.Null, err
	}
	return tx.pool.ToOid(heapOff), nil
}

// Zalloc is Alloc followed by a zero-fill, persisted before returning.
func Zalloc(tx *Tx, size uint64) (oid.Oid, error) {
	o, err := Alloc(tx, size)
	if err != nil {
		return oid.Null, err
	}
	ptr := o.Direct()
	region := unsafe.Slice((*byte)(ptr), size)
	for i := range region {
		region[i] = 0
	}
	if err := pmem.Persist(tx.pool.IsPmem(), ptr, uintptr(size)); err != nil {
		return oid.Null, err
	}
	return o, nil
}

// Strdup allocates a NUL-terminated copy of s.
func Strdup(tx *Tx, s string) (oid.Oid, error) {
	b := []byte(s)
	o, err := Alloc(tx, uint64(len(b))+1)
	if err != nil {
		return oid.Null, err
	}
	region := unsafe.Slice((*byte)(o.Direct()), len(b)+1)
	copy(region, b)
	region[len(b)] = 0
	if err := pmem.Persist(tx.pool.IsPmem(), o.Direct(), uintptr(len(b)+1)); err != nil {
		return oid.Null, err
	}
	return o, nil
}

// Free logs o for release. The object stays live and readable until the
// enclosing transaction actually commits; an abort leaves it untouched.
func Free(tx *Tx, o oid.Oid) error {
	if o.IsNull() || tx.done {
		return nil
	}
	heapOff := tx.pool.FromOid(o)
	return tx.logOp(op{kind: opFree, a: heapOff})
}

// Memcpy overwrites size bytes at dst (which must lie inside the pool's
// mapping) with size bytes read from src, taking an undo backup first.
func Memcpy(tx *Tx, dst unsafe.Pointer, src unsafe.Pointer, size uint64) error {
	dstOff := uint64(uintptr(dst) - tx.pool.Base())
	return tx.memcpyUndo(dstOff, src, size)
}

// Set is the generic field-set primitive: the transactional equivalent
// of `*dst = val`, the idiomatic Go replacement for the original's
// pointer/size macro now that Go generics know T's size and layout.
// dst must point inside the pool this transaction belongs to.
func Set[T any](tx *Tx, dst *T, val T) error {
	size := uint64(unsafe.Sizeof(val))
	dstOff := uint64(uintptr(unsafe.Pointer(dst)) - tx.pool.Base())
	return tx.memcpyUndo(dstOff, unsafe.Pointer(&val), size)
}

// memcpyUndo is the shared backup-log-overwrite sequence behind Memcpy
// and Set: allocate a backup block (itself logged as an Alloc, so an
// abort frees it once the paired Set entry has restored dst from it),
// copy the pre-image into it, log the Set entry, then perform the real
// write.
func (tx *Tx) memcpyUndo(dstOff uint64, src unsafe.Pointer, size uint64) error {
	if tx.done {
		return nil
	}
	p := tx.pool
	dst := unsafe.Pointer(p.Base() + uintptr(dstOff))

	backupOff, err := p.Allocator().Alloc(size)
	if err != nil {
		return err
	}
	if err := tx.logOp(op{kind: opAlloc, a: backupOff}); err != nil {
		p.Allocator().Free(backupOff)
		return err
	}

	backup := p.ToOid(backupOff).Direct()
	copyBytes(backup, dst, size)
	if err := pmem.Persist(p.IsPmem(), backup, uintptr(size)); err != nil {
		return err
	}

	if err := tx.logOp(op{kind: opSet, a: dstOff, b: backupOff, c: size}); err != nil {
		return err
	}

	copyBytes(dst, src, size)
	return pmem.Persist(p.IsPmem(), dst, uintptr(size))
}

func (tx *Tx) logOp(o op) error {
	root := tx.root()
	return appendSlotEntry(root.pool, root.slot, o)
}
