// Package transaction implements the undo-logging transaction engine:
// Begin/Commit/Abort over a pool's heap, with nested transactions
// flattened into their outermost ancestor's log and a durable,
// fixed-capacity recovery anchor so a crash mid-transaction is undone the
// next time the pool is opened.
//
// The original implementation keeps its active transaction on a
// thread-local stack, entered and left implicitly; Go has no portable
// thread-local storage; every Tx here instead takes its parent
// explicitly, the alternative spec leaves open for exactly this reason.
// Abort is non-local control flow in the original (longjmp out of
// whatever nested call raised it); here it is panic/recover, caught by
// Update.
package transaction

import (
	"unsafe"

	"github.com/mansub1029/go-pmem-store/perrors"
	"github.com/mansub1029/go-pmem-store/pmem"
	"github.com/mansub1029/go-pmem-store/pool"
)

// Tx is one transaction frame. A root Tx (Parent == nil) owns a durable
// log slot; a nested Tx shares its root's slot, so every logged
// operation - at any nesting depth - is durable as soon as it's logged,
// not just at final commit.
type Tx struct {
	pool   *pool.Pool
	parent *Tx
	slot   int
	done   bool
}

// Pool returns the pool this transaction is running against.
func (tx *Tx) Pool() *pool.Pool { return tx.pool }

// Parent returns the enclosing transaction, or nil for a root frame.
func (tx *Tx) Parent() *Tx { return tx.parent }

func (tx *Tx) root() *Tx {
	r := tx
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// Begin starts a transaction against p. Pass parent to nest inside an
// already-open transaction; pass nil to start a new top-level
// transaction, which claims one of the pool's fixed transaction-log
// slots and fails with perrors.ErrNoMem if none are free.
func Begin(p *pool.Pool, parent *Tx) (*Tx, error) {
	if p.ReadOnly() {
		return nil, perrors.ErrReadOnly
	}
	tx := &Tx{pool: p, parent: parent, slot: -1}
	if parent == nil {
		slot, err := acquireSlot(p)
		if err != nil {
			return nil, err
		}
		tx.slot = slot
	} else if parent.done {
		return nil, perrors.ErrNoTransaction
	}
	return tx, nil
}

// Commit ends the transaction. A nested Commit is a no-op: its entries
// already live durably in the root's log, and only the root's Commit
// actually applies on-commit actions (freeing dropped objects and undo
// backups) and releases the log slot.
func Commit(tx *Tx) error {
	if tx.done {
		return perrors.ErrNoTransaction
	}
	tx.done = true
	if tx.parent != nil {
		return nil
	}
	for _, o := range readSlotEntries(tx.pool, tx.slot) {
		commitOp(tx.pool, o)
	}
	return releaseSlot(tx.pool, tx.slot)
}

// abortSignal is the panic payload Abort raises, caught by Update's
// recover - the stand-in for the original's longjmp out of the
// transaction.
type abortSignal struct{ err error }

// Abort unconditionally reverts the entire transaction, including every
// nested level underneath its root, then panics with an abortSignal so
// control returns to the nearest enclosing Update. Calling Abort from
// any nesting depth has the same effect: the whole stack unwinds
// together, matching the original's level-counting End()/unconditional
// abort() split. Abort has no synchronous error return: outside an
// Update nothing recovers the panic, and it propagates to the caller.
func Abort(tx *Tx, cause error) {
	root := tx.root()
	if !root.done {
		root.done = true
		tx.done = true
		entries := readSlotEntries(root.pool, root.slot)
		for i := len(entries) - 1; i >= 0; i-- {
			abortOp(root.pool, entries[i])
		}
		releaseSlot(root.pool, root.slot)
	}
	if cause == nil {
		cause = perrors.ErrTxAborted
	}
	panic(abortSignal{err: cause})
}

func commitOp(p *pool.Pool, o op) {
	switch o.kind {
	case opAlloc:
		// no-op: the allocation stands.
	case opFree:
		p.Allocator().Free(o.a)
	case opSet:
		p.Allocator().Free(o.b)
	}
}

func abortOp(p *pool.Pool, o op) {
	switch o.kind {
	case opAlloc:
		p.Allocator().Free(o.a)
	case opFree:
		// no-op: the object was never actually freed.
	case opSet:
		dst := unsafe.Pointer(p.Base() + uintptr(o.a))
		backup := p.ToOid(o.b).Direct()
		copyBytes(dst, backup, o.c)
		pmem.Persist(p.IsPmem(), dst, uintptr(o.c))
		// o.b itself is freed by its own paired opAlloc entry, applied
		// later in this same reverse walk.
	}
}

func copyBytes(dst, src unsafe.Pointer, size uint64) {
	d := unsafe.Slice((*byte)(dst), size)
	s := unsafe.Slice((*byte)(src), size)
	copy(d, s)
}

// Update runs fn inside a new top-level transaction, committing if fn
// returns nil and aborting (rolling back every logged mutation) if fn
// returns an error or panics via Abort. It is the ergonomic entry point
// most callers should use instead of driving Begin/Commit/Abort by hand,
// in the vein of bbolt's DB.Update.
func Update(p *pool.Pool, fn func(tx *Tx) error) (err error) {
	tx, err := Begin(p, nil)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			if sig, ok := r.(abortSignal); ok {
				err = sig.err
				return
			}
			panic(r)
		}
	}()

	if ferr := fn(tx); ferr != nil {
		Abort(tx, ferr)
		return ferr // unreachable: Abort always panics
	}
	return Commit(tx)
}
