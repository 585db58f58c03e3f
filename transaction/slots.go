package transaction

import (
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"

	"github.com/mansub1029/go-pmem-store/perrors"
	"github.com/mansub1029/go-pmem-store/pmem"
	"github.com/mansub1029/go-pmem-store/pool"
)

// init registers Recover with the pool package so Open can run crash
// recovery without pool needing to import transaction (which would cycle
// back, since a Tx holds a *pool.Pool).
func init() {
	pool.RecoverHook = Recover
}

func slotBase(slot int) uint64 {
	return pool.TxAnchorOffset + uint64(slot)*pool.TxSlotLen
}

func slotInUsePtr(p *pool.Pool, slot int) *uint64 {
	return (*uint64)(unsafe.Pointer(&p.Data()[slotBase(slot)]))
}

func slotCountPtr(p *pool.Pool, slot int) *uint64 {
	return (*uint64)(unsafe.Pointer(&p.Data()[slotBase(slot)+8]))
}

func slotEntryPtr(p *pool.Pool, slot, idx int) *op {
	off := slotBase(slot) + 16 + uint64(idx)*pool.TxSlotEntryLen
	return (*op)(unsafe.Pointer(&p.Data()[off]))
}

// acquireSlot claims the first free top-level transaction slot, marking
// it in-use durably before returning it so a crash right after acquiring
// (and before logging anything) is recognized as an empty, no-op log on
// the next Open's recovery pass.
func acquireSlot(p *pool.Pool) (int, error) {
	for i := 0; i < pool.TxSlotCount; i++ {
		inUse := slotInUsePtr(p, i)
		if atomic.CompareAndSwapUint64(inUse, 0, 1) {
			atomic.StoreUint64(slotCountPtr(p, i), 0)
			if err := pmem.Persist(p.IsPmem(), unsafe.Pointer(inUse), 16); err != nil {
				return -1, err
			}
			return i, nil
		}
	}
	return -1, perrors.ErrNoMem
}

// appendSlotEntry durably logs o as the next entry in slot, persisting
// the entry itself before bumping (and persisting) the count so a
// crash mid-append never advertises a partially written entry.
func appendSlotEntry(p *pool.Pool, slot int, o op) error {
	count := atomic.LoadUint64(slotCountPtr(p, slot))
	if count >= pool.TxSlotCapacity {
		return perrors.ErrNoMem
	}
	entry := slotEntryPtr(p, slot, int(count))
	*entry = o
	if err := pmem.Persist(p.IsPmem(), unsafe.Pointer(entry), pool.TxSlotEntryLen); err != nil {
		return err
	}
	atomic.StoreUint64(slotCountPtr(p, slot), count+1)
	return pmem.Persist(p.IsPmem(), unsafe.Pointer(slotCountPtr(p, slot)), 8)
}

func readSlotEntries(p *pool.Pool, slot int) []op {
	count := int(atomic.LoadUint64(slotCountPtr(p, slot)))
	entries := make([]op, count)
	for i := 0; i < count; i++ {
		entries[i] = *slotEntryPtr(p, slot, i)
	}
	return entries
}

// releaseSlot marks slot free again, persisting the in-use flag last so
// a crash before this point still finds the slot's (already-applied)
// entries and simply re-applies abort semantics against an empty heap
// delta - safe, since commit/abort actions are each idempotent once
// applied (freeing an already-free offset is the only risk, which
// palloc's free-list push tolerates as a documented non-goal of double
// free detection).
func releaseSlot(p *pool.Pool, slot int) error {
	atomic.StoreUint64(slotCountPtr(p, slot), 0)
	atomic.StoreUint64(slotInUsePtr(p, slot), 0)
	return pmem.Persist(p.IsPmem(), unsafe.Pointer(slotInUsePtr(p, slot)), 16)
}

// Recover scans every transaction slot left in-use from a prior run and
// rolls it back, exactly as an explicit Abort would. Any transaction
// whose outermost frame had not finished committing when the process
// died is therefore undone on the next Open, giving the pool the same
// crash-consistency guarantee as a clean Abort.
func Recover(p *pool.Pool) error {
	recovered := 0
	for i := 0; i < pool.TxSlotCount; i++ {
		if atomic.LoadUint64(slotInUsePtr(p, i)) == 0 {
			continue
		}
		entries := readSlotEntries(p, i)
		for j := len(entries) - 1; j >= 0; j-- {
			abortOp(p, entries[j])
		}
		if err := releaseSlot(p, i); err != nil {
			return err
		}
		recovered++
	}
	if recovered > 0 {
		p.Logger().Warn("recovered in-flight transactions on open", zap.Int("count", recovered))
	}
	return nil
}
