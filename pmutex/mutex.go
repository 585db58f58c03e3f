package pmutex

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/mansub1029/go-pmem-store/perrors"
)

// rebindMu serializes the slow (allocate-and-publish) path across every
// cell. Rebinding only happens once per cell per process run, so a single
// global lock here is simpler than a per-cell spinlock and never shows up
// as contention in practice.
var rebindMu sync.Mutex

// Mutex is a persistent mutex cell: a run id and a pointer, laid out so it
// can be embedded directly inside a persistent struct. It is considered
// zero-initialized, and thus ready for lazy binding, whenever its stored
// run id does not match the process's run id - which is exactly the state
// a freshly zeroed (or freshly mapped-from-a-prior-run) cell is in.
type Mutex struct {
	runID uint64
	ptr   uint64 // *sync.Mutex, reinterpreted
}

func (c *Mutex) bind() (*sync.Mutex, error) {
	if atomic.LoadUint64(&c.runID) == processRunID {
		if p := atomic.LoadUint64(&c.ptr); p != 0 {
			return (*sync.Mutex)(unsafe.Pointer(uintptr(p))), nil
		}
	}
	return c.rebind()
}

func (c *Mutex) rebind() (*sync.Mutex, error) {
	rebindMu.Lock()
	defer rebindMu.Unlock()

	if atomic.LoadUint64(&c.runID) == processRunID {
		if p := atomic.LoadUint64(&c.ptr); p != 0 {
			return (*sync.Mutex)(unsafe.Pointer(uintptr(p))), nil
		}
	}

	m := new(sync.Mutex)
	ptr := uint64(uintptr(unsafe.Pointer(m)))
	// Pin m in the live registry before anyone can observe ptr, so it's
	// never visible to a racing reader as a bare, GC-invisible address
	// with nothing else keeping it alive.
	pin(ptr, m)
	// Publish the pointer before the run id: a racing reader that sees
	// the new run id must never see the old (or zero) pointer.
	atomic.StoreUint64(&c.ptr, ptr)
	atomic.StoreUint64(&c.runID, processRunID)
	return m, nil
}

// Init binds the cell to a live OS primitive right away. Calling it is
// optional: a zeroed Mutex cell (as allocators hand out memory via zalloc,
// or as a fresh pool's heap reads) binds lazily on its first use. Init
// exists so callers migrating from explicit-init code have somewhere to
// put the call.
func (c *Mutex) Init() error {
	_, err := c.bind()
	return err
}

// Lock locks the mutex, binding it to a live OS primitive first if this is
// the first use in the current run.
func (c *Mutex) Lock() error {
	m, err := c.bind()
	if err != nil {
		return perrors.ErrNoMem
	}
	m.Lock()
	return nil
}

// TryLock attempts to lock the mutex without blocking.
func (c *Mutex) TryLock() (bool, error) {
	m, err := c.bind()
	if err != nil {
		return false, perrors.ErrNoMem
	}
	return m.TryLock(), nil
}

// Unlock unlocks the mutex.
func (c *Mutex) Unlock() error {
	m, err := c.bind()
	if err != nil {
		return perrors.ErrNoMem
	}
	m.Unlock()
	return nil
}
