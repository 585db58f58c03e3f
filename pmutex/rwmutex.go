package pmutex

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/mansub1029/go-pmem-store/perrors"
)

// RWMutex is the rwlock analogue of Mutex: same two-field persistent
// layout, rebinding to a live *sync.RWMutex on first use per run.
type RWMutex struct {
	runID uint64
	ptr   uint64
}

func (c *RWMutex) bind() (*sync.RWMutex, error) {
	if atomic.LoadUint64(&c.runID) == processRunID {
		if p := atomic.LoadUint64(&c.ptr); p != 0 {
			return (*sync.RWMutex)(unsafe.Pointer(uintptr(p))), nil
		}
	}
	return c.rebind()
}

func (c *RWMutex) rebind() (*sync.RWMutex, error) {
	rebindMu.Lock()
	defer rebindMu.Unlock()

	if atomic.LoadUint64(&c.runID) == processRunID {
		if p := atomic.LoadUint64(&c.ptr); p != 0 {
			return (*sync.RWMutex)(unsafe.Pointer(uintptr(p))), nil
		}
	}

	m := new(sync.RWMutex)
	ptr := uint64(uintptr(unsafe.Pointer(m)))
	pin(ptr, m)
	atomic.StoreUint64(&c.ptr, ptr)
	atomic.StoreUint64(&c.runID, processRunID)
	return m, nil
}

// RLock takes a read lock.
func (c *RWMutex) RLock() error {
	m, err := c.bind()
	if err != nil {
		return perrors.ErrNoMem
	}
	m.RLock()
	return nil
}

// RUnlock releases a read lock.
func (c *RWMutex) RUnlock() error {
	m, err := c.bind()
	if err != nil {
		return perrors.ErrNoMem
	}
	m.RUnlock()
	return nil
}

// Lock takes a write lock.
func (c *RWMutex) Lock() error {
	m, err := c.bind()
	if err != nil {
		return perrors.ErrNoMem
	}
	m.Lock()
	return nil
}

// Unlock releases a write lock.
func (c *RWMutex) Unlock() error {
	m, err := c.bind()
	if err != nil {
		return perrors.ErrNoMem
	}
	m.Unlock()
	return nil
}

// TryRLock attempts a non-blocking read lock.
func (c *RWMutex) TryRLock() (bool, error) {
	m, err := c.bind()
	if err != nil {
		return false, perrors.ErrNoMem
	}
	return m.TryRLock(), nil
}

// TryLock attempts a non-blocking write lock.
func (c *RWMutex) TryLock() (bool, error) {
	m, err := c.bind()
	if err != nil {
		return false, perrors.ErrNoMem
	}
	return m.TryLock(), nil
}

// TimedRLock blocks until it acquires a read lock or the deadline passes,
// returning context.DeadlineExceeded in the latter case - the idiomatic Go
// analogue of the POSIX timed rwlock calls.
func (c *RWMutex) TimedRLock(deadline time.Time) error {
	return timedAcquire(deadline, func() bool {
		ok, _ := c.TryRLock()
		return ok
	})
}

// TimedLock is the write-lock counterpart of TimedRLock.
func (c *RWMutex) TimedLock(deadline time.Time) error {
	return timedAcquire(deadline, func() bool {
		ok, _ := c.TryLock()
		return ok
	})
}

func timedAcquire(deadline time.Time, tryOnce func() bool) error {
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	const pollInterval = 200 * time.Microsecond
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	if tryOnce() {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if tryOnce() {
				return nil
			}
		}
	}
}
