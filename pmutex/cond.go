package pmutex

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/mansub1029/go-pmem-store/perrors"
)

// condState is the volatile object a Cond cell's pointer resolves to: a
// lock and the condition variable built on it, since sync.Cond needs a
// sync.Locker of its own rather than sharing the caller's Mutex cell.
type condState struct {
	mu sync.Mutex
	c  *sync.Cond
}

// Cond is the condvar analogue of Mutex/RWMutex.
type Cond struct {
	runID uint64
	ptr   uint64
}

func (c *Cond) bind() (*condState, error) {
	if atomic.LoadUint64(&c.runID) == processRunID {
		if p := atomic.LoadUint64(&c.ptr); p != 0 {
			return (*condState)(unsafe.Pointer(uintptr(p))), nil
		}
	}
	return c.rebind()
}

func (c *Cond) rebind() (*condState, error) {
	rebindMu.Lock()
	defer rebindMu.Unlock()

	if atomic.LoadUint64(&c.runID) == processRunID {
		if p := atomic.LoadUint64(&c.ptr); p != 0 {
			return (*condState)(unsafe.Pointer(uintptr(p))), nil
		}
	}

	st := &condState{}
	st.c = sync.NewCond(&st.mu)
	ptr := uint64(uintptr(unsafe.Pointer(st)))
	pin(ptr, st)
	atomic.StoreUint64(&c.ptr, ptr)
	atomic.StoreUint64(&c.runID, processRunID)
	return st, nil
}

// Signal wakes one waiter.
func (c *Cond) Signal() error {
	st, err := c.bind()
	if err != nil {
		return perrors.ErrNoMem
	}
	st.c.Signal()
	return nil
}

// Broadcast wakes all waiters.
func (c *Cond) Broadcast() error {
	st, err := c.bind()
	if err != nil {
		return perrors.ErrNoMem
	}
	st.c.Broadcast()
	return nil
}

// Wait blocks on the condition variable. Callers must hold the cond's own
// internal lock via Lock/Unlock around the predicate check, matching
// sync.Cond's usual pattern.
func (c *Cond) Wait() error {
	st, err := c.bind()
	if err != nil {
		return perrors.ErrNoMem
	}
	st.c.Wait()
	return nil
}

// Lock/Unlock expose the cond's own internal mutex, matching the POSIX API
// shape where PMEMcond is always paired with a PMEMmutex for Wait.
func (c *Cond) Lock() error {
	st, err := c.bind()
	if err != nil {
		return perrors.ErrNoMem
	}
	st.mu.Lock()
	return nil
}

func (c *Cond) Unlock() error {
	st, err := c.bind()
	if err != nil {
		return perrors.ErrNoMem
	}
	st.mu.Unlock()
	return nil
}

// TimedWait blocks until Signal/Broadcast or the deadline passes.
func (c *Cond) TimedWait(deadline time.Time) error {
	st, err := c.bind()
	if err != nil {
		return perrors.ErrNoMem
	}

	done := make(chan struct{})
	timer := time.AfterFunc(time.Until(deadline), func() {
		st.mu.Lock()
		close(done)
		st.c.Broadcast()
		st.mu.Unlock()
	})
	defer timer.Stop()

	st.c.Wait()

	select {
	case <-done:
		return context.DeadlineExceeded
	default:
		return nil
	}
}
