// Package pmutex implements the volatile-rebind synchronization
// primitives: persistent mutex/rwlock/cond cells that lazily allocate and
// bind to a live OS primitive the first time they're touched in a given
// process run, keyed by a per-run id. Persistent memory cannot safely hold
// an OS primitive's opaque state across a crash or reboot, so the cell
// itself only ever stores a run id and a pointer; everything else is
// re-created each run.
package pmutex

import (
	"math"
	"time"

	"github.com/NebulousLabs/fastrand"
)

// processRunID is this process's epoch, used to detect whether a
// persistent sync cell was bound during the current run or is stale (or
// zero-initialized, which looks the same: a run id that can't possibly
// match).
var processRunID = newRunID()

func newRunID() uint64 {
	n := time.Now().UnixNano()
	if n <= 0 {
		// Matches the original's fallback to random() when
		// clock_gettime fails; on this runtime UnixNano never
		// returns a non-positive value, but the fallback path is
		// kept so the run id is never accidentally the zero value
		// a fresh-from-mmap cell already has.
		return fastrand.Uint64n(math.MaxUint64)
	}
	return uint64(n)
}
