package pmutex

import "sync"

// pinned keeps a live Go reference to every volatile object a persistent
// sync cell has bound to during this run. A cell only ever stores that
// object's address as a bare uint64 inside pool-mapped memory, which the
// garbage collector does not scan for pointers - without this registry
// the bound *sync.Mutex/*sync.RWMutex/*condState would be the sole
// "pointer" to itself, invisible to the GC, and eligible for collection
// the moment rebind's local variable goes out of scope even though the
// cell is still very much in use. Entries are keyed by pointer value and
// never removed: a cell's ptr field only changes when processRunID does,
// i.e. a fresh process with its own empty registry, so nothing here is
// ever stale within a single run.
var pinned sync.Map // uint64 pointer value -> pinned object

func pin(ptr uint64, obj any) {
	pinned.Store(ptr, obj)
}
