// Package perrors holds the sentinel errors shared across pool, palloc, and
// transaction. It is split out so those packages can both return and
// recognize each other's failures without import cycles.
package perrors

import "github.com/NebulousLabs/errors"

var (
	// ErrTooSmall is returned by pool.Open when the backing file is smaller
	// than the minimum pool size.
	ErrTooSmall = errors.New("pool: file smaller than minimum pool size")

	// ErrInvalidPool is returned when a pool header's signature or checksum
	// doesn't validate and the header isn't all-zero either (so it can't be
	// treated as "uninitialized").
	ErrInvalidPool = errors.New("pool: invalid header")

	// ErrIncompatFeature is returned when the header declares an incompat
	// feature bit this version doesn't understand.
	ErrIncompatFeature = errors.New("pool: unknown incompat feature bit")

	// ErrWrongVersion is returned on a major format version mismatch.
	ErrWrongVersion = errors.New("pool: unsupported major format version")

	// ErrNoMem is returned by the allocator facade and by the sync cells
	// when they can't satisfy a request.
	ErrNoMem = errors.New("pmem: out of memory")

	// ErrTxAborted is the cause an aborted transaction carries when Abort
	// is given a nil cause; transaction.Update returns it to its caller.
	ErrTxAborted = errors.New("transaction: aborted")

	// ErrNoTransaction is returned by Commit called on a frame that
	// already finished, and by Begin when the given parent already
	// finished.
	ErrNoTransaction = errors.New("transaction: no transaction in progress")

	// ErrNotImplemented is returned by pool.OpenMirrored: mirrored pools
	// are not implemented.
	ErrNotImplemented = errors.New("not implemented")

	// ErrReadOnly is returned for any operation that would mutate a pool
	// opened read-only - either because its header declares a ro-compat
	// feature bit this version doesn't understand, or because a prior
	// crash left recovery unrun against such a pool.
	ErrReadOnly = errors.New("pool: read-only")
)
