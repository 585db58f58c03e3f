package transaction

type opKind uint8

const (
	opAlloc opKind = iota
	opFree
	opSet
)

// op is the on-disk undo-log entry layout, overlaid directly onto a
// pool's transaction-recovery anchor. Its three payload words are
// interpreted per kind:
//
//	opAlloc: a = heap offset allocated. On commit: no-op. On abort: pfree(a).
//	opFree:  a = heap offset freed, pending. On commit: pfree(a). On abort: no-op.
//	opSet:   a = absolute offset of the overwritten field, b = heap offset
//	         of its pre-image backup, c = length in bytes. On commit:
//	         pfree(b). On abort: copy b back over a, leave b allocated (a
//	         paired opAlloc entry logged when the backup was taken frees
//	         it later in the same reverse walk).
type op struct {
	kind    opKind
	_       [7]byte
	a, b, c uint64
}
