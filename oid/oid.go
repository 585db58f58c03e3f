// Package oid implements the persistent object reference: a two-word
// identifier of {pool base, offset} convertible to a live pointer.
package oid

import "unsafe"

// Oid identifies a persistent object. Base is the address the owning pool
// is mapped at in the current process (transient, re-derived on every
// open); Offset is persistent and relative to Base. Offset == 0 is null.
type Oid struct {
	Base   uintptr
	Offset uint64
}

// Null is the zero-valued Oid.
var Null = Oid{}

// IsNull reports whether oid is the null object id.
func (o Oid) IsNull() bool {
	return o.Offset == 0
}

// Direct returns a live pointer to the object oid refers to. Stores through
// it must go through transaction.Set/transaction.Memcpy so the write is
// undo-logged; Direct itself makes no transactional guarantee.
func (o Oid) Direct() unsafe.Pointer {
	return unsafe.Pointer(o.Base + uintptr(o.Offset))
}

// DirectNonTransactional is semantically identical to Direct. It exists so
// callers can signal "I will only read this" at the call site, matching
// the non-transactional/transactional split in the spec this store follows;
// it carries no different correctness guarantee in this implementation.
func (o Oid) DirectNonTransactional() unsafe.Pointer {
	return o.Direct()
}

// Equal reports whether a and b name the same object. Two Oids from the
// same pool are equal iff their offsets match.
func Equal(a, b Oid) bool {
	return a.Offset == b.Offset
}

// At returns the Oid for the given offset within the pool mapped at base.
func At(base uintptr, offset uint64) Oid {
	return Oid{Base: base, Offset: offset}
}
