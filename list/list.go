// Package list implements the persistent doubly-linked circular list
// (component G of the object store): a sentinel head whose next/prev
// point to themselves when empty, built entirely out of the
// transaction package's Set primitive so every link change is
// undo-logged and crash-consistent the same way any other field update
// is.
package list

import (
	"unsafe"

	"github.com/mansub1029/go-pmem-store/oid"
	"github.com/mansub1029/go-pmem-store/transaction"
)

// Entry is the intrusive link pair a list element embeds. Any persistent
// struct that wants to live on a list embeds an Entry and refers to
// itself as an Oid, mirroring the original's PMEMoid-based list_entry.
type Entry struct {
	Next oid.Oid
	Prev oid.Oid
}

// Head is the sentinel node. An empty list has Head.Next == Head.Prev ==
// the Oid of the head itself.
type Head struct {
	Entry
}

// entryAt returns a pointer to the Entry embedded at offsetof(T, field)
// within the object o refers to, so the list package can operate on any
// caller-defined struct without needing it to literally be a list.Entry.
func entryAt(o oid.Oid, fieldOffset uintptr) *Entry {
	return (*Entry)(unsafe.Pointer(uintptr(o.Direct()) + fieldOffset))
}

// InitHead makes headOid point to itself, producing an empty list. It
// must run inside tx.
func InitHead(tx *transaction.Tx, headOid oid.Oid, fieldOffset uintptr) error {
	e := entryAt(headOid, fieldOffset)
	return transaction.Set(tx, e, Entry{Next: headOid, Prev: headOid})
}

// InsertAfter splices elem in immediately after at (both identified by
// Oid, with fieldOffset locating their embedded Entry). Every write
// targets a single Next/Prev field rather than a whole captured Entry
// value, so it stays correct when at and its old next alias the same
// node (the empty-list and single-element cases, where at == at.Next).
func InsertAfter(tx *transaction.Tx, at, elem oid.Oid, fieldOffset uintptr) error {
	atEntry := entryAt(at, fieldOffset)
	elemEntry := entryAt(elem, fieldOffset)
	oldNext := atEntry.Next
	nextEntry := entryAt(oldNext, fieldOffset)

	if err := transaction.Set(tx, &elemEntry.Next, oldNext); err != nil {
		return err
	}
	if err := transaction.Set(tx, &elemEntry.Prev, at); err != nil {
		return err
	}
	if err := transaction.Set(tx, &nextEntry.Prev, elem); err != nil {
		return err
	}
	return transaction.Set(tx, &atEntry.Next, elem)
}

// InsertBefore splices elem in immediately before at, field by field for
// the same aliasing reason as InsertAfter (at == at.Prev when at is the
// lone node in the list).
func InsertBefore(tx *transaction.Tx, at, elem oid.Oid, fieldOffset uintptr) error {
	atEntry := entryAt(at, fieldOffset)
	elemEntry := entryAt(elem, fieldOffset)
	oldPrev := atEntry.Prev
	prevEntry := entryAt(oldPrev, fieldOffset)

	if err := transaction.Set(tx, &elemEntry.Next, at); err != nil {
		return err
	}
	if err := transaction.Set(tx, &elemEntry.Prev, oldPrev); err != nil {
		return err
	}
	if err := transaction.Set(tx, &prevEntry.Next, elem); err != nil {
		return err
	}
	return transaction.Set(tx, &atEntry.Prev, elem)
}

// AddHead inserts elem as the new first element (right after head),
// matching pmemobj_list_add with before=1.
func AddHead(tx *transaction.Tx, head, elem oid.Oid, fieldOffset uintptr) error {
	return InsertAfter(tx, head, elem, fieldOffset)
}

// AddTail inserts elem as the new last element (right before head),
// matching pmemobj_list_add_tail.
func AddTail(tx *transaction.Tx, head, elem oid.Oid, fieldOffset uintptr) error {
	return InsertBefore(tx, head, elem, fieldOffset)
}

// Del unlinks elem from whatever list it's on, leaving elem's own Entry
// untouched (callers typically Free elem right after). Field-granular
// writes keep this correct in a two-node list, where elem's prev and
// next are the same surviving node.
func Del(tx *transaction.Tx, elem oid.Oid, fieldOffset uintptr) error {
	e := entryAt(elem, fieldOffset)
	prev, next := e.Prev, e.Next
	prevEntry := entryAt(prev, fieldOffset)
	nextEntry := entryAt(next, fieldOffset)

	if err := transaction.Set(tx, &prevEntry.Next, next); err != nil {
		return err
	}
	return transaction.Set(tx, &nextEntry.Prev, prev)
}

// Replace swaps oldElem for newElem in place: newElem takes oldElem's
// position, and oldElem is left unlinked. Field-granular writes keep
// this correct in a two-node list, where oldElem's prev and next are
// the same surviving node.
func Replace(tx *transaction.Tx, oldElem, newElem oid.Oid, fieldOffset uintptr) error {
	e := entryAt(oldElem, fieldOffset)
	prev, next := e.Prev, e.Next
	newE := entryAt(newElem, fieldOffset)
	prevEntry := entryAt(prev, fieldOffset)
	nextEntry := entryAt(next, fieldOffset)

	if err := transaction.Set(tx, &newE.Next, next); err != nil {
		return err
	}
	if err := transaction.Set(tx, &newE.Prev, prev); err != nil {
		return err
	}
	if err := transaction.Set(tx, &prevEntry.Next, newElem); err != nil {
		return err
	}
	return transaction.Set(tx, &nextEntry.Prev, newElem)
}

// IsLast reports whether elem is the last element before head.
func IsLast(head, elem oid.Oid, fieldOffset uintptr) bool {
	return oid.Equal(entryAt(elem, fieldOffset).Next, head)
}

// IsEmpty reports whether head has no elements.
func IsEmpty(head oid.Oid, fieldOffset uintptr) bool {
	return oid.Equal(entryAt(head, fieldOffset).Next, head)
}

// ForEach walks from head.Next to head (exclusive), calling fn on each
// element's Oid, stopping early if fn returns false.
func ForEach(head oid.Oid, fieldOffset uintptr, fn func(oid.Oid) bool) {
	for cur := entryAt(head, fieldOffset).Next; !oid.Equal(cur, head); {
		next := entryAt(cur, fieldOffset).Next
		if !fn(cur) {
			return
		}
		cur = next
	}
}

// ForEachReverse walks from head.Prev back to head (exclusive).
func ForEachReverse(head oid.Oid, fieldOffset uintptr, fn func(oid.Oid) bool) {
	for cur := entryAt(head, fieldOffset).Prev; !oid.Equal(cur, head); {
		prev := entryAt(cur, fieldOffset).Prev
		if !fn(cur) {
			return
		}
		cur = prev
	}
}
