// Package objlog is a simple append-only byte log built entirely out of
// the core primitives (the root object, a persistent mutex, and the
// transaction package's Memcpy/Set/Alloc/Free): grounded in the original
// object-store test's obj_log_basic scenario, which builds exactly this
// log shape - a root-resident {data, size, offset, mutex} header - out
// of the in-scope object store rather than the separate pmemlog_* file
// subsystem that spec's non-goals exclude.
package objlog

import (
	"unsafe"

	"github.com/mansub1029/go-pmem-store/oid"
	"github.com/mansub1029/go-pmem-store/pmutex"
	"github.com/mansub1029/go-pmem-store/transaction"
)

// Header is the log's persistent descriptor: the backing buffer, its
// capacity, the write offset, and the mutex guarding concurrent writers.
// Typically embedded in (or pointed to by) a pool's root object.
type Header struct {
	Data   oid.Oid
	Size   uint64
	Offset uint64
	Mutex  pmutex.Mutex
}

const minCap = 64

// Create initializes hdr as an empty log with at least cap bytes of
// backing storage. hdr must already be zeroed (as a fresh Zalloc or
// root object is).
func Create(tx *transaction.Tx, hdr *Header, cap uint64) error {
	if cap < minCap {
		cap = minCap
	}
	buf, err := transaction.Zalloc(tx, cap)
	if err != nil {
		return err
	}
	return transaction.Set(tx, hdr, Header{Data: buf, Size: cap, Offset: 0})
}

// Tell returns the current write offset (bytes appended so far).
func Tell(hdr *Header) uint64 { return hdr.Offset }

// NByte returns the backing buffer's capacity.
func NByte(hdr *Header) uint64 { return hdr.Size }

// Rewind resets the write offset to zero without releasing the backing
// buffer, so the next Append overwrites from the start.
func Rewind(tx *transaction.Tx, hdr *Header) error {
	return transaction.Set(tx, &hdr.Offset, uint64(0))
}

// Append writes data at the current offset, growing the backing buffer
// first if it doesn't have room. Growth copies the existing bytes into a
// fresh, larger allocation and frees the old one, all within tx, so a
// crash mid-grow is undone like any other transactional mutation.
func Append(tx *transaction.Tx, hdr *Header, data []byte) error {
	if err := hdr.Mutex.Lock(); err != nil {
		return err
	}
	defer hdr.Mutex.Unlock()

	need := hdr.Offset + uint64(len(data))
	if need > hdr.Size {
		if err := grow(tx, hdr, need); err != nil {
			return err
		}
	}

	dst := unsafe.Pointer(uintptr(hdr.Data.Direct()) + uintptr(hdr.Offset))
	if len(data) > 0 {
		if err := transaction.Memcpy(tx, dst, unsafe.Pointer(&data[0]), uint64(len(data))); err != nil {
			return err
		}
	}
	return transaction.Set(tx, &hdr.Offset, hdr.Offset+uint64(len(data)))
}

func grow(tx *transaction.Tx, hdr *Header, need uint64) error {
	newCap := hdr.Size * 2
	if newCap < need {
		newCap = need
	}

	newBuf, err := transaction.Zalloc(tx, newCap)
	if err != nil {
		return err
	}
	if hdr.Offset > 0 {
		if err := transaction.Memcpy(tx, newBuf.Direct(), hdr.Data.Direct(), hdr.Offset); err != nil {
			return err
		}
	}
	oldData := hdr.Data
	if err := transaction.Set(tx, hdr, Header{Data: newBuf, Size: newCap, Offset: hdr.Offset, Mutex: hdr.Mutex}); err != nil {
		return err
	}
	return transaction.Free(tx, oldData)
}

// Walk delivers the written region [0, Tell(hdr)) to fn in pieces of at
// most chunkSize bytes each, in order; chunkSize == 0 means "the whole
// region in one call" (so Walk(hdr, 0, fn) matches the old single-call
// behavior). It performs no locking of its own; callers reading
// concurrently with writers should hold hdr.Mutex themselves.
func Walk(hdr *Header, chunkSize uint64, fn func(data []byte)) {
	if hdr.Offset == 0 {
		fn(nil)
		return
	}
	region := unsafe.Slice((*byte)(hdr.Data.Direct()), hdr.Offset)
	if chunkSize == 0 || chunkSize >= hdr.Offset {
		fn(region)
		return
	}
	for off := uint64(0); off < hdr.Offset; off += chunkSize {
		end := off + chunkSize
		if end > hdr.Offset {
			end = hdr.Offset
		}
		fn(region[off:end])
	}
}
