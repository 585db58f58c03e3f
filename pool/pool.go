// Package pool implements the pool file mapper: header validation and
// creation, mmap lifecycle, the allocator-backed heap, the lazily
// allocated root object, and the fixed-layout transaction recovery
// anchor that the transaction package replays on Open.
package pool

import (
	"os"
	"unsafe"

	"github.com/NebulousLabs/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/mansub1029/go-pmem-store/palloc"
	"github.com/mansub1029/go-pmem-store/perrors"
	"github.com/mansub1029/go-pmem-store/pmem"
	"github.com/mansub1029/go-pmem-store/pmutex"
)

// RecoverHook, if non-nil, is invoked by Open after the heap allocator is
// ready, with the pool's transaction-recovery anchor already mapped. The
// transaction package registers itself here from an init func; pool
// cannot import transaction directly without a cycle, since a Tx also
// needs a *Pool.
var RecoverHook func(p *Pool) error

// Pool is an open, memory-mapped pool file.
type Pool struct {
	path     string
	file     *os.File
	data     []byte
	isPmem   bool
	readOnly bool
	log      *zap.Logger
	alloc    *palloc.Allocator
}

// Open maps path into memory, validating (or, with WithCreate, creating)
// its header, and runs transaction recovery before returning.
func Open(path string, opts ...Option) (*Pool, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = envLogger()
	}

	flags := os.O_RDWR
	if o.create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, orDefaultMode(o.mode))
	if err != nil {
		return nil, errors.Extend(err, perrors.ErrInvalidPool)
	}

	size, err := ensureSize(f, o)
	if err != nil {
		f.Close()
		return nil, err
	}
	if size < MinPoolSize {
		f.Close()
		return nil, perrors.ErrTooSmall
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errors.Extend(err, perrors.ErrInvalidPool)
	}

	p := &Pool{
		path:   path,
		file:   f,
		data:   data,
		isPmem: pmem.IsPmem(unsafe.Pointer(&data[0]), uintptr(len(data))),
		log:    o.logger,
	}

	if err := p.initHeader(o); err != nil {
		unix.Munmap(data)
		f.Close()
		return nil, err
	}

	if p.readOnly {
		if err := unix.Mprotect(data, unix.PROT_READ); err != nil {
			unix.Munmap(data)
			f.Close()
			return nil, errors.Extend(err, perrors.ErrInvalidPool)
		}
	}

	alloc, err := palloc.New(data[HeapOffset:], p.isPmem)
	if err != nil {
		unix.Munmap(data)
		f.Close()
		return nil, errors.Extend(err, perrors.ErrInvalidPool)
	}
	p.alloc = alloc

	p.log.Info("pool opened",
		zap.String("path", path),
		zap.Uint64("size", size),
		zap.Bool("is_pmem", p.isPmem),
		zap.Bool("read_only", p.readOnly),
	)

	// An unrecognized ro-compat bit means this version must not write to
	// the pool at all, including replaying someone else's undo log - so
	// recovery is skipped rather than run against a read-only mapping.
	if p.readOnly {
		p.log.Warn("pool has an unrecognized ro-compat feature bit; opening read-only, recovery skipped")
		return p, nil
	}

	if RecoverHook != nil {
		if err := RecoverHook(p); err != nil {
			p.log.Error("transaction recovery failed", zap.Error(err))
			unix.Munmap(data)
			f.Close()
			return nil, err
		}
	}

	return p, nil
}

func orDefaultMode(m os.FileMode) os.FileMode {
	if m == 0 {
		return 0o644
	}
	return m
}

func ensureSize(f *os.File, o options) (uint64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, errors.Extend(err, perrors.ErrInvalidPool)
	}
	size := uint64(fi.Size())
	if size != 0 {
		return size, nil
	}
	if !o.create {
		return 0, perrors.ErrInvalidPool
	}
	size = o.size
	if size < MinPoolSize {
		size = MinPoolSize
	}
	if err := f.Truncate(int64(size)); err != nil {
		return 0, errors.Extend(err, perrors.ErrInvalidPool)
	}
	return size, nil
}

// initHeader validates an existing header, or writes a fresh one into a
// newly truncated (all-zero) file.
func (p *Pool) initHeader(o options) error {
	raw := p.data[0:HeaderLen]
	h, ok := validHeader(raw)
	if ok {
		if h.Major != FormatMajor {
			return perrors.ErrWrongVersion
		}
		if h.IncompatFeature&^IncompatSupported != 0 {
			return perrors.ErrIncompatFeature
		}
		if h.RoCompatFeature&^RoCompatSupported != 0 {
			p.readOnly = true
		}
		return nil
	}

	allZero := true
	for _, b := range raw {
		if b != 0 {
			allZero = false
			break
		}
	}
	if !allZero {
		return perrors.ErrInvalidPool
	}
	if !o.create {
		return perrors.ErrInvalidPool
	}

	nh := newHeader()
	enc := nh.encode()
	copy(raw, enc[:])
	return pmem.Persist(p.isPmem, unsafe.Pointer(&p.data[0]), HeaderLen)
}

// Close unmaps and closes the pool file.
func (p *Pool) Close() error {
	var errs error
	if err := unix.Munmap(p.data); err != nil {
		errs = errors.Compose(errs, err)
	}
	if err := p.file.Close(); err != nil {
		errs = errors.Compose(errs, err)
	}
	return errs
}

// Check validates the header and reports whether the pool is consistent.
// It does not attempt the deeper structural walk a dedicated fsck tool
// would perform; that is out of scope per spec's non-goals.
func (p *Pool) Check() error {
	_, ok := validHeader(p.data[0:HeaderLen])
	if !ok {
		return perrors.ErrInvalidPool
	}
	return nil
}

// OpenMirrored is documented API surface for a replicated pool; mirrored
// pools are explicitly out of scope, so this always fails.
func OpenMirrored(primary, mirror string, opts ...Option) (*Pool, error) {
	return nil, perrors.ErrNotImplemented
}

// Base returns the process address the pool is mapped at, the left side
// of every Oid dereference.
func (p *Pool) Base() uintptr { return uintptr(unsafe.Pointer(&p.data[0])) }

// Data exposes the full mapped region for packages (transaction, list,
// objlog) that need to compute addresses or slice sub-regions directly.
func (p *Pool) Data() []byte { return p.data }

// Size returns the mapped length in bytes.
func (p *Pool) Size() uint64 { return uint64(len(p.data)) }

// IsPmem reports whether the mapping is backed by a DAX-mounted file.
func (p *Pool) IsPmem() bool { return p.isPmem }

// ReadOnly reports whether the pool was opened read-only because its
// header declared a ro-compat feature bit this version doesn't
// recognize. Every mutating entry point (transaction.Begin foremost)
// must check this and fail rather than write into a read-only mapping.
func (p *Pool) ReadOnly() bool { return p.readOnly }

// Allocator returns the heap allocator backing pmalloc/pfree.
func (p *Pool) Allocator() *palloc.Allocator { return p.alloc }

// Logger returns the pool's structured logger.
func (p *Pool) Logger() *zap.Logger { return p.log }

// rootMutex returns the pmutex.Mutex cell guarding lazy root allocation.
func (p *Pool) rootMutex() *pmutex.Mutex {
	return (*pmutex.Mutex)(unsafe.Pointer(&p.data[RootDescOffset+8]))
}

func (p *Pool) rootOffsetPtr() *uint64 {
	return (*uint64)(unsafe.Pointer(&p.data[RootDescOffset]))
}
