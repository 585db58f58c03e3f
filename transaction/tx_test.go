package transaction

import (
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/mansub1029/go-pmem-store/oid"
	"github.com/mansub1029/go-pmem-store/pool"
)

func openTestPool(t *testing.T) *pool.Pool {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.pool")
	p, err := pool.Open(path, pool.WithCreate(pool.MinPoolSize, 0o644))
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestUpdateCommitsAllocation(t *testing.T) {
	p := openTestPool(t)

	var obj oid.Oid
	err := Update(p, func(tx *Tx) error {
		o, err := Alloc(tx, 64)
		if err != nil {
			return err
		}
		obj = o
		return nil
	})
	require.NoError(t, err)
	require.False(t, obj.IsNull())
}

func TestUpdateAbortsOnError(t *testing.T) {
	p := openTestPool(t)

	before := p.Allocator()
	off1, err := before.Alloc(32)
	require.NoError(t, err)
	require.NoError(t, before.Free(off1))

	wantErr := require.New(t)
	err = Update(p, func(tx *Tx) error {
		_, aerr := Alloc(tx, 32)
		if aerr != nil {
			return aerr
		}
		return errSentinel
	})
	wantErr.ErrorIs(err, errSentinel)

	// The allocator must have rolled back to the same free offset, since
	// the only allocation in the failed transaction was undone.
	off2, err := before.Alloc(32)
	require.NoError(t, err)
	require.Equal(t, off1, off2)
}

func TestSetRollsBackOnAbort(t *testing.T) {
	p := openTestPool(t)

	type payload struct{ N int64 }
	var obj oid.Oid
	require.NoError(t, Update(p, func(tx *Tx) error {
		o, err := Zalloc(tx, uint64(unsafe.Sizeof(payload{})))
		if err != nil {
			return err
		}
		obj = o
		return Set(tx, (*payload)(o.Direct()), payload{N: 1})
	}))

	err := Update(p, func(tx *Tx) error {
		if serr := Set(tx, (*payload)(obj.Direct()), payload{N: 42}); serr != nil {
			return serr
		}
		return errSentinel
	})
	require.ErrorIs(t, err, errSentinel)

	got := (*payload)(obj.Direct())
	require.Equal(t, int64(1), got.N, "Set must be undone when the enclosing transaction aborts")
}

func TestSetCommitsOnSuccess(t *testing.T) {
	p := openTestPool(t)

	type payload struct{ N int64 }
	var obj oid.Oid
	require.NoError(t, Update(p, func(tx *Tx) error {
		o, err := Zalloc(tx, uint64(unsafe.Sizeof(payload{})))
		if err != nil {
			return err
		}
		obj = o
		return Set(tx, (*payload)(o.Direct()), payload{N: 7})
	}))

	require.NoError(t, Update(p, func(tx *Tx) error {
		return Set(tx, (*payload)(obj.Direct()), payload{N: 99})
	}))

	got := (*payload)(obj.Direct())
	require.Equal(t, int64(99), got.N)
}

func TestNestedTransactionSplicesIntoRoot(t *testing.T) {
	p := openTestPool(t)

	var inner oid.Oid
	require.NoError(t, Update(p, func(tx *Tx) error {
		child, err := Begin(p, tx)
		if err != nil {
			return err
		}
		o, err := Alloc(child, 16)
		if err != nil {
			return err
		}
		inner = o
		return Commit(child)
	}))
	require.False(t, inner.IsNull())
}

func TestNestedAbortUnwindsWholeStack(t *testing.T) {
	p := openTestPool(t)

	var outerObj, innerObj oid.Oid
	err := Update(p, func(tx *Tx) error {
		o1, err := Alloc(tx, 16)
		if err != nil {
			return err
		}
		outerObj = o1

		child, err := Begin(p, tx)
		if err != nil {
			return err
		}
		o2, err := Alloc(child, 16)
		if err != nil {
			return err
		}
		innerObj = o2
		if cerr := Commit(child); cerr != nil {
			return cerr
		}
		return errSentinel
	})
	require.ErrorIs(t, err, errSentinel)

	// Both allocations (the outer's own, and the inner's already-"committed"
	// nested one) must be rolled back: only the outermost commit is real.
	off, err := p.Allocator().Alloc(16)
	require.NoError(t, err)
	require.Contains(t, []uint64{p.FromOid(outerObj), p.FromOid(innerObj)}, off,
		"the reused free-list offset must be one of the two rolled-back allocations")
}

func TestBeginFailsWhenSlotsExhausted(t *testing.T) {
	p := openTestPool(t)

	var txs []*Tx
	for i := 0; i < pool.TxSlotCount; i++ {
		tx, err := Begin(p, nil)
		require.NoError(t, err)
		txs = append(txs, tx)
	}

	_, err := Begin(p, nil)
	require.Error(t, err)

	for _, tx := range txs {
		require.NoError(t, Commit(tx))
	}
}

func TestRecoverRollsBackAbandonedTransaction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crash.pool")
	p, err := pool.Open(path, pool.WithCreate(pool.MinPoolSize, 0o644))
	require.NoError(t, err)

	tx, err := Begin(p, nil)
	require.NoError(t, err)
	off, err := Alloc(tx, 32)
	require.NoError(t, err)
	require.False(t, off.IsNull())
	// Simulate a crash: never Commit or Abort, just close the mapping as
	// if the process died with this transaction's slot still marked
	// in-use.
	require.NoError(t, p.Close())

	p2, err := pool.Open(path)
	require.NoError(t, err)
	defer p2.Close()

	// Recovery should have freed the abandoned allocation; a fresh Alloc
	// of the same size should be able to reuse it.
	reused, err := p2.Allocator().Alloc(32)
	require.NoError(t, err)
	require.Equal(t, p.FromOid(off), reused)
}

var errSentinel = sentinelErr("sentinel failure")

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }
