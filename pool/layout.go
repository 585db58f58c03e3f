package pool

// MinPoolSize is the smallest file this package will map, mirroring
// PMEMOBJ_MIN_POOL from the original implementation: large enough for the
// header, root descriptor, transaction-recovery anchor, and a usable heap.
const MinPoolSize = 2 << 20 // 2 MiB

const (
	// rootDescLen is the fixed-layout root descriptor: an 8-byte offset
	// into the heap (0 meaning "not yet allocated") guarded by a
	// pmutex.Mutex cell (16 bytes: run id + pointer).
	rootDescLen = 8 + 16

	// TxSlotCount bounds how many top-level transactions may have
	// in-flight, not-yet-committed undo logs at once; a Begin call with
	// no free slot fails with perrors.ErrNoMem, matching the original's
	// fixed SLOGNUM/LLOGNUM sizing.
	TxSlotCount = 16

	// TxSlotCapacity bounds how many undo operations a single top-level
	// transaction (root frame, including everything spliced in from its
	// nested children) may log before committing or aborting.
	TxSlotCapacity = 64

	// TxSlotEntryLen is the on-disk size of one undo-log entry: a kind
	// byte (padded to 8), and three uint64 payload words wide enough for
	// either an Alloc/Free offset or a Set{dst,backup,len} triple.
	TxSlotEntryLen = 8 + 8 + 8 + 8

	// TxSlotLen is one slot: an in-use flag, an entry count, and its
	// entries.
	TxSlotLen = 8 + 8 + TxSlotCapacity*TxSlotEntryLen

	// TxAnchorLen is the whole crash-recovery log region.
	TxAnchorLen = TxSlotCount * TxSlotLen
)

// Fixed region offsets, in order: header, root descriptor, transaction
// recovery anchor, then the allocator-managed heap.
const (
	RootDescOffset = HeaderLen
	TxAnchorOffset = HeaderLen + rootDescLen
	HeapOffset     = HeaderLen + rootDescLen + TxAnchorLen
)
