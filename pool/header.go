package pool

import (
	"encoding/binary"

	"github.com/google/uuid"
	"github.com/klauspost/crc32"
)

// Header is the fixed-layout, wire-format first 64 bytes of a pool file:
// 16-byte ASCII signature, major version, three feature bitmasks, a UUID,
// a creation time, and a checksum of everything before it. Multi-byte
// integers are little-endian on disk regardless of host order, matching
// spec's external-interface layout.
type Header struct {
	Signature       [16]byte
	Major           uint32
	CompatFeatures  uint32
	IncompatFeature uint32
	RoCompatFeature uint32
	UUID            [16]byte
	Crtime          uint64
	Checksum        uint64
}

const (
	// HeaderLen is the on-disk size of Header.
	HeaderLen = 16 + 4 + 4 + 4 + 4 + 16 + 8 + 8

	// headerSig is written to every pool this package creates.
	headerSig = "GOPMEMOBJPOOL\x00\x00\x00"

	// FormatMajor is the only major format version this package
	// understands; a mismatch refuses the open, per spec.
	FormatMajor = 1
)

// Feature bitmasks. Bit 0 of each category is defined; everything else is
// reserved for a future format revision to exercise the compat/ro-compat/
// incompat split described in spec.md section 6.
const (
	CompatSupported   uint32 = 0x1
	IncompatSupported uint32 = 0x1
	RoCompatSupported uint32 = 0x1
)

func init() {
	if len(headerSig) != 16 {
		panic("pool: headerSig must be exactly 16 bytes")
	}
}

// encode serializes h into its 64-byte little-endian wire form.
func (h *Header) encode() [HeaderLen]byte {
	var b [HeaderLen]byte
	copy(b[0:16], h.Signature[:])
	binary.LittleEndian.PutUint32(b[16:20], h.Major)
	binary.LittleEndian.PutUint32(b[20:24], h.CompatFeatures)
	binary.LittleEndian.PutUint32(b[24:28], h.IncompatFeature)
	binary.LittleEndian.PutUint32(b[28:32], h.RoCompatFeature)
	copy(b[32:48], h.UUID[:])
	binary.LittleEndian.PutUint64(b[48:56], h.Crtime)
	binary.LittleEndian.PutUint64(b[56:64], h.Checksum)
	return b
}

// decodeHeader parses the 64-byte wire form back into a Header.
func decodeHeader(b []byte) Header {
	var h Header
	copy(h.Signature[:], b[0:16])
	h.Major = binary.LittleEndian.Uint32(b[16:20])
	h.CompatFeatures = binary.LittleEndian.Uint32(b[20:24])
	h.IncompatFeature = binary.LittleEndian.Uint32(b[24:28])
	h.RoCompatFeature = binary.LittleEndian.Uint32(b[28:32])
	copy(h.UUID[:], b[32:48])
	h.Crtime = binary.LittleEndian.Uint64(b[48:56])
	h.Checksum = binary.LittleEndian.Uint64(b[56:64])
	return h
}

// checksum64 combines two CRC-32 passes (IEEE and Castagnoli polynomials)
// over the same bytes into a 64-bit checksum, matching the header's
// on-disk 8-byte checksum field without reaching for a dedicated 64-bit
// hash dependency the rest of the pack doesn't otherwise exercise.
func checksum64(b []byte) uint64 {
	lo := crc32.ChecksumIEEE(b)
	hi := crc32.Checksum(b, crc32.MakeTable(crc32.Castagnoli))
	return uint64(hi)<<32 | uint64(lo)
}

// headerChecksum computes the checksum of h with its own Checksum field
// treated as zero, per spec.
func headerChecksum(h Header) uint64 {
	h.Checksum = 0
	b := h.encode()
	return checksum64(b[:])
}

// validHeader reports whether b decodes to a header carrying this
// package's signature and a matching checksum. An all-zero header (never valid) is reported as invalid too,
// distinguishing "needs initialization" from "corrupt".
func validHeader(b []byte) (Header, bool) {
	h := decodeHeader(b)
	allZero := true
	for _, c := range b {
		if c != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return h, false
	}
	return h, string(h.Signature[:]) == headerSig && headerChecksum(h) == h.Checksum
}

func newHeader() Header {
	h := Header{
		Major:           FormatMajor,
		CompatFeatures:  CompatSupported,
		IncompatFeature: IncompatSupported,
		RoCompatFeature: RoCompatSupported,
		Crtime:          uint64(nowUnix()),
	}
	copy(h.Signature[:], headerSig)
	id := uuid.New()
	copy(h.UUID[:], id[:])
	h.Checksum = headerChecksum(h)
	return h
}
