package block

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	magicSize           = 32
	offMagic            = 0
	offVersion          = 32
	offVolumePrefixID   = 36
	offPrimaryIndexOff  = 40
	offSecondaryIndexOff = 48
	offTailOffset       = 56
	offShardIDs         = 64
	numShardSlots       = 8
	offHeaderCRC        = 72
	headerCRCEnd        = offHeaderCRC + 4 // 76: bytes [0,72) are covered by the CRC

	// CurrentVersion is the only version_number this module writes or accepts.
	CurrentVersion uint32 = 1

	// MinVolumePrefixID is the smallest legal volume_prefix_id (2^24).
	MinVolumePrefixID uint32 = 1 << 24
)

// Magic identifies a valid header block. spec.md 9 leaves the
// magic-number check as an open question (commented out in the source);
// this module resolves it by enforcing the check against this constant
// (see DESIGN.md, Open Question 1).
var Magic = [magicSize]byte{'e', 'c', 'v', 'o', 'l', 'u', 'm', 'e', '-', 'h', 'd', 'r', '-', 'v', '1'}

// ErrBadMagic is returned by ValidateHeader when the magic field does
// not match Magic.
var ErrBadMagic = errors.New("block: bad header magic")

// ErrBadVersion is returned by ValidateHeader for an unsupported version_number.
var ErrBadVersion = errors.New("block: unsupported version_number")

// ErrBadVolumePrefixID is returned by ValidateHeader when volume_prefix_id < 2^24.
var ErrBadVolumePrefixID = errors.New("block: volume_prefix_id below 2^24")

// ErrBadHeaderChecksum is returned by ValidateHeader on a CRC32C mismatch.
var ErrBadHeaderChecksum = errors.New("block: header_crc32c mismatch")

// ErrShardIDNotFound is the contract violation offset_to_block raises
// when asked for a shard id that is not present in the header's
// shard_ids array.
var ErrShardIDNotFound = errors.New("block: shard id not present in header")

// Header is the first 4096-byte page of a volume.
type Header []byte

// NewHeader allocates a zeroed header.
func NewHeader() Header {
	return make(Header, Size)
}

func (h Header) VersionNumber() uint32 { return binary.LittleEndian.Uint32(h[offVersion:]) }
func (h Header) SetVersionNumber(v uint32) {
	binary.LittleEndian.PutUint32(h[offVersion:], v)
}

func (h Header) VolumePrefixID() uint32 { return binary.LittleEndian.Uint32(h[offVolumePrefixID:]) }
func (h Header) SetVolumePrefixID(v uint32) {
	binary.LittleEndian.PutUint32(h[offVolumePrefixID:], v)
}

func (h Header) PrimaryIndexOffset() uint64 {
	return binary.LittleEndian.Uint64(h[offPrimaryIndexOff:])
}
func (h Header) SetPrimaryIndexOffset(v uint64) {
	binary.LittleEndian.PutUint64(h[offPrimaryIndexOff:], v)
}

func (h Header) SecondaryIndexOffset() uint64 {
	return binary.LittleEndian.Uint64(h[offSecondaryIndexOff:])
}
func (h Header) SetSecondaryIndexOffset(v uint64) {
	binary.LittleEndian.PutUint64(h[offSecondaryIndexOff:], v)
}

func (h Header) TailOffset() uint64 { return binary.LittleEndian.Uint64(h[offTailOffset:]) }
func (h Header) SetTailOffset(v uint64) {
	binary.LittleEndian.PutUint64(h[offTailOffset:], v)
}

// ShardIDs returns the 8 shard_ids slots.
func (h Header) ShardIDs() [numShardSlots]byte {
	var ids [numShardSlots]byte
	copy(ids[:], h[offShardIDs:offShardIDs+numShardSlots])
	return ids
}

// SetShardIDs sets the shard_ids field from a non-decreasing list of up
// to 8 distinct ids; if fewer than 8 are given, the last is repeated to
// fill the remaining slots, per spec.md 3.
func (h Header) SetShardIDs(ids []byte) error {
	if len(ids) == 0 || len(ids) > numShardSlots {
		return errors.Errorf("block: SetShardIDs: got %d ids, want 1..%d", len(ids), numShardSlots)
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] < ids[i-1] {
			return errors.New("block: SetShardIDs: ids must be non-decreasing")
		}
	}
	buf := h[offShardIDs : offShardIDs+numShardSlots]
	copy(buf, ids)
	last := ids[len(ids)-1]
	for i := len(ids); i < numShardSlots; i++ {
		buf[i] = last
	}
	return nil
}

func (h Header) headerCRC() uint32 { return binary.LittleEndian.Uint32(h[offHeaderCRC:]) }

// Stamp writes the magic and computes header_crc32c over bytes
// [0,72), making the header immediately valid per ValidateHeader.
func (h Header) Stamp() error {
	if err := checkSize(h); err != nil {
		return err
	}
	copy(h[offMagic:offMagic+magicSize], Magic[:])
	binary.LittleEndian.PutUint32(h[offHeaderCRC:], crc32c(h[:offHeaderCRC]))
	return nil
}

// ValidateHeader checks magic, version_number, volume_prefix_id, and
// header_crc32c.
func ValidateHeader(h Header) error {
	if err := checkSize(h); err != nil {
		return err
	}
	if string(h[offMagic:offMagic+magicSize]) != string(Magic[:]) {
		return ErrBadMagic
	}
	if h.VersionNumber() != CurrentVersion {
		return ErrBadVersion
	}
	if h.VolumePrefixID() < MinVolumePrefixID {
		return ErrBadVolumePrefixID
	}
	if crc32c(h[:offHeaderCRC]) != h.headerCRC() {
		return ErrBadHeaderChecksum
	}
	return nil
}

// KBlocksInStripe returns K: 8 minus the count of trailing duplicate
// shard_ids entries.
func KBlocksInStripe(h Header) int {
	ids := h.ShardIDs()
	k := numShardSlots
	for k > 1 && ids[k-1] == ids[k-2] {
		k--
	}
	return k
}

// OffsetToBlock returns the byte offset (always a multiple of Size) of
// the block for (stripe, shardID): 4096*K*stripe +
// 4096*position(shardID in shard_ids). If shardID is not one of the K
// distinct ids in the header, this is a contract violation and panics,
// per spec.md 4.E.
func OffsetToBlock(h Header, stripe uint64, shardID byte) int64 {
	k := KBlocksInStripe(h)
	ids := h.ShardIDs()
	pos := -1
	for i := 0; i < k; i++ {
		if ids[i] == shardID {
			pos = i
			break
		}
	}
	if pos == -1 {
		panic(errors.Wrapf(ErrShardIDNotFound, "shard id %d, stripe %d", shardID, stripe).Error())
	}
	return int64(Size)*int64(k)*int64(stripe) + int64(Size)*int64(pos)
}

// StripeShardFromOffset is the inverse of OffsetToBlock: given a byte
// offset into the data region known to address a block boundary, it
// returns the stripe number and shard id at that offset. This is the
// supplement SPEC_FULL.md 4 adds so that a caller holding only the
// offset of a completed read can label it; package ioshim itself does
// not call it.
func StripeShardFromOffset(h Header, offset int64) (stripe uint64, shardID byte, err error) {
	k := KBlocksInStripe(h)
	stripeSize := int64(Size) * int64(k)
	if offset < 0 || offset%int64(Size) != 0 {
		return 0, 0, errors.Errorf("block: offset %d is not block-aligned", offset)
	}
	stripe = uint64(offset / stripeSize)
	pos := int((offset % stripeSize) / int64(Size))
	ids := h.ShardIDs()
	return stripe, ids[pos], nil
}
