// Package block implements the on-disk block/header layout: 4 KB
// self-checksumming blocks, the volume header block, and stripe/shard
// addressing arithmetic.
//
// Grounded on kcp-go/v5/fec.go's fecPacket type (a []byte with accessor
// methods built on encoding/binary over a fixed wire layout) for the
// "named accessors over a raw byte slice" shape, and on
// kcp-go/v5/sess.go's crc32.ChecksumIEEE stamp-then-verify pattern for
// checksum handling (this package uses CRC32C per spec.md instead of
// the IEEE polynomial kcp-go uses for its own packets).
package block

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Size is the fixed on-disk size of every block, data or header.
const Size = 4096

// PayloadSize is the number of payload bytes carried by a data block.
const PayloadSize = Size - 16

const (
	offChecksum   = 0
	offSeq        = 4
	offStripe     = 8 // 7 bytes, little-endian
	stripeLen     = 7
	offShardID    = 15
	offPayload    = 16
)

// Block is one 4096-byte on-disk data block. The zero value is not a
// valid block; use NewBlock.
type Block []byte

// NewBlock allocates a zeroed block.
func NewBlock() Block {
	return make(Block, Size)
}

// ErrWrongSize is returned when a Block or Header is not exactly Size bytes.
var ErrWrongSize = errors.Errorf("block: buffer is not %d bytes", Size)

func checkSize(b []byte) error {
	if len(b) != Size {
		return ErrWrongSize
	}
	return nil
}

// Checksum returns the stored block_checksum field.
func (b Block) Checksum() uint32 { return binary.LittleEndian.Uint32(b[offChecksum:]) }

// SequenceNumber returns the stored block_sequence_number field.
func (b Block) SequenceNumber() uint32 { return binary.LittleEndian.Uint32(b[offSeq:]) }

// SetSequenceNumber sets block_sequence_number.
func (b Block) SetSequenceNumber(n uint32) { binary.LittleEndian.PutUint32(b[offSeq:], n) }

// StripeNumber returns the stored 56-bit stripe_number field.
func (b Block) StripeNumber() uint64 { return getUint56(b[offStripe:]) }

// SetStripeNumber sets the 56-bit stripe_number field. n must fit in 56 bits.
func (b Block) SetStripeNumber(n uint64) { putUint56(b[offStripe:], n) }

// ShardID returns the stored shard_id field.
func (b Block) ShardID() byte { return b[offShardID] }

// SetShardID sets the shard_id field.
func (b Block) SetShardID(id byte) { b[offShardID] = id }

// Payload returns the 4080-byte data payload region.
func (b Block) Payload() []byte { return b[offPayload:Size] }

// Stamp computes CRC32C over bytes [4,4096) and writes it into
// block_checksum, making the block immediately valid per ValidateBlock.
func (b Block) Stamp() error {
	if err := checkSize(b); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b[offChecksum:], crc32c(b[4:Size]))
	return nil
}

// ValidateBlock reports whether CRC32C over bytes [4,4096) matches the
// stored block_checksum.
func ValidateBlock(b Block) (bool, error) {
	if err := checkSize(b); err != nil {
		return false, err
	}
	return crc32c(b[4:Size]) == b.Checksum(), nil
}

// getUint56 reads a 7-byte little-endian unsigned integer.
func getUint56(b []byte) uint64 {
	_ = b[6]
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48
}

// putUint56 writes a 7-byte little-endian unsigned integer. n must fit
// in 56 bits; this is a contract violation otherwise (stripe numbers are
// bounded by the volume's own geometry, never by untrusted input), so it
// panics rather than silently truncating.
func putUint56(b []byte, n uint64) {
	_ = b[6]
	if n>>56 != 0 {
		panic("block: stripe number does not fit in 56 bits")
	}
	b[0] = byte(n)
	b[1] = byte(n >> 8)
	b[2] = byte(n >> 16)
	b[3] = byte(n >> 24)
	b[4] = byte(n >> 32)
	b[5] = byte(n >> 40)
	b[6] = byte(n >> 48)
}
