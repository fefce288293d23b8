// Package spread implements the 16-byte round-robin byte-interleaving
// stage that maps a logical buffer to/from K shard buffers at memory
// bandwidth.
//
// No teacher file implements this directly; the chunked copy loop
// follows the same "fixed-size chunk, advance both cursors" shape as
// std/copy.go's Copy and generic/copy.go, routed round-robin across K
// destinations instead of a single one.
package spread

import "github.com/pkg/errors"

// chunkSize is the interleave granularity spec.md 4.D fixes at 16 bytes.
const chunkSize = 16

// ErrNotMultiple is returned when the logical buffer length is not a
// multiple of 16*K. Callers must pad; this package does not implement
// the optional round-robin-by-byte tail fallback spec.md 9 mentions as
// permitted but not required (see DESIGN.md open question 2).
var ErrNotMultiple = errors.New("spread: logical buffer length is not a multiple of 16*K")

// Spread demuxes logical (length L = 16*K*q) into K shard buffers
// out[0..K), each of length L/K, by copying 16-byte chunks round-robin:
// logical[0:16] -> out[0], logical[16:32] -> out[1], ...,
// logical[16(K-1):16K] -> out[K-1], logical[16K:16K+16] -> out[0], ...
func Spread(logical []byte, out [][]byte, k int) error {
	l := len(logical)
	if l%(chunkSize*k) != 0 {
		return errors.Wrapf(ErrNotMultiple, "len=%d, k=%d", l, k)
	}
	if len(out) != k {
		return errors.Errorf("spread: got %d output shards, want %d", len(out), k)
	}
	perShard := l / k
	for _, o := range out {
		if len(o) != perShard {
			return errors.Errorf("spread: output shard has length %d, want %d", len(o), perShard)
		}
	}

	shard := 0
	offsets := make([]int, k)
	for pos := 0; pos < l; pos += chunkSize {
		copy(out[shard][offsets[shard]:offsets[shard]+chunkSize], logical[pos:pos+chunkSize])
		offsets[shard] += chunkSize
		shard++
		if shard == k {
			shard = 0
		}
	}
	return nil
}

// Unspread is the exact inverse of Spread: it reassembles K shard
// buffers into a single logical buffer of length L = 16*K*q.
func Unspread(in [][]byte, logical []byte, k int) error {
	if len(in) != k {
		return errors.Errorf("unspread: got %d input shards, want %d", len(in), k)
	}
	l := len(logical)
	if l%(chunkSize*k) != 0 {
		return errors.Wrapf(ErrNotMultiple, "len=%d, k=%d", l, k)
	}
	perShard := l / k
	for _, s := range in {
		if len(s) != perShard {
			return errors.Errorf("unspread: input shard has length %d, want %d", len(s), perShard)
		}
	}

	shard := 0
	offsets := make([]int, k)
	for pos := 0; pos < l; pos += chunkSize {
		copy(logical[pos:pos+chunkSize], in[shard][offsets[shard]:offsets[shard]+chunkSize])
		offsets[shard] += chunkSize
		shard++
		if shard == k {
			shard = 0
		}
	}
	return nil
}
