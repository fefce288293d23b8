// Package rs implements the Reed-Solomon coder: systematic encode,
// erasure decode from any valid survivor set, and a generalized
// shard-set transform, built on package gf and package matrix.
//
// Grounded on github.com/klauspost/reedsolomon's New/Encode/reconstruct
// control flow (vendored under _examples/xtaci-kcptun), adapted to
// spec.md's Coder state (an explicit N x K generator matrix with an
// identity top block) and to the generalized Transform operation
// spec.md 4.C calls for, which the reference package does not expose.
package rs

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/xtaci/ecvolume/gf"
	"github.com/xtaci/ecvolume/matrix"
)

// ErrInvalidShardCount is returned by New when K or M is out of range.
var ErrInvalidShardCount = errors.New("rs: K and M must be positive with K+M <= 255")

// ErrShardSize is returned when shard buffers are not all shardSize long.
var ErrShardSize = errors.New("rs: shard buffer size mismatch")

// ErrTooManyErasures is returned by Decode when more than M shards are
// marked erased -- there are not enough survivors to reconstruct.
var ErrTooManyErasures = errors.New("rs: more erasures than parity shards")

// ErrSingularShardSet is returned by Decode/Transform when the caller's
// survivor or input set is linearly dependent and cannot be inverted.
var ErrSingularShardSet = errors.New("rs: shard set is linearly dependent")

// Coder holds one (DataShards, ParityShards) Reed-Solomon configuration:
// an N x K generator matrix G whose top K x K block is the identity, and
// a cache of previously-inverted survivor submatrices keyed by the set
// of surviving row indices used (mirrors the inversion-tree idea described in
// the reference package's reconstruct comments).
type Coder struct {
	dataShards   int
	parityShards int
	shards       int
	g            matrix.Matrix // N x K generator
	parity       matrix.Matrix // M x K, = g[K:N]

	cacheMu sync.Mutex
	cache   map[string]matrix.Matrix
}

// DataShards returns K.
func (c *Coder) DataShards() int { return c.dataShards }

// ParityShards returns M.
func (c *Coder) ParityShards() int { return c.parityShards }

// TotalShards returns N = K+M.
func (c *Coder) TotalShards() int { return c.shards }

// New constructs a Coder for K data shards and M parity shards.
//
// Construction: build an N x K Cauchy matrix V, invert its top K x K
// block T, and set G = V * T^-1 so that G's top K x K block is the
// identity (systematic form) and the bottom M x K block is the parity
// matrix. Cauchy matrices always have an invertible top block, so this
// inversion cannot fail once V is built. Building V needs N+K = 2K+M
// distinct field elements, so when 2K+M > 256 New returns an error
// wrapping matrix.ErrDimension even though K+M <= 255.
func New(dataShards, parityShards int) (*Coder, error) {
	if dataShards <= 0 || parityShards <= 0 || dataShards+parityShards > 255 {
		return nil, errors.Wrapf(ErrInvalidShardCount, "New(%d,%d)", dataShards, parityShards)
	}
	gf.InitGF()

	n := dataShards + parityShards
	k := dataShards

	v, err := matrix.Cauchy(n, k)
	if err != nil {
		return nil, errors.Wrap(err, "rs.New: building Cauchy matrix")
	}
	top, err := v.SubMatrix(0, 0, k, k)
	if err != nil {
		return nil, errors.Wrap(err, "rs.New: extracting top submatrix")
	}
	topInv, err := top.Invert(k)
	if err != nil {
		return nil, errors.Wrap(err, "rs.New: Cauchy top block was singular (should not happen)")
	}
	g, err := v.Multiply(topInv)
	if err != nil {
		return nil, errors.Wrap(err, "rs.New: computing generator matrix")
	}
	parity, err := g.SubMatrix(k, 0, n, k)
	if err != nil {
		return nil, errors.Wrap(err, "rs.New: extracting parity submatrix")
	}

	return &Coder{
		dataShards:   dataShards,
		parityShards: parityShards,
		shards:       n,
		g:            g,
		parity:       parity,
		cache:        make(map[string]matrix.Matrix),
	}, nil
}

func checkShardSize(shards [][]byte, shardSize int) error {
	for i, s := range shards {
		if s != nil && len(s) != shardSize {
			return errors.Wrapf(ErrShardSize, "shard %d has length %d, want %d", i, len(s), shardSize)
		}
	}
	return nil
}

// Encode computes the M parity shards from the K data shards.
//
// For each parity row i, parity[i] = sum_j P[i][j] * data[j] in
// GF(2^8). A coefficient of 0 is skipped; a coefficient of 1 accumulates
// by byte copy (first term) or XOR (subsequent terms) via gf.BulkAdd;
// any other coefficient accumulates via gf.BulkMul/BulkMulAdd.
func (c *Coder) Encode(data, parity [][]byte, shardSize int) error {
	if len(data) != c.dataShards {
		return errors.Errorf("rs.Encode: got %d data shards, want %d", len(data), c.dataShards)
	}
	if len(parity) != c.parityShards {
		return errors.Errorf("rs.Encode: got %d parity shards, want %d", len(parity), c.parityShards)
	}
	if err := checkShardSize(data, shardSize); err != nil {
		return err
	}
	if err := checkShardSize(parity, shardSize); err != nil {
		return err
	}
	applyMatrixRows(c.parity, data, parity, shardSize)
	return nil
}

// applyMatrixRows computes outputs[i] = sum_j rows[i][j] * inputs[j] for
// every output row, using the coefficient-driven fast paths from
// spec.md 4.C: 0 skips, 1 copies/XORs, anything else multiplies.
func applyMatrixRows(rows matrix.Matrix, inputs, outputs [][]byte, shardSize int) {
	for i := 0; i < rows.Rows(); i++ {
		out := outputs[i]
		started := false
		for j, coeff := range rows[i] {
			if coeff == 0 {
				continue
			}
			in := inputs[j]
			switch {
			case !started && coeff == 1:
				copy(out, in[:shardSize])
			case !started:
				gf.BulkMul(out, in, coeff, shardSize)
			case coeff == 1:
				gf.BulkAdd(out, in, shardSize)
			default:
				gf.BulkMulAdd(out, in, coeff, shardSize)
			}
			started = true
		}
		if !started {
			for k := range out[:shardSize] {
				out[k] = 0
			}
		}
	}
}

// Decode reconstructs every shard marked in erased, given the surviving
// shards in shards. len(shards) and len(erased) must equal TotalShards().
// count(erased) must not exceed ParityShards(), or ErrTooManyErasures is
// returned. Reconstructed shard buffers are written in place into
// shards[i] for every erased i; shards[i] must already be sized
// shardSize for every i (erased or not) since it doubles as the output
// buffer.
func (c *Coder) Decode(shards [][]byte, erased []bool, shardSize int) error {
	if len(shards) != c.shards || len(erased) != c.shards {
		return errors.Errorf("rs.Decode: got %d shards/%d erasure flags, want %d", len(shards), len(erased), c.shards)
	}
	var erasedIdx []int
	for i, e := range erased {
		if e {
			erasedIdx = append(erasedIdx, i)
		}
	}
	if len(erasedIdx) == 0 {
		return nil
	}
	if len(erasedIdx) > c.parityShards {
		return errors.Wrapf(ErrTooManyErasures, "%d erasures, only %d parity shards", len(erasedIdx), c.parityShards)
	}
	if err := checkShardSize(shards, shardSize); err != nil {
		return err
	}

	survivorIdx := make([]int, 0, c.dataShards)
	for i := 0; i < c.shards && len(survivorIdx) < c.dataShards; i++ {
		if !erased[i] {
			survivorIdx = append(survivorIdx, i)
		}
	}
	if len(survivorIdx) < c.dataShards {
		return errors.Wrapf(ErrTooManyErasures, "only %d surviving shards, need %d", len(survivorIdx), c.dataShards)
	}

	sInv, err := c.invertedSurvivorMatrix(survivorIdx)
	if err != nil {
		return err
	}

	survivorShards := make([][]byte, c.dataShards)
	for i, idx := range survivorIdx {
		survivorShards[i] = shards[idx]
	}

	// R = G[erasedIdx, :] * sInv maps the surviving shards directly to
	// every erased shard, data or parity alike.
	erasedRows := matrix.New(len(erasedIdx), c.dataShards)
	for i, idx := range erasedIdx {
		copy(erasedRows[i], c.g[idx])
	}
	r, err := erasedRows.Multiply(sInv)
	if err != nil {
		return errors.Wrap(err, "rs.Decode: computing reconstruction matrix")
	}

	outputs := make([][]byte, len(erasedIdx))
	for i, idx := range erasedIdx {
		outputs[i] = shards[idx]
	}
	applyMatrixRows(r, survivorShards, outputs, shardSize)
	return nil
}

// invertedSurvivorMatrix builds the K x K submatrix of G at rows
// survivorIdx (columns unchanged) and returns its inverse, consulting
// and populating c.cache first so repeated decodes against the same
// erasure pattern skip the Gauss-Jordan pass.
func (c *Coder) invertedSurvivorMatrix(survivorIdx []int) (matrix.Matrix, error) {
	key := cacheKey(survivorIdx)

	c.cacheMu.Lock()
	if cached, ok := c.cache[key]; ok {
		c.cacheMu.Unlock()
		return cached, nil
	}
	c.cacheMu.Unlock()

	s := matrix.New(c.dataShards, c.dataShards)
	for row, idx := range survivorIdx {
		copy(s[row], c.g[idx])
	}
	sInv, err := s.Invert(c.dataShards)
	if err != nil {
		return nil, errors.Wrap(ErrSingularShardSet, "rs.Decode: survivor submatrix is singular (should not occur with a Cauchy generator)")
	}

	c.cacheMu.Lock()
	c.cache[key] = sInv
	c.cacheMu.Unlock()
	return sInv, nil
}

func cacheKey(idx []int) string {
	buf := make([]byte, len(idx)*2)
	for i, v := range idx {
		buf[2*i] = byte(v)
		buf[2*i+1] = byte(v >> 8)
	}
	return string(buf)
}

// Transform produces the shards named by outIDs as linear combinations
// of the shards named by inIDs, given a complete set of shard buffers
// indexed by shard id 0..N-1. len(inIDs) must equal DataShards(); inIDs
// must be linearly independent (e.g. the systematic K, or any valid
// survivor set) or ErrSingularShardSet is returned.
//
// Construction: A = G[inIDs,:], B = G[outIDs,:], R = B * A^-1; R is then
// applied to the input shard buffers exactly as Encode/Decode apply
// their matrices.
func (c *Coder) Transform(inIDs, outIDs []int, shards [][]byte, shardSize int) error {
	if len(inIDs) != c.dataShards {
		return errors.Errorf("rs.Transform: got %d input ids, want %d", len(inIDs), c.dataShards)
	}
	if err := checkShardSize(shards, shardSize); err != nil {
		return err
	}

	a := matrix.New(c.dataShards, c.dataShards)
	for row, id := range inIDs {
		if id < 0 || id >= c.shards {
			return errors.Errorf("rs.Transform: input shard id %d out of range", id)
		}
		copy(a[row], c.g[id])
	}
	aInv, err := a.Invert(c.dataShards)
	if err != nil {
		return errors.Wrap(ErrSingularShardSet, "rs.Transform: input shard set is linearly dependent")
	}

	b := matrix.New(len(outIDs), c.dataShards)
	for row, id := range outIDs {
		if id < 0 || id >= c.shards {
			return errors.Errorf("rs.Transform: output shard id %d out of range", id)
		}
		copy(b[row], c.g[id])
	}
	r, err := b.Multiply(aInv)
	if err != nil {
		return errors.Wrap(err, "rs.Transform: computing transform matrix")
	}

	inputs := make([][]byte, len(inIDs))
	for i, id := range inIDs {
		inputs[i] = shards[id]
	}
	outputs := make([][]byte, len(outIDs))
	for i, id := range outIDs {
		outputs[i] = shards[id]
	}
	applyMatrixRows(r, inputs, outputs, shardSize)
	return nil
}
