// Package matrix implements dense GF(2^8) matrices: Cauchy/Vandermonde
// generator construction, submatrix extraction, Gauss-Jordan inversion,
// and multiplication, on top of package gf.
package matrix

import (
	"github.com/pkg/errors"
	"github.com/xtaci/ecvolume/gf"
)

// ErrSingular is returned by Invert when the input matrix has no inverse.
// Callers decide whether this is fatal (a bad erasure pattern) or
// expected (probing a candidate shard set).
var ErrSingular = errors.New("matrix: singular, no inverse")

// ErrDimension is returned when an operation is given matrices of
// incompatible shape.
var ErrDimension = errors.New("matrix: incompatible dimensions")

// Matrix is a row-major dense matrix over GF(2^8). Ownership is exclusive
// to whichever caller holds it; Invert leaves the receiver untouched and
// returns a freshly allocated inverse.
type Matrix [][]byte

// New allocates a rows x cols zero matrix.
func New(rows, cols int) Matrix {
	m := make(Matrix, rows)
	backing := make([]byte, rows*cols)
	for i := range m {
		m[i] = backing[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return m
}

// Rows returns the number of rows.
func (m Matrix) Rows() int { return len(m) }

// Cols returns the number of columns, or 0 for an empty matrix.
func (m Matrix) Cols() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// identity returns the n x n identity matrix.
func identity(n int) Matrix {
	m := New(n, n)
	for i := 0; i < n; i++ {
		m[i][i] = 1
	}
	return m
}

// cauchyConst is the constant folded into the Cauchy denominator
// (spec.md 9.3): 1/(i XOR (N+j) XOR cauchyConst). With cauchyConst=0 and
// Cauchy's own check that N+K <= 256, i ranges over [0,N) and
// N+j ranges over [N,N+K), two disjoint sets of bytes, so the XOR is
// never zero and the constant is never needed in practice; it is kept
// here, fixed at 0, purely so the formula matches spec.md 9.4's
// parenthesization exactly.
const cauchyConst = 0

// Cauchy builds an N x K matrix with M[i][j] = 1/(i XOR (N+j) XOR c),
// i in [0,N), j in [0,K). Every square submatrix of a Cauchy matrix
// built this way is invertible, by construction (Cauchy's identity),
// provided the row set {i} and column set {N+j} used as denominators are
// disjoint and nonzero -- guaranteed here whenever N+K <= 255.
func Cauchy(n, k int) (Matrix, error) {
	if n <= 0 || k <= 0 {
		return nil, errors.Wrapf(ErrDimension, "Cauchy(%d,%d)", n, k)
	}
	if n+k > 256 {
		return nil, errors.Wrapf(ErrDimension, "Cauchy(%d,%d): n+k exceeds GF(2^8) order", n, k)
	}
	m := New(n, k)
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			denom := byte(i) ^ byte(n+j) ^ cauchyConst
			m[i][j] = gf.Div(1, denom)
		}
	}
	return m, nil
}

// Vandermonde builds an N x K matrix with M[i][j] = EXP[(i*j) mod 255],
// first row and column forced to 1. Kept for reference/testing; not
// recommended for K near 255 since some square submatrices may be
// singular (spec.md 9, open question 2 / 4.B).
func Vandermonde(n, k int) (Matrix, error) {
	if n <= 0 || k <= 0 {
		return nil, errors.Wrapf(ErrDimension, "Vandermonde(%d,%d)", n, k)
	}
	m := New(n, k)
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			if i == 0 || j == 0 {
				m[i][j] = 1
				continue
			}
			e := (i * j) % 255
			m[i][j] = gf.EXP[e]
		}
	}
	return m, nil
}

// SubMatrix copies out the rectangle [rmin,rmax) x [cmin,cmax).
func (m Matrix) SubMatrix(rmin, cmin, rmax, cmax int) (Matrix, error) {
	if rmin < 0 || cmin < 0 || rmax > m.Rows() || cmax > m.Cols() || rmin >= rmax || cmin >= cmax {
		return nil, errors.Wrapf(ErrDimension, "SubMatrix(%d,%d,%d,%d) of %dx%d", rmin, cmin, rmax, cmax, m.Rows(), m.Cols())
	}
	out := New(rmax-rmin, cmax-cmin)
	for r := rmin; r < rmax; r++ {
		copy(out[r-rmin], m[r][cmin:cmax])
	}
	return out, nil
}

// Multiply computes C = A*B using gf.Mul and XOR accumulation.
func (a Matrix) Multiply(b Matrix) (Matrix, error) {
	if a.Cols() != b.Rows() {
		return nil, errors.Wrapf(ErrDimension, "Multiply: %dx%d by %dx%d", a.Rows(), a.Cols(), b.Rows(), b.Cols())
	}
	out := New(a.Rows(), b.Cols())
	for r := 0; r < a.Rows(); r++ {
		for k := 0; k < a.Cols(); k++ {
			arc := a[r][k]
			if arc == 0 {
				continue
			}
			gf.BulkMulAdd(out[r], b[k], arc, len(out[r]))
		}
	}
	return out, nil
}

// IsIdentity reports whether m is the n x n identity matrix.
func (m Matrix) IsIdentity(n int) bool {
	if m.Rows() != n || m.Cols() != n {
		return false
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			want := byte(0)
			if i == j {
				want = 1
			}
			if m[i][j] != want {
				return false
			}
		}
	}
	return true
}

// Invert returns the inverse of the n x n matrix m, leaving m unchanged:
// it runs Gauss-Jordan elimination with partial pivoting on a scratch
// copy of m. For each column, find the first
// nonzero entry at or below the current row, swap it into place in both
// m and a shadow identity matrix, rescale the pivot row to a unit pivot
// (skipped when the pivot is already 1, a fast path for identity and
// systematic-form inputs), then eliminate that column from every other
// row. Returns ErrSingular if no pivot can be found for some column.
func (m Matrix) Invert(n int) (Matrix, error) {
	if m.Rows() != n || m.Cols() != n {
		return nil, errors.Wrapf(ErrDimension, "Invert: matrix is %dx%d, want %dx%d", m.Rows(), m.Cols(), n, n)
	}
	work := New(n, n)
	for i := range work {
		copy(work[i], m[i])
	}
	shadow := identity(n)

	for col := 0; col < n; col++ {
		pivot := -1
		for row := col; row < n; row++ {
			if work[row][col] != 0 {
				pivot = row
				break
			}
		}
		if pivot == -1 {
			return nil, ErrSingular
		}
		if pivot != col {
			work[pivot], work[col] = work[col], work[pivot]
			shadow[pivot], shadow[col] = shadow[col], shadow[pivot]
		}

		if p := work[col][col]; p != 1 {
			inv := gf.Div(1, p)
			gf.BulkMul(work[col], work[col], inv, n)
			gf.BulkMul(shadow[col], shadow[col], inv, n)
		}

		for row := 0; row < n; row++ {
			if row == col {
				continue
			}
			factor := work[row][col]
			if factor == 0 {
				continue
			}
			gf.BulkMulAdd(work[row], work[col], factor, n)
			gf.BulkMulAdd(shadow[row], shadow[col], factor, n)
		}
	}
	return shadow, nil
}
