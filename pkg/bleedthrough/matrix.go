// Package bleedthrough estimates spectral bleed-through coefficients between
// fluorescence channels from single-stained controls, and removes that
// cross-talk from experimental stacks.
package bleedthrough

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"fluorbleed/pkg/stack"
)

// ErrDiagonal is returned when a caller tries to set a channel's bleed-through
// into itself
var ErrDiagonal = errors.New("bleed-through of a channel into itself is fixed at zero")

// Matrix is a square bleed-through coefficient matrix. Row i is the source
// channel and column j the destination: entry (i, j) is the fraction of channel
// i's signal detected in channel j. The diagonal is always zero.
//
// A Matrix is a plain value owned by the analysis session; it never aliases the
// rows it was built from, so it can be hand-edited between estimation and use.
type Matrix struct {
	dense *mat.Dense
}

// NewMatrix returns an all-zero n×n matrix
func NewMatrix(n int) *Matrix {
	if n <= 0 {
		panic(fmt.Sprintf("bleedthrough: invalid channel count %d", n))
	}
	return &Matrix{dense: mat.NewDense(n, n, nil)}
}

// MatrixFromRows copies a square table of coefficients. Diagonal entries are
// ignored and stored as zero, the way the coefficient entry grid never offers
// them for editing.
func MatrixFromRows(rows [][]float64) (*Matrix, error) {
	n := len(rows)
	if n == 0 {
		return nil, fmt.Errorf("empty coefficient matrix")
	}
	m := NewMatrix(n)
	for i, row := range rows {
		if len(row) != n {
			return nil, &stack.DimensionMismatchError{
				What:     fmt.Sprintf("coefficient matrix row %d", i),
				Expected: []int{n},
				Got:      []int{len(row)},
			}
		}
		for j, v := range row {
			if i != j {
				m.dense.Set(i, j, v)
			}
		}
	}
	return m, nil
}

// Channels returns the number of channels the matrix covers
func (m *Matrix) Channels() int {
	r, _ := m.dense.Dims()
	return r
}

// At returns the coefficient from channel i into channel j
func (m *Matrix) At(i, j int) float64 { return m.dense.At(i, j) }

// Set stores the coefficient from channel i into channel j
func (m *Matrix) Set(i, j int, v float64) error {
	n := m.Channels()
	if i < 0 || j < 0 || i >= n || j >= n {
		return fmt.Errorf("coefficient (%d, %d) outside %d-channel matrix", i, j, n)
	}
	if i == j {
		return ErrDiagonal
	}
	m.dense.Set(i, j, v)
	return nil
}

// Clone returns an independent copy
func (m *Matrix) Clone() *Matrix {
	return &Matrix{dense: mat.DenseCopyOf(m.dense)}
}

// Rows returns the coefficients as a fresh table
func (m *Matrix) Rows() [][]float64 {
	n := m.Channels()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = mat.Row(nil, i, m.dense)
	}
	return rows
}

// Dense returns a copy of the coefficients as a gonum matrix
func (m *Matrix) Dense() *mat.Dense {
	return mat.DenseCopyOf(m.dense)
}

// IsZero reports whether no channel bleeds into any other
func (m *Matrix) IsZero() bool {
	n := m.Channels()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if m.dense.At(i, j) != 0 {
				return false
			}
		}
	}
	return true
}

// String formats the matrix for terminal review, rows = from, columns = to
func (m *Matrix) String() string {
	return fmt.Sprintf("%v", mat.Formatted(m.dense, mat.Squeeze()))
}
