// Package samples holds the sample matrix and matrix index types exchanged
// between resamplers, the balancer and the presample package writer.
package samples

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is returned when row or column counts disagree.
var ErrShapeMismatch = errors.New("samples: shape mismatch")

// Matrix is a dense row-major matrix of float64 samples. Rows are matrix
// coordinates, columns are Monte Carlo iterations.
type Matrix struct {
	rows, cols int
	data       []float64
}

// NewMatrix allocates a zeroed rows x cols matrix.
func NewMatrix(rows, cols int) *Matrix {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("samples: negative dimensions %dx%d", rows, cols))
	}
	return &Matrix{rows: rows, cols: cols, data: make([]float64, rows*cols)}
}

// FromRows builds a matrix from equally sized rows; the data is copied.
func FromRows(rows [][]float64) (*Matrix, error) {
	if len(rows) == 0 {
		return NewMatrix(0, 0), nil
	}
	cols := len(rows[0])
	m := NewMatrix(len(rows), cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrShapeMismatch, i, len(r), cols)
		}
		copy(m.data[i*cols:], r)
	}
	return m, nil
}

// Rows returns the row count.
func (m *Matrix) Rows() int {
	if m == nil {
		return 0
	}
	return m.rows
}

// Cols returns the column count.
func (m *Matrix) Cols() int {
	if m == nil {
		return 0
	}
	return m.cols
}

// At returns element (i, j).
func (m *Matrix) At(i, j int) float64 { return m.data[i*m.cols+j] }

// Set assigns element (i, j).
func (m *Matrix) Set(i, j int, v float64) { m.data[i*m.cols+j] = v }

// Row returns row i. The slice aliases the matrix storage.
func (m *Matrix) Row(i int) []float64 { return m.data[i*m.cols : (i+1)*m.cols] }

// Data returns the row-major backing slice.
func (m *Matrix) Data() []float64 { return m.data }

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	if m == nil {
		return nil
	}
	return &Matrix{rows: m.rows, cols: m.cols, data: append([]float64(nil), m.data...)}
}

// AppendRows concatenates b below m in place. Column counts must agree.
func (m *Matrix) AppendRows(b *Matrix) error {
	if b.Cols() != m.cols {
		return fmt.Errorf("%w: cannot append %d columns to %d", ErrShapeMismatch, b.Cols(), m.cols)
	}
	m.data = append(m.data, b.data...)
	m.rows += b.rows
	return nil
}

// SelectRows returns a new matrix made of the listed rows, in order.
func (m *Matrix) SelectRows(idx []int) *Matrix {
	out := NewMatrix(len(idx), m.cols)
	for i, r := range idx {
		copy(out.Row(i), m.Row(r))
	}
	return out
}
