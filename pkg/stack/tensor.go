package stack

import "fmt"

// Tensor is a small dense row-major array used for measurements and
// background levels. Shapes are (C), (T, C), (ROI, C) or (ROI, T, C).
type Tensor struct {
	Shape []int
	Data  []float64
}

// NewTensor returns a zero-filled tensor of the given shape
func NewTensor(shape ...int) Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	s := make([]int, len(shape))
	copy(s, shape)
	return Tensor{Shape: s, Data: make([]float64, n)}
}

// TensorFrom wraps data in a tensor after checking it fills the shape exactly
func TensorFrom(data []float64, shape ...int) (Tensor, error) {
	n := 1
	for _, d := range shape {
		n *= d
	}
	if n != len(data) {
		return Tensor{}, fmt.Errorf("%d values do not fill shape %v", len(data), shape)
	}
	t := NewTensor(shape...)
	copy(t.Data, data)
	return t, nil
}

// Levels builds a (C) tensor from per-channel values
func Levels(values ...float64) Tensor {
	t := NewTensor(len(values))
	copy(t.Data, values)
	return t
}

// TimeLevels builds a (T, C) tensor from one row of channel values per time point
func TimeLevels(rows [][]float64) (Tensor, error) {
	if len(rows) == 0 {
		return Tensor{}, fmt.Errorf("no time points")
	}
	t := NewTensor(len(rows), len(rows[0]))
	for i, row := range rows {
		if len(row) != len(rows[0]) {
			return Tensor{}, fmt.Errorf("time point %d has %d channels, want %d", i, len(row), len(rows[0]))
		}
		copy(t.Data[i*len(row):], row)
	}
	return t, nil
}

func (t Tensor) Rank() int { return len(t.Shape) }

func (t Tensor) offset(idx []int) int {
	if len(idx) != len(t.Shape) {
		panic(fmt.Sprintf("stack: %d indices for rank %d tensor", len(idx), len(t.Shape)))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= t.Shape[i] {
			panic(fmt.Sprintf("stack: index %v out of range for shape %v", idx, t.Shape))
		}
		off = off*t.Shape[i] + v
	}
	return off
}

// At returns the element at idx
func (t Tensor) At(idx ...int) float64 { return t.Data[t.offset(idx)] }

// Set stores v at idx
func (t Tensor) Set(v float64, idx ...int) { t.Data[t.offset(idx)] = v }

// Clone returns a deep copy
func (t Tensor) Clone() Tensor {
	c := NewTensor(t.Shape...)
	copy(c.Data, t.Data)
	return c
}

// Rows flattens the tensor into a 2D table: one row per index of the first
// axis, the remaining axes laid out row-major along the columns. A rank-1
// tensor becomes a single row.
func (t Tensor) Rows() [][]float64 {
	if t.Rank() == 0 || t.Shape[0] == 0 {
		return nil
	}
	if t.Rank() == 1 {
		row := make([]float64, len(t.Data))
		copy(row, t.Data)
		return [][]float64{row}
	}
	cols := len(t.Data) / t.Shape[0]
	rows := make([][]float64, t.Shape[0])
	for r := range rows {
		rows[r] = make([]float64, cols)
		copy(rows[r], t.Data[r*cols:(r+1)*cols])
	}
	return rows
}
