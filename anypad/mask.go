package anypad

import (
	"fmt"

	"github.com/unixpickle/anyvec"
)

// A Mask marks real content (true) and padding (false).
//
// A Mask has either the shape of the array it was
// derived from, or a prefix of that shape when inner axes
// have been collapsed.
type Mask struct {
	Shape []int
	Data  []bool
}

// ComputeMask derives a mask from a padded array.
// An entry is present if and only if it is not the
// Padding sentinel.
func ComputeMask(t *IntTensor) *Mask {
	res := &Mask{
		Shape: append([]int{}, t.Shape...),
		Data:  make([]bool, len(t.Data)),
	}
	for i, x := range t.Data {
		res.Data[i] = x != Padding
	}
	return res
}

// At returns the entry at the given index.
func (m *Mask) At(idx ...int) bool {
	if len(idx) != len(m.Shape) {
		panic(fmt.Sprintf("expected %d indices but got %d", len(m.Shape), len(idx)))
	}
	return m.Data[offset(m.Shape, idx)]
}

// Collapse removes the trailing n axes.
// An entry of the result is present if any entry of the
// collapsed block is present.
//
// For example, collapsing a (words, chars) mask by one
// axis yields a word mask where a word is absent only if
// all of its characters are padding.
func (m *Mask) Collapse(n int) *Mask {
	if n < 0 || n > len(m.Shape) {
		panic(fmt.Sprintf("cannot collapse %d axes of a rank %d mask", n, len(m.Shape)))
	}
	outShape := append([]int{}, m.Shape[:len(m.Shape)-n]...)
	block := shapeSize(m.Shape[len(m.Shape)-n:])
	res := &Mask{
		Shape: outShape,
		Data:  make([]bool, shapeSize(outShape)),
	}
	for i := range res.Data {
		for _, x := range m.Data[i*block : (i+1)*block] {
			if x {
				res.Data[i] = true
				break
			}
		}
	}
	return res
}

// Or computes the element-wise union of two masks with
// the same shape.
func (m *Mask) Or(m1 *Mask) *Mask {
	if !sameShape(m.Shape, m1.Shape) {
		panic(fmt.Sprintf("mask shapes differ: %v and %v", m.Shape, m1.Shape))
	}
	res := &Mask{Shape: append([]int{}, m.Shape...), Data: make([]bool, len(m.Data))}
	for i, x := range m.Data {
		res.Data[i] = x || m1.Data[i]
	}
	return res
}

// Count returns the number of present entries.
func (m *Mask) Count() int {
	var res int
	for _, x := range m.Data {
		if x {
			res++
		}
	}
	return res
}

// RightAligned checks that, along the innermost axis,
// every padding entry is followed only by padding.
func (m *Mask) RightAligned() bool {
	if len(m.Shape) == 0 {
		return true
	}
	cols := m.Shape[len(m.Shape)-1]
	if cols == 0 {
		return true
	}
	for row := 0; row < len(m.Data)/cols; row++ {
		seenPad := false
		for _, x := range m.Data[row*cols : (row+1)*cols] {
			if !x {
				seenPad = true
			} else if seenPad {
				return false
			}
		}
	}
	return true
}

// Vector creates a vector with 1 for present entries and
// 0 for padding.
// Each entry is repeated the given number of times, which
// makes it possible to mask packed embeddings directly.
func (m *Mask) Vector(c anyvec.Creator, repeat int) anyvec.Vector {
	vals := make([]float64, 0, len(m.Data)*repeat)
	for _, x := range m.Data {
		var v float64
		if x {
			v = 1
		}
		for i := 0; i < repeat; i++ {
			vals = append(vals, v)
		}
	}
	return c.MakeVectorData(c.MakeNumericList(vals))
}

func sameShape(s1, s2 []int) bool {
	if len(s1) != len(s2) {
		return false
	}
	for i, x := range s1 {
		if s2[i] != x {
			return false
		}
	}
	return true
}
