// Package anypad turns variable-length, indexed text into
// fixed-shape batches and derives masks from them.
//
// Every channel (answer options, knowledge snippets, words
// and characters) is padded on the right with the sentinel
// index 0.
// Content which does not fit is truncated from the left,
// so the rightmost content is always kept.
//
// Masks are never stored alongside data; they are computed
// from padded arrays with ComputeMask, and nested masks
// (e.g. "is this sentence empty?") are obtained by
// collapsing inner axes.
package anypad

import "fmt"

// Padding is the reserved index used to fill unused
// positions in a padded array.
const Padding = 0

// A ValidationError indicates that an instance is
// malformed and cannot be padded at all.
type ValidationError struct {
	Instance int
	Msg      string
}

func (v *ValidationError) Error() string {
	if v.Instance < 0 {
		return "invalid instance: " + v.Msg
	}
	return fmt.Sprintf("invalid instance %d: %s", v.Instance, v.Msg)
}

// A ConfigError indicates that padding lengths do not
// agree with each other or with the data being padded.
type ConfigError struct {
	Msg string
}

func (c *ConfigError) Error() string {
	return "padding config: " + c.Msg
}

// An IntTensor is a dense, row-major array of indices.
type IntTensor struct {
	Shape []int
	Data  []int
}

// NewIntTensor creates an all-padding tensor.
func NewIntTensor(shape ...int) *IntTensor {
	return &IntTensor{
		Shape: append([]int{}, shape...),
		Data:  make([]int, shapeSize(shape)),
	}
}

// At returns the value at the given index.
func (t *IntTensor) At(idx ...int) int {
	if len(idx) != len(t.Shape) {
		panic(fmt.Sprintf("expected %d indices but got %d", len(t.Shape), len(idx)))
	}
	return t.Data[offset(t.Shape, idx)]
}

// Set sets the value at the given index.
func (t *IntTensor) Set(val int, idx ...int) {
	if len(idx) != len(t.Shape) {
		panic(fmt.Sprintf("expected %d indices but got %d", len(t.Shape), len(idx)))
	}
	t.Data[offset(t.Shape, idx)] = val
}

func shapeSize(shape []int) int {
	size := 1
	for _, x := range shape {
		size *= x
	}
	return size
}

// offset computes a row-major offset.
// If idx is shorter than shape, the missing trailing
// indices are treated as zero.
func offset(shape, idx []int) int {
	var res int
	for i, size := range shape {
		res *= size
		if i < len(idx) {
			if idx[i] < 0 || idx[i] >= size {
				panic(fmt.Sprintf("index %d out of range [0, %d)", idx[i], size))
			}
			res += idx[i]
		}
	}
	return res
}
