package tensor

import "fmt"

// Shape represents the dimensions of a tensor.
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks if the shape is valid (all dimensions > 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// Dims2 extracts the (rows, cols) pair from a rank-2 shape.
// Any other rank is a contract violation.
func (s Shape) Dims2() (rows, cols int, err error) {
	if len(s) != 2 {
		return 0, 0, fmt.Errorf("expected a rank 2 shape [Rows,Cols], got rank %d (%v)", len(s), []int(s))
	}
	return s[0], s[1], nil
}

func (s Shape) String() string {
	return fmt.Sprintf("%v", []int(s))
}
