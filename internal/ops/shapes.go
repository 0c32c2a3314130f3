package ops

import (
	"fmt"

	"github.com/npulab/aiedispatch/internal/tensor"
)

// ValidateShapeTable checks that every entry of a supported-shape table
// is a valid rank-2 shape.
func ValidateShapeTable(table []tensor.Shape) error {
	if len(table) == 0 {
		return fmt.Errorf("%w: empty table", ErrBadShapeTable)
	}
	for i, s := range table {
		if len(s) != 2 {
			return fmt.Errorf("%w: entry %d has rank %d", ErrBadShapeTable, i, len(s))
		}
		if err := s.Validate(); err != nil {
			return fmt.Errorf("%w: entry %d: %v", ErrBadShapeTable, i, err)
		}
	}
	return nil
}

// Supported reports whether (rows, cols) is a member of the table.
// Membership is exact equality; there is no nearest-shape fallback.
func Supported(table []tensor.Shape, rows, cols int) bool {
	for _, s := range table {
		if s[0] == rows && s[1] == cols {
			return true
		}
	}
	return false
}

// MaxElems returns the worst-case element count over a shape table:
// the maximum over all shapes of the product of their dimensions,
// excluding any axes listed in skipAxes. Weight-only buffers are sized
// with the broadcast axis skipped.
func MaxElems(table []tensor.Shape, skipAxes ...int) int {
	skip := make(map[int]bool, len(skipAxes))
	for _, ax := range skipAxes {
		skip[ax] = true
	}
	max := 0
	for _, s := range table {
		n := 1
		for ax, dim := range s {
			if skip[ax] {
				continue
			}
			n *= dim
		}
		if n > max {
			max = n
		}
	}
	return max
}

// VariantKey combines an operator family with its dtype tag, selecting
// one supported-shape table and instruction-key namespace.
func VariantKey(family, tag string) string {
	return family + "_" + tag
}

// InstrKey composes the instruction key for one shape under a variant.
func InstrKey(variant string, rows, cols int) string {
	return fmt.Sprintf("%s_%d_%d", variant, rows, cols)
}
