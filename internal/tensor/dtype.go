// Package tensor provides the operand types shared by all accelerator operators:
// shapes, element data types and the caller-owned tensor view.
package tensor

import "fmt"

// DataType represents runtime type information for operand elements.
//
// Only the 16-bit floating point families used by the precompiled kernels
// are modeled here; operators gate the accepted dtype at construction.
type DataType int

// Supported element data types.
const (
	BFloat16 DataType = iota
	Float16
)

// Size returns the byte size of one element of the data type.
func (dt DataType) Size() int {
	switch dt {
	case BFloat16, Float16:
		return 2
	default:
		panic("unknown data type")
	}
}

// String returns the canonical dtype tag for the data type.
// The tag is the same string accepted by ParseDataType.
func (dt DataType) String() string {
	switch dt {
	case BFloat16:
		return "bfloat16"
	case Float16:
		return "float16"
	default:
		return "unknown"
	}
}

// ParseDataType resolves a dtype tag string to its DataType.
func ParseDataType(tag string) (DataType, error) {
	switch tag {
	case "bfloat16":
		return BFloat16, nil
	case "float16":
		return Float16, nil
	default:
		return 0, fmt.Errorf("unknown dtype tag %q", tag)
	}
}
