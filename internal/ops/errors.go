// Package ops provides the operator framework: the shared runtime state,
// the staged execution pipeline, shape-table helpers and the error
// taxonomy surfaced by every operator.
package ops

import (
	"errors"
	"fmt"
)

// Construction errors. Fatal to the operator instance being built.
var (
	// ErrUnsupportedDType reports a dtype tag the operator does not accept.
	ErrUnsupportedDType = errors.New("unsupported operand dtype")
	// ErrBadShapeTable reports a malformed supported-shape table.
	ErrBadShapeTable = errors.New("malformed supported-shape table")
	// ErrArgCount reports fewer input or output tensors than the operator's contract requires.
	ErrArgCount = errors.New("missing operand tensor")
)

// ShapeError reports an operand geometry violation: wrong rank, a shape
// outside the supported set, or a cross-tensor mismatch. Raised before
// any device interaction; no partial state is mutated.
type ShapeError struct {
	Op     string
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// HardwareError reports a launch or synchronization failure from the
// device layer. Fatal for the call, never retried; no partial output is
// guaranteed to be meaningful.
type HardwareError struct {
	Op    string
	Stage string
	Err   error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("%s: hardware failure at %s: %v", e.Op, e.Stage, e.Err)
}

func (e *HardwareError) Unwrap() error { return e.Err }
