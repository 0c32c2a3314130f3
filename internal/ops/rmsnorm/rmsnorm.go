// Package rmsnorm runs the precompiled RMS-norm kernels. The primary
// operand is a rank-2 [rows, cols] activation, the secondary operand a
// rank-1 weight vector of length cols broadcast across rows; the result
// has the activation's shape.
package rmsnorm

import (
	"fmt"

	"github.com/npulab/aiedispatch/internal/ops"
	"github.com/npulab/aiedispatch/internal/registry"
	"github.com/npulab/aiedispatch/internal/tensor"
)

// Kind is the operator family name.
const Kind = "rmsnorm"

// KeyFamily is the instruction-key prefix the precompiled kernel
// artifacts are named under.
const KeyFamily = "mladfrmsnorm"

// Image is the hardware image the RMS-norm kernels are compiled into.
// It is shared with the other mladf operators of the same image.
const Image = "llama2_mladf_2x4x4_gemmbf16_silu_mul_mha_rms_rope"

var dtypeTags = map[tensor.DataType]string{
	tensor.BFloat16: "a16",
}

var supportedShapes = []tensor.Shape{
	{2048, 4096},
	{1024, 4096},
	{512, 4096},
	{256, 4096},
	{128, 4096},
}

// Shapes returns the supported-shape table.
func Shapes() []tensor.Shape {
	table := make([]tensor.Shape, len(supportedShapes))
	for i, s := range supportedShapes {
		table[i] = s.Clone()
	}
	return table
}

// Tags returns the dtype tags the operator accepts, keyed by data type.
func Tags() map[tensor.DataType]string {
	tags := make(map[tensor.DataType]string, len(dtypeTags))
	for dt, tag := range dtypeTags {
		tags[dt] = tag
	}
	return tags
}

// Op is one RMS-norm operator instance. It owns its staging buffers
// exclusively; concurrent Execute calls on one instance are serialized
// internally.
type Op struct {
	dtype   tensor.DataType
	variant string
	shapes  []tensor.Shape
	pipe    *ops.Pipeline
}

// New constructs an RMS-norm operator for the given dtype tag. Only
// homogeneous bfloat16 activation, weights and result are supported; any
// other tag fails before device interaction. Construction acquires (or
// shares) the device context for the hardware image, registers the
// instruction keys for every supported shape, and allocates staging
// buffers sized to the largest supported shape.
func New(rt *ops.Runtime, operandDType string) (*Op, error) {
	dt, err := tensor.ParseDataType(operandDType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ops.ErrUnsupportedDType, err)
	}
	tag, ok := dtypeTags[dt]
	if !ok {
		return nil, fmt.Errorf("%w: rmsnorm only supports homogeneous bfloat16 activation, weights and result, got %q",
			ops.ErrUnsupportedDType, operandDType)
	}
	if err := ops.ValidateShapeTable(supportedShapes); err != nil {
		return nil, err
	}

	variant := ops.VariantKey(KeyFamily, tag)
	ctx, err := rt.Contexts.GetOrCreate(rt.Store.ImagePath(Image))
	if err != nil {
		return nil, err
	}

	instr := rt.InstrRegistry(ctx)
	for _, s := range supportedShapes {
		instr.Register(ops.InstrKey(variant, s[0], s[1]))
	}

	es := dt.Size()
	operandBytes := ops.MaxElems(supportedShapes) * es
	// Weights are broadcast across rows, so the weight buffer is sized
	// from the column axis only.
	wtsBytes := ops.MaxElems(supportedShapes, 0) * es

	pipe, err := ops.NewPipeline(rt, Kind, variant, ctx, instr, operandBytes, wtsBytes, operandBytes)
	if err != nil {
		return nil, err
	}

	rt.Log.Debug("operator constructed",
		"kind", Kind, "id", pipe.ID(), "image", Image, "dtype", operandDType)

	return &Op{dtype: dt, variant: variant, shapes: supportedShapes, pipe: pipe}, nil
}

// IsSupportedShape reports whether the operand's (rows, cols) pair is a
// member of the supported-shape table. A non-rank-2 operand is a
// contract violation, not a false.
func (o *Op) IsSupportedShape(operand tensor.Tensor) (bool, error) {
	rows, cols, err := operand.Shape.Dims2()
	if err != nil {
		return false, &ops.ShapeError{Op: Kind, Reason: err.Error()}
	}
	return ops.Supported(o.shapes, rows, cols), nil
}

// BufferReqs answers the buffer-requirements query from tensor
// descriptors alone: the ordered (role, byte-size) list a caller must
// provision. Cross-tensor mismatches fail here, before any sizing.
func (o *Op) BufferReqs(inputs, outputs []tensor.Tensor) ([]ops.BufferReq, error) {
	rows, cols, wtsLen, err := o.checkGeometry(inputs, outputs)
	if err != nil {
		return nil, err
	}
	es := o.dtype.Size()
	return []ops.BufferReq{
		{Kind: ops.ArgInput, Index: 0, Bytes: rows * cols * es},
		{Kind: ops.ArgInput, Index: 1, Bytes: wtsLen * es},
		{Kind: ops.ArgOutput, Index: 2, Bytes: rows * cols * es},
	}, nil
}

// Execute runs one invocation: input 0 is the activation, input 1 the
// weight vector, output 0 the result. The call blocks until hardware
// completion. Shape failures abort before any buffer mutation; a lookup
// failure leaves the staging buffers populated but the instance
// reusable.
func (o *Op) Execute(inputs, outputs []tensor.Tensor) error {
	rows, cols, wtsLen, err := o.checkGeometry(inputs, outputs)
	if err != nil {
		return err
	}
	if !ops.Supported(o.shapes, rows, cols) {
		return &ops.ShapeError{Op: Kind, Reason: fmt.Sprintf("unsupported shape [%d, %d]", rows, cols)}
	}

	es := o.dtype.Size()
	operandBytes := rows * cols * es
	wtsBytes := wtsLen * es
	if len(inputs[0].Data) < operandBytes {
		return &ops.ShapeError{Op: Kind, Reason: fmt.Sprintf(
			"activation data holds %d bytes, shape needs %d", len(inputs[0].Data), operandBytes)}
	}
	if len(inputs[1].Data) < wtsBytes {
		return &ops.ShapeError{Op: Kind, Reason: fmt.Sprintf(
			"weights data holds %d bytes, shape needs %d", len(inputs[1].Data), wtsBytes)}
	}
	if len(outputs[0].Data) < operandBytes {
		return &ops.ShapeError{Op: Kind, Reason: fmt.Sprintf(
			"result data holds %d bytes, shape needs %d", len(outputs[0].Data), operandBytes)}
	}

	return o.pipe.Run(ops.Call{
		Key:  ops.InstrKey(o.variant, rows, cols),
		Rows: rows,
		Cols: cols,
		A:    inputs[0].Data[:operandBytes],
		B:    inputs[1].Data[:wtsBytes],
		Out:  outputs[0].Data[:operandBytes],
	})
}

// checkGeometry validates operand count, ranks and cross-tensor
// agreement, with no side effects.
func (o *Op) checkGeometry(inputs, outputs []tensor.Tensor) (rows, cols, wtsLen int, err error) {
	if len(inputs) < 2 {
		return 0, 0, 0, fmt.Errorf("%w: rmsnorm needs activation and weights, got %d inputs", ops.ErrArgCount, len(inputs))
	}
	if len(outputs) < 1 {
		return 0, 0, 0, fmt.Errorf("%w: rmsnorm needs a result tensor", ops.ErrArgCount)
	}
	rows, cols, err = inputs[0].Shape.Dims2()
	if err != nil {
		return 0, 0, 0, &ops.ShapeError{Op: Kind, Reason: err.Error()}
	}
	outRows, outCols, err := outputs[0].Shape.Dims2()
	if err != nil {
		return 0, 0, 0, &ops.ShapeError{Op: Kind, Reason: err.Error()}
	}
	if outRows != rows || outCols != cols {
		return 0, 0, 0, &ops.ShapeError{Op: Kind, Reason: fmt.Sprintf(
			"mismatched activation %v and result %v shapes", inputs[0].Shape, outputs[0].Shape)}
	}
	if len(inputs[1].Shape) != 1 {
		return 0, 0, 0, &ops.ShapeError{Op: Kind, Reason: fmt.Sprintf(
			"weights must be rank 1, got shape %v", inputs[1].Shape)}
	}
	wtsLen = inputs[1].Shape[0]
	if wtsLen != cols {
		return 0, 0, 0, &ops.ShapeError{Op: Kind, Reason: fmt.Sprintf(
			"mismatched weights length %d and activation columns %d", wtsLen, cols)}
	}
	return rows, cols, wtsLen, nil
}

// StagingSizes returns the allocated staging buffer sizes.
func (o *Op) StagingSizes() (a, b, c int) {
	return o.pipe.StagingSizes()
}

// Invocations returns how many calls completed successfully.
func (o *Op) Invocations() uint64 {
	return o.pipe.Invocations()
}

// Registry exposes the instruction registry of the instance's device
// context.
func (o *Op) Registry() *registry.Registry {
	return o.pipe.Registry()
}

// Release frees the instance's staging buffers.
func (o *Op) Release() {
	o.pipe.Release()
}
