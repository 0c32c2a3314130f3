// Package matmul runs the precompiled GEMM kernels. The primary operand
// is a rank-2 [rows, cols] activation, the secondary operand a rank-2
// [cols, N] weight matrix with a fixed output width; the result is
// [rows, N].
package matmul

import (
	"fmt"

	"github.com/npulab/aiedispatch/internal/ops"
	"github.com/npulab/aiedispatch/internal/registry"
	"github.com/npulab/aiedispatch/internal/tensor"
)

// Kind is the operator family name.
const Kind = "matmul"

// KeyFamily is the instruction-key prefix the precompiled kernel
// artifacts are named under.
const KeyFamily = "mladfmatmul"

// Image is the hardware image the GEMM kernels are compiled into, shared
// with the other mladf operators of the same image.
const Image = "llama2_mladf_2x4x4_gemmbf16_silu_mul_mha_rms_rope"

// N is the output width the kernels are compiled for.
const N = 512

var dtypeTags = map[tensor.DataType]string{
	tensor.BFloat16: "a16",
	tensor.Float16:  "f16",
}

var supportedShapes = []tensor.Shape{
	{256, 4096},
	{128, 4096},
	{32, 4096},
	{8, 4096},
	{1, 4096},
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

// Op is one GEMM operator instance.
type Op struct {
	dtype   tensor.DataType
	variant string
	shapes  []tensor.Shape
	pipe    *ops.Pipeline
}

// New constructs a GEMM operator for the given dtype tag (bfloat16 or
// float16). See rmsnorm.New for the shared construction semantics.
func New(rt *ops.Runtime, operandDType string) (*Op, error) {
	dt, err := tensor.ParseDataType(operandDType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ops.ErrUnsupportedDType, err)
	}
	tag, ok := dtypeTags[dt]
	if !ok {
		return nil, fmt.Errorf("%w: matmul supports bfloat16 or float16 operands, got %q",
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
	aBytes := ops.MaxElems(supportedShapes) * es
	// Weights are [cols, N]: sized from the worst-case column axis.
	bBytes := ops.MaxElems(supportedShapes, 0) * N * es
	// Result is [rows, N]: sized from the worst-case row axis.
	cBytes := ops.MaxElems(supportedShapes, 1) * N * es

	pipe, err := ops.NewPipeline(rt, Kind, variant, ctx, instr, aBytes, bBytes, cBytes)
	if err != nil {
		return nil, err
	}

	rt.Log.Debug("operator constructed",
		"kind", Kind, "id", pipe.ID(), "image", Image, "dtype", operandDType)

	return &Op{dtype: dt, variant: variant, shapes: supportedShapes, pipe: pipe}, nil
}

// IsSupportedShape reports membership of the operand's (rows, cols) pair
// in the supported-shape table; a non-rank-2 operand is an error.
func (o *Op) IsSupportedShape(operand tensor.Tensor) (bool, error) {
	rows, cols, err := operand.Shape.Dims2()
	if err != nil {
		return false, &ops.ShapeError{Op: Kind, Reason: err.Error()}
	}
	return ops.Supported(o.shapes, rows, cols), nil
}

// BufferReqs answers the buffer-requirements query from tensor
// descriptors alone. Cross-tensor mismatches fail here, before sizing.
func (o *Op) BufferReqs(inputs, outputs []tensor.Tensor) ([]ops.BufferReq, error) {
	rows, cols, err := o.checkGeometry(inputs, outputs)
	if err != nil {
		return nil, err
	}
	es := o.dtype.Size()
	return []ops.BufferReq{
		{Kind: ops.ArgInput, Index: 0, Bytes: rows * cols * es},
		{Kind: ops.ArgInput, Index: 1, Bytes: cols * N * es},
		{Kind: ops.ArgOutput, Index: 2, Bytes: rows * N * es},
	}, nil
}

// Execute runs one invocation: input 0 is the activation, input 1 the
// weight matrix, output 0 the result.
func (o *Op) Execute(inputs, outputs []tensor.Tensor) error {
	rows, cols, err := o.checkGeometry(inputs, outputs)
	if err != nil {
		return err
	}
	if !ops.Supported(o.shapes, rows, cols) {
		return &ops.ShapeError{Op: Kind, Reason: fmt.Sprintf("unsupported shape [%d, %d]", rows, cols)}
	}

	es := o.dtype.Size()
	aBytes := rows * cols * es
	bBytes := cols * N * es
	cBytes := rows * N * es
	if len(inputs[0].Data) < aBytes {
		return &ops.ShapeError{Op: Kind, Reason: fmt.Sprintf(
			"activation data holds %d bytes, shape needs %d", len(inputs[0].Data), aBytes)}
	}
	if len(inputs[1].Data) < bBytes {
		return &ops.ShapeError{Op: Kind, Reason: fmt.Sprintf(
			"weights data holds %d bytes, shape needs %d", len(inputs[1].Data), bBytes)}
	}
	if len(outputs[0].Data) < cBytes {
		return &ops.ShapeError{Op: Kind, Reason: fmt.Sprintf(
			"result data holds %d bytes, shape needs %d", len(outputs[0].Data), cBytes)}
	}

	return o.pipe.Run(ops.Call{
		Key:  ops.InstrKey(o.variant, rows, cols),
		Rows: rows,
		Cols: cols,
		A:    inputs[0].Data[:aBytes],
		B:    inputs[1].Data[:bBytes],
		Out:  outputs[0].Data[:cBytes],
	})
}

func (o *Op) checkGeometry(inputs, outputs []tensor.Tensor) (rows, cols int, err error) {
	if len(inputs) < 2 {
		return 0, 0, fmt.Errorf("%w: matmul needs activation and weights, got %d inputs", ops.ErrArgCount, len(inputs))
	}
	if len(outputs) < 1 {
		return 0, 0, fmt.Errorf("%w: matmul needs a result tensor", ops.ErrArgCount)
	}
	rows, cols, err = inputs[0].Shape.Dims2()
	if err != nil {
		return 0, 0, &ops.ShapeError{Op: Kind, Reason: err.Error()}
	}
	wRows, wCols, err := inputs[1].Shape.Dims2()
	if err != nil {
		return 0, 0, &ops.ShapeError{Op: Kind, Reason: err.Error()}
	}
	if wRows != cols || wCols != N {
		return 0, 0, &ops.ShapeError{Op: Kind, Reason: fmt.Sprintf(
			"weights must be [%d, %d], got %v", cols, N, inputs[1].Shape)}
	}
	outRows, outCols, err := outputs[0].Shape.Dims2()
	if err != nil {
		return 0, 0, &ops.ShapeError{Op: Kind, Reason: err.Error()}
	}
	if outRows != rows || outCols != N {
		return 0, 0, &ops.ShapeError{Op: Kind, Reason: fmt.Sprintf(
			"result must be [%d, %d], got %v", rows, N, outputs[0].Shape)}
	}
	return rows, cols, nil
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
