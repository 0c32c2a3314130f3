package tensor

// Tensor is a caller-owned view of operand memory: raw bytes plus the
// element dtype and shape describing them. The execution engine never
// owns tensor memory; it reads from input tensors and writes into
// caller-supplied output tensors.
type Tensor struct {
	Data  []byte
	DType DataType
	Shape Shape
}

// NumBytes returns the byte count described by the tensor's shape and dtype.
func (t Tensor) NumBytes() int {
	return t.Shape.NumElements() * t.DType.Size()
}
