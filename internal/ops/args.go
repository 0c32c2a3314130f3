package ops

// ArgKind distinguishes operand roles in a buffer-requirements answer.
type ArgKind int

const (
	// ArgInput marks an input staging buffer.
	ArgInput ArgKind = iota
	// ArgOutput marks an output staging buffer.
	ArgOutput
)

func (k ArgKind) String() string {
	switch k {
	case ArgInput:
		return "input"
	case ArgOutput:
		return "output"
	default:
		return "unknown"
	}
}

// BufferReq is one (role, byte-size) pair an external allocator must
// provision for a call. Index is the kernel argument position.
type BufferReq struct {
	Kind  ArgKind
	Index int
	Bytes int
}
