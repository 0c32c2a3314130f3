package artifact

import (
	"encoding/binary"
	"fmt"

	"github.com/npulab/aiedispatch/internal/tensor"
)

// OpCode names the fixed-function kernel an instruction stream drives.
// It appears in the stream header so drivers can size their dispatch;
// the command words that follow are driver-specific.
type OpCode uint16

// Kernels with packed streams in the store.
const (
	OpRMSNorm OpCode = 1
	OpMatMul  OpCode = 2
)

const (
	blobMagic   uint32 = 0x41494554 // "TEIA"
	blobVersion uint16 = 1
	headerBytes        = 24
)

// BlobSpec is the instruction-stream header: which kernel the stream
// drives and the operand geometry it was compiled for.
type BlobSpec struct {
	Op    OpCode
	DType tensor.DataType
	M     int
	K     int
	N     int // matmul only, 0 otherwise
}

// Pack serializes a BlobSpec into the packed instruction-stream format.
// fillerWords zero command words are appended so stream lengths resemble
// real command sequences; drivers that do not consume them ignore them.
func Pack(spec BlobSpec, fillerWords int) []byte {
	buf := make([]byte, headerBytes+4*fillerWords)
	binary.LittleEndian.PutUint32(buf[0:], blobMagic)
	binary.LittleEndian.PutUint16(buf[4:], blobVersion)
	binary.LittleEndian.PutUint16(buf[6:], uint16(spec.Op))
	binary.LittleEndian.PutUint32(buf[8:], uint32(spec.DType))
	binary.LittleEndian.PutUint32(buf[12:], uint32(spec.M))
	binary.LittleEndian.PutUint32(buf[16:], uint32(spec.K))
	binary.LittleEndian.PutUint32(buf[20:], uint32(spec.N))
	return buf
}

// Unpack parses an instruction-stream header back into its BlobSpec.
func Unpack(data []byte) (BlobSpec, error) {
	if len(data) < headerBytes {
		return BlobSpec{}, fmt.Errorf("instruction stream truncated: %d bytes", len(data))
	}
	if m := binary.LittleEndian.Uint32(data[0:]); m != blobMagic {
		return BlobSpec{}, fmt.Errorf("bad instruction stream magic %#x", m)
	}
	if v := binary.LittleEndian.Uint16(data[4:]); v != blobVersion {
		return BlobSpec{}, fmt.Errorf("unsupported instruction stream version %d", v)
	}
	return BlobSpec{
		Op:    OpCode(binary.LittleEndian.Uint16(data[6:])),
		DType: tensor.DataType(binary.LittleEndian.Uint32(data[8:])),
		M:     int(binary.LittleEndian.Uint32(data[12:])),
		K:     int(binary.LittleEndian.Uint32(data[16:])),
		N:     int(binary.LittleEndian.Uint32(data[20:])),
	}, nil
}
