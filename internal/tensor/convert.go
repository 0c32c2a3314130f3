package tensor

import (
	"encoding/binary"
	"fmt"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// DecodeFloat32 widens raw operand bytes of the given dtype to float32.
func DecodeFloat32(dt DataType, raw []byte) ([]float32, error) {
	if len(raw)%dt.Size() != 0 {
		return nil, fmt.Errorf("byte count %d is not a multiple of %s element size", len(raw), dt)
	}
	switch dt {
	case BFloat16:
		return bfloat16.DecodeFloat32(raw), nil
	case Float16:
		out := make([]float32, len(raw)/2)
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[2*i:])).Float32()
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot decode dtype %s", dt)
	}
}

// EncodeFloat32 narrows float32 values to raw operand bytes of the given dtype.
func EncodeFloat32(dt DataType, vals []float32) ([]byte, error) {
	switch dt {
	case BFloat16:
		return bfloat16.EncodeFloat32(vals), nil
	case Float16:
		out := make([]byte, 2*len(vals))
		for i, v := range vals {
			binary.LittleEndian.PutUint16(out[2*i:], float16.Fromfloat32(v).Bits())
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot encode dtype %s", dt)
	}
}
