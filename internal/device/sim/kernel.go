package sim

import (
	"fmt"
	"math"
	"sync"

	"github.com/npulab/aiedispatch/internal/artifact"
	"github.com/npulab/aiedispatch/internal/device"
	"github.com/npulab/aiedispatch/internal/tensor"
)

const rmsEpsilon = 1e-6

// Kernel executes packed instruction streams against the device-side
// contents of the referenced buffers.
type Kernel struct {
	dev *Device

	mu    sync.Mutex
	fault error
}

// SetFault arms a one-shot launch failure. The next Run returns err
// without touching any buffer; later launches behave normally.
func (k *Kernel) SetFault(err error) {
	k.mu.Lock()
	k.fault = err
	k.mu.Unlock()
}

// Run dispatches the kernel selected by the instruction stream in instr,
// reading operands from a and b and writing the result to c. Run blocks
// until the (simulated) hardware completes.
func (k *Kernel) Run(instr device.Buffer, words int, a, b, c uint64) error {
	k.mu.Lock()
	fault := k.fault
	k.fault = nil
	k.mu.Unlock()
	if fault != nil {
		return fault
	}

	ib, ok := instr.(*Buffer)
	if !ok {
		return fmt.Errorf("sim: foreign instruction buffer")
	}
	if 4*words > len(ib.data) {
		return fmt.Errorf("sim: instruction word count %d exceeds buffer size %d", words, len(ib.data))
	}
	spec, err := artifact.Unpack(ib.data[:4*words])
	if err != nil {
		return err
	}

	abuf, err := k.dev.lookup(a)
	if err != nil {
		return err
	}
	bbuf, err := k.dev.lookup(b)
	if err != nil {
		return err
	}
	cbuf, err := k.dev.lookup(c)
	if err != nil {
		return err
	}

	switch spec.Op {
	case artifact.OpRMSNorm:
		return runRMSNorm(spec, abuf, bbuf, cbuf)
	case artifact.OpMatMul:
		return runMatMul(spec, abuf, bbuf, cbuf)
	default:
		return fmt.Errorf("sim: unknown opcode %d", spec.Op)
	}
}

func runRMSNorm(spec artifact.BlobSpec, a, w, c *Buffer) error {
	es := spec.DType.Size()
	x, err := loadOperand(spec.DType, a, spec.M*spec.K, "activation")
	if err != nil {
		return err
	}
	g, err := loadOperand(spec.DType, w, spec.K, "weights")
	if err != nil {
		return err
	}

	y := make([]float32, spec.M*spec.K)
	for i := 0; i < spec.M; i++ {
		row := x[i*spec.K : (i+1)*spec.K]
		var sum float64
		for _, v := range row {
			sum += float64(v) * float64(v)
		}
		inv := float32(1 / math.Sqrt(sum/float64(spec.K)+rmsEpsilon))
		out := y[i*spec.K : (i+1)*spec.K]
		for j, v := range row {
			out[j] = v * inv * g[j]
		}
	}
	return storeResult(spec.DType, c, y, spec.M*spec.K*es)
}

func runMatMul(spec artifact.BlobSpec, a, w, c *Buffer) error {
	es := spec.DType.Size()
	x, err := loadOperand(spec.DType, a, spec.M*spec.K, "activation")
	if err != nil {
		return err
	}
	wt, err := loadOperand(spec.DType, w, spec.K*spec.N, "weights")
	if err != nil {
		return err
	}

	y := make([]float32, spec.M*spec.N)
	for i := 0; i < spec.M; i++ {
		for kk := 0; kk < spec.K; kk++ {
			av := x[i*spec.K+kk]
			if av == 0 {
				continue
			}
			wrow := wt[kk*spec.N : (kk+1)*spec.N]
			out := y[i*spec.N : (i+1)*spec.N]
			for j, wv := range wrow {
				out[j] += av * wv
			}
		}
	}
	return storeResult(spec.DType, c, y, spec.M*spec.N*es)
}

func loadOperand(dt tensor.DataType, b *Buffer, elems int, role string) ([]float32, error) {
	n := elems * dt.Size()
	if n > len(b.data) {
		return nil, fmt.Errorf("sim: %s buffer too small: need %d bytes, have %d", role, n, len(b.data))
	}
	return tensor.DecodeFloat32(dt, b.data[:n])
}

func storeResult(dt tensor.DataType, c *Buffer, vals []float32, bytes int) error {
	if bytes > len(c.data) {
		return fmt.Errorf("sim: output buffer too small: need %d bytes, have %d", bytes, len(c.data))
	}
	raw, err := tensor.EncodeFloat32(dt, vals)
	if err != nil {
		return err
	}
	copy(c.data[:bytes], raw)
	return nil
}
