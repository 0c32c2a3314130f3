package ops

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/npulab/aiedispatch/internal/device"
	"github.com/npulab/aiedispatch/internal/metrics"
	"github.com/npulab/aiedispatch/internal/registry"
)

// Pipeline owns one operator instance's staging buffers and drives the
// fixed per-call stage sequence: stage inputs, resolve the instruction
// blob, launch and wait, fetch the output, record the timing line.
//
// The staging buffers are sized once at construction to the largest
// supported shape and reused for every call; a call with a smaller
// admissible shape touches only the prefix it needs. An internal lock
// serializes calls, so one launch is in flight per instance.
type Pipeline struct {
	kind    string
	variant string
	id      uint64

	rt    *Runtime
	ctx   *device.Context
	instr *registry.Registry

	a device.Buffer
	b device.Buffer
	c device.Buffer

	mu          sync.Mutex
	invocations atomic.Uint64
}

// Call carries one invocation's staged byte views and geometry. The
// slices are sized from the actual shapes of the call, not the maxima.
type Call struct {
	Key  string
	Rows int
	Cols int
	A    []byte // primary operand bytes
	B    []byte // secondary operand / weight bytes
	Out  []byte // destination for result bytes
}

// NewPipeline allocates the three staging buffers on the context's
// device and binds the pipeline to its instruction registry.
func NewPipeline(rt *Runtime, kind, variant string, ctx *device.Context, instr *registry.Registry, aBytes, bBytes, cBytes int) (*Pipeline, error) {
	p := &Pipeline{
		kind:    kind,
		variant: variant,
		id:      rt.NextID(kind),
		rt:      rt,
		ctx:     ctx,
		instr:   instr,
	}
	var err error
	if p.a, err = ctx.Device().NewBuffer(aBytes); err != nil {
		return nil, fmt.Errorf("%s: allocate input-A staging buffer: %w", kind, err)
	}
	if p.b, err = ctx.Device().NewBuffer(bBytes); err != nil {
		p.a.Release()
		return nil, fmt.Errorf("%s: allocate input-B staging buffer: %w", kind, err)
	}
	if p.c, err = ctx.Device().NewBuffer(cBytes); err != nil {
		p.a.Release()
		p.b.Release()
		return nil, fmt.Errorf("%s: allocate output staging buffer: %w", kind, err)
	}
	return p, nil
}

// ID returns the instance id within the operator kind.
func (p *Pipeline) ID() uint64 { return p.id }

// Variant returns the variant key the pipeline serves.
func (p *Pipeline) Variant() string { return p.variant }

// Registry returns the pipeline's instruction registry.
func (p *Pipeline) Registry() *registry.Registry { return p.instr }

// StagingSizes returns the allocated byte sizes of the input-A, input-B
// and output staging buffers.
func (p *Pipeline) StagingSizes() (a, b, c int) {
	return p.a.Size(), p.b.Size(), p.c.Size()
}

// Invocations returns how many calls have completed successfully.
func (p *Pipeline) Invocations() uint64 {
	return p.invocations.Load()
}

// Release frees the staging buffers. The shared device context stays
// open; it belongs to the context registry.
func (p *Pipeline) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.a.Release()
	p.b.Release()
	p.c.Release()
}

// Run executes the staged pipeline for one validated call. Shape
// validation is the caller's stage; Run starts at input staging.
//
// On a lookup failure the staging buffers are left populated and the
// instance remains usable for the next call. A hardware failure is
// returned as-is, never retried.
func (p *Pipeline) Run(call Call) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(call.A) > p.a.Size() || len(call.B) > p.b.Size() || len(call.Out) > p.c.Size() {
		return &ShapeError{Op: p.kind, Reason: fmt.Sprintf(
			"call bytes (%d, %d, %d) exceed staging buffers (%d, %d, %d)",
			len(call.A), len(call.B), len(call.Out), p.a.Size(), p.b.Size(), p.c.Size())}
	}

	var rec metrics.Record
	rec.OpID = p.id
	rec.Rows = call.Rows
	rec.Cols = call.Cols
	execStart := time.Now()

	// Stage input A: host copy, then host-to-device sync, timed apart.
	t := time.Now()
	copy(p.a.Map(), call.A)
	rec.ACopy = time.Since(t)
	t = time.Now()
	if err := p.a.SyncToDevice(); err != nil {
		return &HardwareError{Op: p.kind, Stage: "input-A sync", Err: err}
	}
	rec.ASync = time.Since(t)

	// Stage input B.
	t = time.Now()
	copy(p.b.Map(), call.B)
	rec.BCopy = time.Since(t)
	t = time.Now()
	if err := p.b.SyncToDevice(); err != nil {
		return &HardwareError{Op: p.kind, Stage: "input-B sync", Err: err}
	}
	rec.BSync = time.Since(t)

	// Resolve the instruction blob for the actual shape.
	entry, err := p.instr.Get(call.Key)
	if err != nil {
		return err
	}

	// Launch and wait for hardware completion.
	t = time.Now()
	err = p.ctx.Kernel().Run(entry.Buf, entry.Words,
		p.a.Address()+device.DDRAIEAddrOffset,
		p.b.Address()+device.DDRAIEAddrOffset,
		p.c.Address()+device.DDRAIEAddrOffset)
	rec.RunTime = time.Since(t)
	rec.Runs = 1
	if err != nil {
		return &HardwareError{Op: p.kind, Stage: "kernel launch", Err: err}
	}

	// Fetch the output: device-to-host sync, then copy into the caller's tensor.
	t = time.Now()
	if err := p.c.SyncFromDevice(); err != nil {
		return &HardwareError{Op: p.kind, Stage: "output sync", Err: err}
	}
	rec.CSync = time.Since(t)
	t = time.Now()
	copy(call.Out, p.c.Map()[:len(call.Out)])
	rec.CCopy = time.Since(t)

	rec.Exec = time.Since(execStart)
	p.rt.Metrics.Emit(p.kind, rec)
	p.invocations.Add(1)
	return nil
}
