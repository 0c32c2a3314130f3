//go:build windows

// Package wgpu hosts the dispatch engine on a WebGPU compute device.
// The hardware image is a WGSL program with a "main" entry point; the
// packed instruction stream is bound to the shader as a storage buffer
// alongside the three staging buffers, and the stream header sizes the
// dispatch grid.
package wgpu

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/npulab/aiedispatch/internal/artifact"
	"github.com/npulab/aiedispatch/internal/device"
)

const (
	bufferAlign   = 4096
	workgroupSize = 256
)

// Driver opens WebGPU-hosted devices. The zero value is ready to use.
type Driver struct{}

// Name identifies the driver.
func (Driver) Name() string { return "webgpu" }

// Open acquires a WebGPU adapter and device and compiles the hardware
// image's WGSL program into a compute pipeline.
func (Driver) Open(imagePath string) (dev device.Device, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			dev = nil
			err = fmt.Errorf("wgpu: native library not available: %v", r)
		}
	}()

	source, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("wgpu: load hardware image: %w", err)
	}

	instance := wgpu.CreateInstance(nil)
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("wgpu: failed to request adapter: %w", adapterErr)
	}
	wdev, devErr := adapter.RequestDevice(nil)
	if devErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("wgpu: failed to request device: %w", devErr)
	}
	queue := wdev.GetQueue()
	if queue == nil {
		wdev.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("wgpu: failed to get queue")
	}

	shader := wdev.CreateShaderModuleWGSL(string(source))
	pipeline := wdev.CreateComputePipelineSimple(nil, shader, "main")

	d := &Device{
		instance: instance,
		adapter:  adapter,
		dev:      wdev,
		queue:    queue,
		shader:   shader,
		pipeline: pipeline,
		buffers:  make(map[uint64]*Buffer),
		next:     bufferAlign,
	}
	d.kernel = &Kernel{dev: d}
	return d, nil
}

// Device is an open WebGPU-hosted accelerator.
type Device struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	dev      *wgpu.Device
	queue    *wgpu.Queue
	shader   *wgpu.ShaderModule
	pipeline *wgpu.ComputePipeline
	kernel   *Kernel

	mu      sync.Mutex
	buffers map[uint64]*Buffer
	next    uint64
}

// Kernel returns the device's kernel entry point.
func (d *Device) Kernel() device.Kernel { return d.kernel }

// NewBuffer allocates a storage buffer with a host shadow and assigns it
// a device address in the engine's aperture bookkeeping.
func (d *Device) NewBuffer(size int) (device.Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("wgpu: invalid buffer size %d", size)
	}
	// Storage bindings require 4-byte aligned sizes.
	aligned := (uint64(size) + 3) &^ 3
	buf := d.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  aligned,
	})

	d.mu.Lock()
	defer d.mu.Unlock()
	b := &Buffer{
		dev:  d,
		buf:  buf,
		addr: d.next,
		host: make([]byte, size),
	}
	d.next += (uint64(size) + bufferAlign - 1) &^ (bufferAlign - 1)
	d.buffers[b.addr] = b
	return b, nil
}

// Release frees all buffers and the WebGPU objects.
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range d.buffers {
		b.buf.Release()
	}
	d.buffers = make(map[uint64]*Buffer)
	if d.pipeline != nil {
		d.pipeline.Release()
		d.pipeline = nil
	}
	if d.shader != nil {
		d.shader.Release()
		d.shader = nil
	}
	if d.queue != nil {
		d.queue.Release()
		d.queue = nil
	}
	if d.dev != nil {
		d.dev.Release()
		d.dev = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}

func (d *Device) lookup(launchAddr uint64) (*Buffer, error) {
	if launchAddr < device.DDRAIEAddrOffset {
		return nil, fmt.Errorf("wgpu: address %#x below DDR aperture", launchAddr)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[launchAddr-device.DDRAIEAddrOffset]
	if !ok {
		return nil, fmt.Errorf("wgpu: no buffer at address %#x", launchAddr)
	}
	return b, nil
}

// Buffer pairs a WebGPU storage buffer with a host shadow.
type Buffer struct {
	dev  *Device
	buf  *wgpu.Buffer
	addr uint64
	host []byte
}

// Map returns the host-side view of the buffer.
func (b *Buffer) Map() []byte { return b.host }

// SyncToDevice uploads the host view through a mapped-at-creation
// staging buffer and a buffer-to-buffer copy.
func (b *Buffer) SyncToDevice() error {
	size := uint64(len(b.host))
	upload := b.dev.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageCopySrc,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	defer upload.Release()

	mappedPtr := upload.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, b.host)
	upload.Unmap()

	encoder := b.dev.dev.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(upload, 0, b.buf, 0, size)
	cmdBuffer := encoder.Finish(nil)
	b.dev.queue.Submit(cmdBuffer)
	return nil
}

// SyncFromDevice reads the storage buffer back into the host view
// through a map-read staging buffer. The map wait also drains any
// in-flight dispatch that wrote the buffer.
func (b *Buffer) SyncFromDevice() error {
	size := uint64(len(b.host))
	staging := b.dev.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := b.dev.dev.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(b.buf, 0, staging, 0, size)
	cmdBuffer := encoder.Finish(nil)
	b.dev.queue.Submit(cmdBuffer)

	if err := staging.MapAsync(b.dev.dev, wgpu.MapModeRead, 0, size); err != nil {
		return fmt.Errorf("wgpu: failed to map staging buffer: %w", err)
	}
	mappedPtr := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(b.host, mappedSlice)
	staging.Unmap()
	return nil
}

// Address returns the buffer's device address.
func (b *Buffer) Address() uint64 { return b.addr }

// Size returns the buffer's byte size.
func (b *Buffer) Size() int { return len(b.host) }

// Release frees the buffer.
func (b *Buffer) Release() {
	b.dev.mu.Lock()
	delete(b.dev.buffers, b.addr)
	b.dev.mu.Unlock()
	b.buf.Release()
}

// Kernel dispatches the image's compute pipeline.
type Kernel struct {
	dev *Device
}

// Run binds the staging buffers and the instruction stream to the
// pipeline and dispatches a grid sized from the stream header. The
// launch is drained by the caller's output sync.
func (k *Kernel) Run(instr device.Buffer, words int, a, b, c uint64) error {
	ib, ok := instr.(*Buffer)
	if !ok {
		return fmt.Errorf("wgpu: foreign instruction buffer")
	}
	if 4*words > len(ib.host) {
		return fmt.Errorf("wgpu: instruction word count %d exceeds buffer size %d", words, len(ib.host))
	}
	spec, err := artifact.Unpack(ib.host[:4*words])
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

	bindGroupLayout := k.dev.pipeline.GetBindGroupLayout(0)
	bindGroup := k.dev.dev.CreateBindGroupSimple(bindGroupLayout, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, abuf.buf, 0, uint64(len(abuf.host))),
		wgpu.BufferBindingEntry(1, bbuf.buf, 0, uint64(len(bbuf.host))),
		wgpu.BufferBindingEntry(2, cbuf.buf, 0, uint64(len(cbuf.host))),
		wgpu.BufferBindingEntry(3, ib.buf, 0, uint64(4*words)),
	})
	defer bindGroup.Release()

	encoder := k.dev.dev.CreateCommandEncoder(nil)
	computePass := encoder.BeginComputePass(nil)
	computePass.SetPipeline(k.dev.pipeline)
	computePass.SetBindGroup(0, bindGroup, nil)

	elems := spec.M * spec.K
	if spec.Op == artifact.OpMatMul {
		elems = spec.M * spec.N
	}
	//nolint:gosec // G115: workgroup count is non-negative
	workgroups := uint32((elems + workgroupSize - 1) / workgroupSize)
	computePass.DispatchWorkgroups(workgroups, 1, 1)
	computePass.End()

	cmdBuffer := encoder.Finish(nil)
	k.dev.queue.Submit(cmdBuffer)
	return nil
}
