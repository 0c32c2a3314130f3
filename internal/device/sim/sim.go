// Package sim implements an in-process simulated accelerator behind the
// device interfaces. It interprets packed instruction streams and executes
// the selected kernel on the staged operand bytes, with the same
// map/sync/launch discipline a real device requires: host writes are not
// visible to a kernel until SyncToDevice, and kernel output is not visible
// to the host until SyncFromDevice.
package sim

import (
	"fmt"
	"os"
	"sync"

	"github.com/npulab/aiedispatch/internal/device"
)

const bufferAlign = 4096

// Driver opens simulated devices. The zero value is ready to use.
type Driver struct{}

// Name identifies the driver.
func (Driver) Name() string { return "aie-sim" }

// Open verifies the hardware image exists and returns a simulated device
// for it. The image contents are not interpreted.
func (Driver) Open(imagePath string) (device.Device, error) {
	if _, err := os.Stat(imagePath); err != nil {
		return nil, fmt.Errorf("sim: load hardware image: %w", err)
	}
	d := &Device{
		image:   imagePath,
		buffers: make(map[uint64]*Buffer),
		next:    bufferAlign,
	}
	d.kernel = &Kernel{dev: d}
	return d, nil
}

// Device is an open simulated accelerator.
type Device struct {
	image  string
	kernel *Kernel

	mu      sync.Mutex
	buffers map[uint64]*Buffer
	next    uint64
}

// Kernel returns the device's kernel entry point.
func (d *Device) Kernel() device.Kernel { return d.kernel }

// NewBuffer allocates a device-visible region with distinct host and
// device halves, at a unique device address.
func (d *Device) NewBuffer(size int) (device.Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("sim: invalid buffer size %d", size)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	b := &Buffer{
		dev:  d,
		addr: d.next,
		host: make([]byte, size),
		data: make([]byte, size),
	}
	d.next += (uint64(size) + bufferAlign - 1) &^ (bufferAlign - 1)
	d.buffers[b.addr] = b
	return b, nil
}

// Release frees all buffers and invalidates the device.
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buffers = make(map[uint64]*Buffer)
}

// lookup resolves a launch address (device base + DDR aperture offset)
// back to the buffer allocated at it.
func (d *Device) lookup(launchAddr uint64) (*Buffer, error) {
	if launchAddr < device.DDRAIEAddrOffset {
		return nil, fmt.Errorf("sim: address %#x below DDR aperture", launchAddr)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[launchAddr-device.DDRAIEAddrOffset]
	if !ok {
		return nil, fmt.Errorf("sim: no buffer at address %#x", launchAddr)
	}
	return b, nil
}

// Buffer is a simulated device-visible region. host is the mapped view,
// data the device-side contents.
type Buffer struct {
	dev  *Device
	addr uint64
	host []byte
	data []byte
}

// Map returns the host-side view of the buffer.
func (b *Buffer) Map() []byte { return b.host }

// SyncToDevice publishes the host view to the device side.
func (b *Buffer) SyncToDevice() error {
	copy(b.data, b.host)
	return nil
}

// SyncFromDevice pulls the device side back into the host view.
func (b *Buffer) SyncFromDevice() error {
	copy(b.host, b.data)
	return nil
}

// Address returns the buffer's device address.
func (b *Buffer) Address() uint64 { return b.addr }

// Size returns the buffer's byte size.
func (b *Buffer) Size() int { return len(b.host) }

// Release frees the buffer's device address.
func (b *Buffer) Release() {
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()
	delete(b.dev.buffers, b.addr)
}
