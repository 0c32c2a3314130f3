// Package device defines the driver-neutral accelerator interfaces and the
// process-scoped context registry that shares one open device and kernel
// entry point per hardware image.
package device

// DDRAIEAddrOffset is the fixed device-address base added to every staging
// buffer address passed to a kernel launch. The accelerator's DMA engines
// see host DDR through this aperture.
const DDRAIEAddrOffset uint64 = 0x80000000

// Driver opens devices for hardware images. Implementations wrap one
// accelerator runtime (the in-process simulator, a WebGPU host, ...).
type Driver interface {
	// Name identifies the driver, for logging.
	Name() string
	// Open acquires the device for the given hardware image and loads
	// the image onto it. Open is expensive; callers share the result
	// through a Registry rather than calling it per operator.
	Open(imagePath string) (Device, error)
}

// Device is an open accelerator with a loaded hardware image.
type Device interface {
	// Kernel returns the image's kernel entry point.
	Kernel() Kernel
	// NewBuffer allocates a device-visible memory region of size bytes.
	NewBuffer(size int) (Buffer, error)
	// Release frees the device and everything allocated from it.
	Release()
}

// Kernel is a loaded kernel entry point. Run blocks until the hardware
// signals completion; there is no cancellation once a launch has started.
type Kernel interface {
	// Run launches the kernel with an instruction blob buffer, its word
	// count, and the device addresses of the input-A, input-B and output
	// staging buffers (each already offset by DDRAIEAddrOffset).
	Run(instr Buffer, words int, a, b, c uint64) error
}

// Buffer is a device-visible memory region. The host-side view returned
// by Map and the device-side contents are distinct until synchronized.
type Buffer interface {
	// Map returns the host-side view of the buffer.
	Map() []byte
	// SyncToDevice publishes the host-side contents to the device.
	SyncToDevice() error
	// SyncFromDevice pulls the device-side contents back to the host view.
	SyncFromDevice() error
	// Address returns the buffer's device address.
	Address() uint64
	// Size returns the buffer's byte size.
	Size() int
	// Release frees the buffer.
	Release()
}
