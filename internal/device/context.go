package device

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Context is the shared handle for one hardware image: the open device
// plus its kernel entry point. Contexts are valid for the registry's
// lifetime; operators never release them individually.
type Context struct {
	image  string
	dev    Device
	kernel Kernel
}

// Image returns the hardware-image path the context was opened for.
func (c *Context) Image() string { return c.image }

// Device returns the open device.
func (c *Context) Device() Device { return c.dev }

// Kernel returns the loaded kernel entry point.
func (c *Context) Kernel() Kernel { return c.kernel }

type contextEntry struct {
	once sync.Once
	ctx  *Context
	err  error
}

// Registry hands out Contexts keyed by hardware-image path with
// exactly-once acquisition: the first caller for a path opens the device,
// concurrent callers for the same path block and receive the same handle.
type Registry struct {
	driver Driver
	log    *slog.Logger

	mu      sync.Mutex
	entries map[string]*contextEntry

	acquisitions atomic.Uint64
}

// NewRegistry creates a context registry backed by the given driver.
func NewRegistry(driver Driver) *Registry {
	return &Registry{
		driver:  driver,
		log:     slog.Default(),
		entries: make(map[string]*contextEntry),
	}
}

// GetOrCreate returns the context for imagePath, opening the device on
// first use. The open result, success or failure, is cached for the
// process lifetime; the expensive acquisition never repeats.
func (r *Registry) GetOrCreate(imagePath string) (*Context, error) {
	r.mu.Lock()
	e, ok := r.entries[imagePath]
	if !ok {
		e = &contextEntry{}
		r.entries[imagePath] = e
	}
	r.mu.Unlock()

	e.once.Do(func() {
		r.acquisitions.Add(1)
		dev, err := r.driver.Open(imagePath)
		if err != nil {
			e.err = err
			return
		}
		e.ctx = &Context{image: imagePath, dev: dev, kernel: dev.Kernel()}
		r.log.Debug("device context acquired", "driver", r.driver.Name(), "image", imagePath)
	})
	return e.ctx, e.err
}

// Acquisitions returns how many device acquisitions the registry has
// performed. Constructing any number of operators against the same image
// leaves this at one.
func (r *Registry) Acquisitions() uint64 {
	return r.acquisitions.Load()
}

// Release frees every device the registry has opened. Intended for
// process teardown; contexts must not be used afterwards.
func (r *Registry) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.ctx != nil {
			e.ctx.dev.Release()
		}
	}
	r.entries = make(map[string]*contextEntry)
}
