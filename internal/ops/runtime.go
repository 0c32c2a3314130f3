package ops

import (
	"log/slog"
	"sync"

	"github.com/npulab/aiedispatch/internal/artifact"
	"github.com/npulab/aiedispatch/internal/device"
	"github.com/npulab/aiedispatch/internal/metrics"
	"github.com/npulab/aiedispatch/internal/registry"
)

// Runtime bundles the process-scoped collaborators every operator
// instance shares: the artifact store, the device-context registry, the
// metrics sink and per-kind instance counters. Callers build one Runtime
// per process and pass it to each operator constructor.
type Runtime struct {
	Store    *artifact.Store
	Contexts *device.Registry
	Metrics  *metrics.Sink
	Log      *slog.Logger

	mu    sync.Mutex
	ids   map[string]uint64
	instr map[*device.Context]*registry.Registry
}

// NewRuntime assembles a runtime from its collaborators.
func NewRuntime(store *artifact.Store, contexts *device.Registry, sink *metrics.Sink) *Runtime {
	return &Runtime{
		Store:    store,
		Contexts: contexts,
		Metrics:  sink,
		Log:      slog.Default(),
		ids:      make(map[string]uint64),
		instr:    make(map[*device.Context]*registry.Registry),
	}
}

// InstrRegistry returns the instruction registry owned by ctx, creating
// it on first use. Every operator instance bound to the same device
// context shares one registry, so an instruction blob is loaded at most
// once per context regardless of how many instances request it.
func (rt *Runtime) InstrRegistry(ctx *device.Context) *registry.Registry {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	r, ok := rt.instr[ctx]
	if !ok {
		r = registry.New(rt.Store, ctx.Device())
		rt.instr[ctx] = r
	}
	return r
}

// NextID allocates the next instance id for an operator kind.
func (rt *Runtime) NextID(kind string) uint64 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	id := rt.ids[kind]
	rt.ids[kind] = id + 1
	return id
}
