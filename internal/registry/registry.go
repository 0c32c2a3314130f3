// Package registry caches loaded instruction blobs in device-resident
// buffers, keyed by instruction key. Keys are declared up front at
// operator construction; the backing artifact for a key is read and
// staged on first request, at most once even under concurrent lookups.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/npulab/aiedispatch/internal/artifact"
	"github.com/npulab/aiedispatch/internal/device"
)

// ErrNotRegistered reports a lookup for a key that was never declared.
var ErrNotRegistered = errors.New("instruction key not registered")

// Entry is a loaded instruction blob: the device buffer holding the
// stream and its length in 32-bit words.
type Entry struct {
	Buf   device.Buffer
	Words int
}

type slot struct {
	once  sync.Once
	entry Entry
	err   error
}

// Registry maps instruction keys to loaded blobs for one device.
type Registry struct {
	store *artifact.Store
	dev   device.Device
	log   *slog.Logger

	mu    sync.Mutex
	slots map[string]*slot

	loads atomic.Uint64
}

// New creates an instruction registry that loads blobs from store into
// buffers on dev.
func New(store *artifact.Store, dev device.Device) *Registry {
	return &Registry{
		store: store,
		dev:   dev,
		log:   slog.Default(),
		slots: make(map[string]*slot),
	}
}

// Register declares instruction keys that may later be requested.
// Nothing is loaded; registration only reserves the keys.
func (r *Registry) Register(keys ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range keys {
		if _, ok := r.slots[key]; !ok {
			r.slots[key] = &slot{}
		}
	}
}

// Get returns the loaded blob for key, reading and staging the backing
// artifact on first use. Concurrent first requests for the same key
// perform a single load; all callers receive the same entry. Requests
// for unregistered keys fail with ErrNotRegistered.
func (r *Registry) Get(key string) (Entry, error) {
	r.mu.Lock()
	s, ok := r.slots[key]
	r.mu.Unlock()
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrNotRegistered, key)
	}

	s.once.Do(func() {
		s.entry, s.err = r.load(key)
	})
	return s.entry, s.err
}

// load reads the artifact for key and stages it into a device buffer.
func (r *Registry) load(key string) (Entry, error) {
	r.loads.Add(1)
	blob, err := r.store.Instruction(key)
	if err != nil {
		return Entry{}, err
	}
	buf, err := r.dev.NewBuffer(len(blob))
	if err != nil {
		return Entry{}, fmt.Errorf("stage instruction %q: %w", key, err)
	}
	copy(buf.Map(), blob)
	if err := buf.SyncToDevice(); err != nil {
		buf.Release()
		return Entry{}, fmt.Errorf("stage instruction %q: %w", key, err)
	}
	r.log.Debug("instruction loaded", "key", key, "words", len(blob)/4)
	return Entry{Buf: buf, Words: len(blob) / 4}, nil
}

// Preload loads every registered key, at most limit at a time. Keys that
// are already loaded are left alone. The first load error cancels the
// remaining work and is returned.
func (r *Registry) Preload(ctx context.Context, limit int) error {
	if limit <= 0 {
		limit = 1
	}
	r.mu.Lock()
	keys := make([]string, 0, len(r.slots))
	for key := range r.slots {
		keys = append(keys, key)
	}
	r.mu.Unlock()

	sem := semaphore.NewWeighted(int64(limit))
	g, ctx := errgroup.WithContext(ctx)
	for _, key := range keys {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			_, err := r.Get(key)
			return err
		})
	}
	return g.Wait()
}

// Loads returns how many backing-artifact reads the registry has
// performed. Repeated Gets for the same key leave this unchanged.
func (r *Registry) Loads() uint64 {
	return r.loads.Load()
}

// Keys returns the registered keys, loaded or not.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.slots))
	for key := range r.slots {
		keys = append(keys, key)
	}
	return keys
}
