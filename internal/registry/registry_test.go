package registry_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/npulab/aiedispatch/internal/artifact"
	"github.com/npulab/aiedispatch/internal/device/sim"
	"github.com/npulab/aiedispatch/internal/registry"
	"github.com/npulab/aiedispatch/internal/tensor"
)

func newTestRegistry(t *testing.T, keys ...string) (*registry.Registry, *artifact.Store) {
	t.Helper()
	store, err := artifact.Open(t.TempDir())
	require.NoError(t, err)

	blobs := make(map[string]artifact.BlobSpec, len(keys))
	for i, key := range keys {
		blobs[key] = artifact.BlobSpec{Op: artifact.OpRMSNorm, DType: tensor.BFloat16, M: 128 << i, K: 4096}
	}
	require.NoError(t, sim.Install(store, "img", blobs))

	dev, err := sim.Driver{}.Open(store.ImagePath("img"))
	require.NoError(t, err)
	t.Cleanup(dev.Release)

	reg := registry.New(store, dev)
	reg.Register(keys...)
	return reg, store
}

func TestGetLoadsOnce(t *testing.T) {
	reg, store := newTestRegistry(t, "rmsnorm_a16_128_4096")

	first, err := reg.Get("rmsnorm_a16_128_4096")
	require.NoError(t, err)
	require.Equal(t, uint64(1), reg.Loads())

	want, err := store.Instruction("rmsnorm_a16_128_4096")
	require.NoError(t, err)
	require.True(t, bytes.Equal(first.Buf.Map(), want), "staged blob should be byte-identical to the artifact")
	require.Equal(t, len(want)/4, first.Words)

	second, err := reg.Get("rmsnorm_a16_128_4096")
	require.NoError(t, err)
	require.Same(t, first.Buf, second.Buf, "repeated lookups should return the cached entry")
	require.Equal(t, uint64(1), reg.Loads(), "the backing artifact must be read at most once")
}

func TestGetUnregisteredKey(t *testing.T) {
	reg, _ := newTestRegistry(t, "rmsnorm_a16_128_4096")
	_, err := reg.Get("rmsnorm_a16_64_64")
	require.ErrorIs(t, err, registry.ErrNotRegistered)
}

func TestGetMissingArtifact(t *testing.T) {
	reg, _ := newTestRegistry(t, "rmsnorm_a16_128_4096")
	reg.Register("rmsnorm_a16_512_4096") // registered, but no blob in the store
	_, err := reg.Get("rmsnorm_a16_512_4096")
	require.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestConcurrentSameKeyLoadsOnce(t *testing.T) {
	reg, _ := newTestRegistry(t, "rmsnorm_a16_128_4096")

	const callers = 8
	entries := make([]registry.Entry, callers)
	errs := make([]error, callers)

	var start sync.WaitGroup
	start.Add(1)
	var done sync.WaitGroup
	for i := 0; i < callers; i++ {
		done.Add(1)
		go func() {
			defer done.Done()
			start.Wait()
			entries[i], errs[i] = reg.Get("rmsnorm_a16_128_4096")
		}()
	}
	start.Done()
	done.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Same(t, entries[0].Buf, entries[i].Buf, "all callers must observe the same cached blob")
	}
	require.Equal(t, uint64(1), reg.Loads(), "only one underlying load may occur")
}

func TestPreload(t *testing.T) {
	keys := []string{"rmsnorm_a16_128_4096", "rmsnorm_a16_256_4096", "rmsnorm_a16_512_4096"}
	reg, _ := newTestRegistry(t, keys...)

	require.NoError(t, reg.Preload(context.Background(), 2))
	require.Equal(t, uint64(len(keys)), reg.Loads())

	// A second preload finds everything cached.
	require.NoError(t, reg.Preload(context.Background(), 2))
	require.Equal(t, uint64(len(keys)), reg.Loads())
}

func TestPreloadPropagatesLoadErrors(t *testing.T) {
	reg, _ := newTestRegistry(t, "rmsnorm_a16_128_4096")
	reg.Register("rmsnorm_a16_2048_4096") // no backing artifact
	err := reg.Preload(context.Background(), 4)
	require.Error(t, err)
	require.True(t, errors.Is(err, artifact.ErrNotFound))
}

func TestKeys(t *testing.T) {
	reg, _ := newTestRegistry(t, "a", "b")
	require.ElementsMatch(t, []string{"a", "b"}, reg.Keys())
}
