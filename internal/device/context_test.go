package device_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/npulab/aiedispatch/internal/device"
	"github.com/npulab/aiedispatch/internal/device/sim"
)

func writeImage(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("image"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return path
}

func TestGetOrCreateSharesContext(t *testing.T) {
	reg := device.NewRegistry(sim.Driver{})
	defer reg.Release()
	image := writeImage(t, "shared.xclbin")

	const callers = 16
	ctxs := make([]*device.Context, callers)
	errs := make([]error, callers)

	var start sync.WaitGroup
	start.Add(1)
	var done sync.WaitGroup
	for i := 0; i < callers; i++ {
		done.Add(1)
		go func() {
			defer done.Done()
			start.Wait()
			ctxs[i], errs[i] = reg.GetOrCreate(image)
		}()
	}
	start.Done()
	done.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("GetOrCreate[%d]: %v", i, errs[i])
		}
		if ctxs[i] != ctxs[0] {
			t.Fatalf("caller %d received a different context", i)
		}
	}
	if got := reg.Acquisitions(); got != 1 {
		t.Errorf("Acquisitions = %d, want 1", got)
	}
	if ctxs[0].Image() != image {
		t.Errorf("context image = %q, want %q", ctxs[0].Image(), image)
	}
	if ctxs[0].Kernel() == nil || ctxs[0].Device() == nil {
		t.Error("context should expose its device and kernel")
	}
}

func TestGetOrCreateDistinctImages(t *testing.T) {
	reg := device.NewRegistry(sim.Driver{})
	defer reg.Release()

	a, err := reg.GetOrCreate(writeImage(t, "a.xclbin"))
	if err != nil {
		t.Fatalf("GetOrCreate a: %v", err)
	}
	b, err := reg.GetOrCreate(writeImage(t, "b.xclbin"))
	if err != nil {
		t.Fatalf("GetOrCreate b: %v", err)
	}
	if a == b {
		t.Error("distinct images should get distinct contexts")
	}
	if got := reg.Acquisitions(); got != 2 {
		t.Errorf("Acquisitions = %d, want 2", got)
	}
}

func TestGetOrCreateMissingImage(t *testing.T) {
	reg := device.NewRegistry(sim.Driver{})
	missing := filepath.Join(t.TempDir(), "missing.xclbin")

	if _, err := reg.GetOrCreate(missing); err == nil {
		t.Fatal("GetOrCreate should fail for a missing image")
	}
	// The acquisition attempt is cached like a success: it never repeats.
	if _, err := reg.GetOrCreate(missing); err == nil {
		t.Fatal("cached failure should still be an error")
	}
	if got := reg.Acquisitions(); got != 1 {
		t.Errorf("Acquisitions = %d, want 1", got)
	}
}
