// Copyright 2026 The aiedispatch Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package dispatch_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/npulab/aiedispatch/dispatch"
	"github.com/npulab/aiedispatch/internal/artifact"
	"github.com/npulab/aiedispatch/internal/device/sim"
	"github.com/npulab/aiedispatch/internal/ops"
	"github.com/npulab/aiedispatch/internal/ops/rmsnorm"
)

func TestFacadeEndToEnd(t *testing.T) {
	store, err := dispatch.OpenStore(t.TempDir())
	require.NoError(t, err)

	blobs := make(map[string]artifact.BlobSpec)
	for dt, tag := range rmsnorm.Tags() {
		for _, s := range rmsnorm.Shapes() {
			key := ops.InstrKey(ops.VariantKey(rmsnorm.KeyFamily, tag), s[0], s[1])
			blobs[key] = artifact.BlobSpec{Op: artifact.OpRMSNorm, DType: dt, M: s[0], K: s[1]}
		}
	}
	require.NoError(t, sim.Install(store, rmsnorm.Image, blobs))

	contexts := dispatch.NewContextRegistry(dispatch.NewSimDriver())
	defer contexts.Release()
	rt := dispatch.NewRuntime(store, contexts, io.Discard)

	op, err := dispatch.NewRMSNorm(rt, "bfloat16")
	require.NoError(t, err)
	defer op.Release()

	act := dispatch.Tensor{
		Data:  make([]byte, 128*4096*dispatch.BFloat16.Size()),
		DType: dispatch.BFloat16,
		Shape: dispatch.Shape{128, 4096},
	}
	wts := dispatch.Tensor{
		Data:  make([]byte, 4096*dispatch.BFloat16.Size()),
		DType: dispatch.BFloat16,
		Shape: dispatch.Shape{4096},
	}
	out := dispatch.Tensor{
		Data:  make([]byte, 128*4096*dispatch.BFloat16.Size()),
		DType: dispatch.BFloat16,
		Shape: dispatch.Shape{128, 4096},
	}

	require.NoError(t, op.Execute([]dispatch.Tensor{act, wts}, []dispatch.Tensor{out}))
	require.Equal(t, uint64(1), op.Invocations())

	_, err = dispatch.NewMatMul(rt, "float32")
	require.ErrorIs(t, err, dispatch.ErrUnsupportedDType)
}
