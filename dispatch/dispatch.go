// Copyright 2026 The aiedispatch Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package dispatch provides the public API of the operator execution
// engine: operand types, the shared runtime, and the operator
// constructors.
//
// Example:
//
//	store, _ := dispatch.OpenStore(root)
//	rt := dispatch.NewRuntime(store, dispatch.NewContextRegistry(dispatch.NewSimDriver()), nil)
//	op, err := dispatch.NewRMSNorm(rt, "bfloat16")
//	err = op.Execute(inputs, outputs)
package dispatch

import (
	"io"

	"github.com/npulab/aiedispatch/internal/artifact"
	"github.com/npulab/aiedispatch/internal/device"
	"github.com/npulab/aiedispatch/internal/device/sim"
	"github.com/npulab/aiedispatch/internal/metrics"
	"github.com/npulab/aiedispatch/internal/ops"
	"github.com/npulab/aiedispatch/internal/ops/matmul"
	"github.com/npulab/aiedispatch/internal/ops/rmsnorm"
	"github.com/npulab/aiedispatch/internal/tensor"
)

// Operand types.

// Shape is an ordered list of tensor dimensions.
type Shape = tensor.Shape

// DataType is the element dtype of an operand.
type DataType = tensor.DataType

// Element data types.
const (
	BFloat16 DataType = tensor.BFloat16
	Float16  DataType = tensor.Float16
)

// Tensor is a caller-owned operand view.
type Tensor = tensor.Tensor

// Runtime is the process-scoped state shared by operator instances.
type Runtime = ops.Runtime

// BufferReq is one (role, byte-size) pair of a buffer-requirements answer.
type BufferReq = ops.BufferReq

// Driver is a device-layer driver.
type Driver = device.Driver

// Store is an on-disk artifact store.
type Store = artifact.Store

// Error taxonomy.

// ShapeError reports an operand geometry violation.
type ShapeError = ops.ShapeError

// HardwareError reports a device-layer launch or sync failure.
type HardwareError = ops.HardwareError

// Construction errors.
var (
	ErrUnsupportedDType = ops.ErrUnsupportedDType
	ErrBadShapeTable    = ops.ErrBadShapeTable
)

// OpenStore opens the artifact store rooted at dir.
func OpenStore(dir string) (*Store, error) {
	return artifact.Open(dir)
}

// NewContextRegistry creates the process-wide device-context registry
// for a driver.
func NewContextRegistry(driver Driver) *device.Registry {
	return device.NewRegistry(driver)
}

// NewSimDriver returns the software-simulated device driver. It executes
// kernels on the host and stands in for the NPU driver on machines
// without the hardware.
func NewSimDriver() Driver {
	return sim.Driver{}
}

// NewRuntime assembles a runtime. A nil metrics writer logs timing
// lines to stderr.
func NewRuntime(store *Store, contexts *device.Registry, metricsW io.Writer) *Runtime {
	return ops.NewRuntime(store, contexts, metrics.NewSink(metricsW))
}

// NewRMSNorm constructs an RMS-norm operator instance.
func NewRMSNorm(rt *Runtime, operandDType string) (*rmsnorm.Op, error) {
	return rmsnorm.New(rt, operandDType)
}

// NewMatMul constructs a GEMM operator instance.
func NewMatMul(rt *Runtime, operandDType string) (*matmul.Op, error) {
	return matmul.New(rt, operandDType)
}
