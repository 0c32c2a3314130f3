package main

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/spf13/cobra"

	"github.com/npulab/aiedispatch/internal/artifact"
	"github.com/npulab/aiedispatch/internal/device"
	"github.com/npulab/aiedispatch/internal/device/sim"
	"github.com/npulab/aiedispatch/internal/metrics"
	"github.com/npulab/aiedispatch/internal/ops"
	"github.com/npulab/aiedispatch/internal/ops/matmul"
	"github.com/npulab/aiedispatch/internal/ops/rmsnorm"
	"github.com/npulab/aiedispatch/internal/tensor"
)

func benchCmd() *cobra.Command {
	var (
		root  string
		op    string
		dtype string
		rows  int
		cols  int
		iters int
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run an operator against the simulator and print stage timings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if root == "" {
				dir, err := os.MkdirTemp("", "aiedispatch-bench")
				if err != nil {
					return err
				}
				defer os.RemoveAll(dir)
				store, err := artifact.Open(dir)
				if err != nil {
					return err
				}
				if err := packStore(store); err != nil {
					return err
				}
				root = dir
			}
			store, err := artifact.Open(root)
			if err != nil {
				return err
			}
			rt := ops.NewRuntime(store, device.NewRegistry(sim.Driver{}), metrics.NewSink(cmd.OutOrStdout()))
			return runBench(rt, op, dtype, rows, cols, iters)
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "artifact store root (default: packed temp store)")
	cmd.Flags().StringVar(&op, "op", "rmsnorm", "operator family (rmsnorm or matmul)")
	cmd.Flags().StringVar(&dtype, "dtype", "bfloat16", "operand dtype tag")
	cmd.Flags().IntVar(&rows, "rows", 128, "activation rows")
	cmd.Flags().IntVar(&cols, "cols", 4096, "activation columns")
	cmd.Flags().IntVar(&iters, "iters", 10, "invocations to run")
	return cmd
}

func runBench(rt *ops.Runtime, op, dtype string, rows, cols, iters int) error {
	dt, err := tensor.ParseDataType(dtype)
	if err != nil {
		return err
	}

	var inputs, outputs []tensor.Tensor
	var execute func(inputs, outputs []tensor.Tensor) error

	switch op {
	case rmsnorm.Kind:
		o, err := rmsnorm.New(rt, dtype)
		if err != nil {
			return err
		}
		defer o.Release()
		inputs = []tensor.Tensor{
			randomTensor(dt, tensor.Shape{rows, cols}),
			randomTensor(dt, tensor.Shape{cols}),
		}
		outputs = []tensor.Tensor{emptyTensor(dt, tensor.Shape{rows, cols})}
		execute = o.Execute
	case matmul.Kind:
		o, err := matmul.New(rt, dtype)
		if err != nil {
			return err
		}
		defer o.Release()
		inputs = []tensor.Tensor{
			randomTensor(dt, tensor.Shape{rows, cols}),
			randomTensor(dt, tensor.Shape{cols, matmul.N}),
		}
		outputs = []tensor.Tensor{emptyTensor(dt, tensor.Shape{rows, matmul.N})}
		execute = o.Execute
	default:
		return fmt.Errorf("unknown operator family %q", op)
	}

	for i := 0; i < iters; i++ {
		if err := execute(inputs, outputs); err != nil {
			return err
		}
	}
	return nil
}

func randomTensor(dt tensor.DataType, shape tensor.Shape) tensor.Tensor {
	vals := make([]float32, shape.NumElements())
	for i := range vals {
		vals[i] = rand.Float32()*2 - 1
	}
	raw, err := tensor.EncodeFloat32(dt, vals)
	if err != nil {
		panic(err)
	}
	return tensor.Tensor{Data: raw, DType: dt, Shape: shape}
}

func emptyTensor(dt tensor.DataType, shape tensor.Shape) tensor.Tensor {
	return tensor.Tensor{
		Data:  make([]byte, shape.NumElements()*dt.Size()),
		DType: dt,
		Shape: shape,
	}
}
