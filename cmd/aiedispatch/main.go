// Package main provides the aiedispatch CLI: artifact-store inspection
// and packing, and a simulator-backed operator benchmark.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

const version = "v0.1.0-dev"

func main() {
	root := &cobra.Command{
		Use:           "aiedispatch",
		Short:         "Operator dispatch engine for AIE-style accelerators",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(artifactsCmd(), benchCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
