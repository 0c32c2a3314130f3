package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/npulab/aiedispatch/internal/artifact"
	"github.com/npulab/aiedispatch/internal/device/sim"
	"github.com/npulab/aiedispatch/internal/ops"
	"github.com/npulab/aiedispatch/internal/ops/matmul"
	"github.com/npulab/aiedispatch/internal/ops/rmsnorm"
)

func artifactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "Inspect and generate the instruction artifact store",
	}

	var root string
	list := &cobra.Command{
		Use:   "list",
		Short: "List hardware images and instruction keys in the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := artifact.Open(root)
			if err != nil {
				return err
			}
			return listArtifacts(store)
		},
	}
	list.Flags().StringVar(&root, "root", artifact.DefaultRoot(), "artifact store root")

	var packRoot string
	pack := &cobra.Command{
		Use:   "pack",
		Short: "Pack the simulator instruction store for all supported shapes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(packRoot, 0o755); err != nil {
				return err
			}
			store, err := artifact.Open(packRoot)
			if err != nil {
				return err
			}
			if err := packStore(store); err != nil {
				return err
			}
			keys, err := store.Keys()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "packed %d instruction blobs under %s\n", len(keys), packRoot)
			return nil
		},
	}
	pack.Flags().StringVar(&packRoot, "root", artifact.DefaultRoot(), "artifact store root")

	cmd.AddCommand(list, pack)
	return cmd
}

func listArtifacts(store *artifact.Store) error {
	images, err := store.Images()
	if err != nil {
		return err
	}
	keys, err := store.Keys()
	if err != nil {
		return err
	}

	data := make([][]string, 0, len(images)+len(keys))
	for _, name := range images {
		data = append(data, []string{"image", name, store.ImagePath(name)})
	}
	for _, key := range keys {
		data = append(data, []string{"instruction", key, ""})
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"KIND", "NAME", "PATH"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
	return nil
}

// packStore writes the simulator image and one packed blob per
// supported shape of every operator family and dtype variant.
func packStore(store *artifact.Store) error {
	blobs := make(map[string]artifact.BlobSpec)
	for dt, tag := range rmsnorm.Tags() {
		variant := ops.VariantKey(rmsnorm.KeyFamily, tag)
		for _, s := range rmsnorm.Shapes() {
			blobs[ops.InstrKey(variant, s[0], s[1])] = artifact.BlobSpec{
				Op: artifact.OpRMSNorm, DType: dt, M: s[0], K: s[1],
			}
		}
	}
	for dt, tag := range matmul.Tags() {
		variant := ops.VariantKey(matmul.KeyFamily, tag)
		for _, s := range matmul.Shapes() {
			blobs[ops.InstrKey(variant, s[0], s[1])] = artifact.BlobSpec{
				Op: artifact.OpMatMul, DType: dt, M: s[0], K: s[1], N: matmul.N,
			}
		}
	}
	return sim.Install(store, rmsnorm.Image, blobs)
}
