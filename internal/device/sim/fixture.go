package sim

import "github.com/npulab/aiedispatch/internal/artifact"

const fillerWords = 64

// Install writes a hardware image marker and a set of packed instruction
// blobs into an artifact store. Fixture generator for tests and the CLI.
func Install(store *artifact.Store, image string, blobs map[string]artifact.BlobSpec) error {
	if err := store.WriteImage(image, []byte("aie-sim image "+image)); err != nil {
		return err
	}
	for key, spec := range blobs {
		if err := store.WriteInstruction(key, artifact.Pack(spec, fillerWords)); err != nil {
			return err
		}
	}
	return nil
}
