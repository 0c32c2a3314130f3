package artifact

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/npulab/aiedispatch/internal/tensor"
)

func TestPackUnpack(t *testing.T) {
	spec := BlobSpec{Op: OpMatMul, DType: tensor.Float16, M: 128, K: 4096, N: 512}
	data := Pack(spec, 16)
	if len(data) != headerBytes+16*4 {
		t.Fatalf("Pack produced %d bytes, want %d", len(data), headerBytes+16*4)
	}
	if len(data)%4 != 0 {
		t.Fatalf("stream length %d is not word aligned", len(data))
	}

	got, err := Unpack(data)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if diff := cmp.Diff(spec, got); diff != "" {
		t.Errorf("Unpack mismatch (-want +got):\n%s", diff)
	}
}

func TestUnpackRejectsGarbage(t *testing.T) {
	if _, err := Unpack([]byte{1, 2, 3}); err == nil {
		t.Error("Unpack should reject truncated streams")
	}
	bad := Pack(BlobSpec{Op: OpRMSNorm, M: 1, K: 1}, 0)
	bad[0] ^= 0xff
	if _, err := Unpack(bad); err == nil {
		t.Error("Unpack should reject a bad magic")
	}
	badVersion := Pack(BlobSpec{Op: OpRMSNorm, M: 1, K: 1}, 0)
	badVersion[4] = 0x7f
	if _, err := Unpack(badVersion); err == nil {
		t.Error("Unpack should reject an unknown version")
	}
}
