package tensor

import (
	"testing"
)

func TestShapeNumElements(t *testing.T) {
	tests := []struct {
		shape Shape
		want  int
	}{
		{Shape{}, 1},
		{Shape{4096}, 4096},
		{Shape{128, 4096}, 524288},
		{Shape{2, 3, 4}, 24},
	}
	for _, tt := range tests {
		if got := tt.shape.NumElements(); got != tt.want {
			t.Errorf("NumElements(%v) = %d, want %d", tt.shape, got, tt.want)
		}
	}
}

func TestShapeValidate(t *testing.T) {
	if err := (Shape{128, 4096}).Validate(); err != nil {
		t.Errorf("Validate valid shape: %v", err)
	}
	if err := (Shape{128, 0}).Validate(); err == nil {
		t.Error("Validate should reject zero dimension")
	}
	if err := (Shape{-1, 4096}).Validate(); err == nil {
		t.Error("Validate should reject negative dimension")
	}
}

func TestShapeEqual(t *testing.T) {
	if !(Shape{128, 4096}).Equal(Shape{128, 4096}) {
		t.Error("equal shapes should compare equal")
	}
	if (Shape{128, 4096}).Equal(Shape{4096, 128}) {
		t.Error("transposed shapes should not compare equal")
	}
	if (Shape{128, 4096}).Equal(Shape{128, 4096, 1}) {
		t.Error("shapes of different rank should not compare equal")
	}
}

func TestShapeDims2(t *testing.T) {
	rows, cols, err := Shape{128, 4096}.Dims2()
	if err != nil {
		t.Fatalf("Dims2: %v", err)
	}
	if rows != 128 || cols != 4096 {
		t.Errorf("Dims2 = (%d, %d), want (128, 4096)", rows, cols)
	}

	if _, _, err := (Shape{4096}).Dims2(); err == nil {
		t.Error("Dims2 should reject rank 1")
	}
	if _, _, err := (Shape{1, 128, 4096}).Dims2(); err == nil {
		t.Error("Dims2 should reject rank 3")
	}
}

func TestShapeClone(t *testing.T) {
	s := Shape{128, 4096}
	c := s.Clone()
	c[0] = 1
	if s[0] != 128 {
		t.Error("Clone should not alias the original shape")
	}
}
