package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/npulab/aiedispatch/internal/tensor"
)

var testTable = []tensor.Shape{
	{2048, 4096},
	{1024, 4096},
	{128, 4096},
}

func TestValidateShapeTable(t *testing.T) {
	require.NoError(t, ValidateShapeTable(testTable))

	assert.ErrorIs(t, ValidateShapeTable(nil), ErrBadShapeTable)
	assert.ErrorIs(t, ValidateShapeTable([]tensor.Shape{{128}}), ErrBadShapeTable)
	assert.ErrorIs(t, ValidateShapeTable([]tensor.Shape{{128, 0}}), ErrBadShapeTable)
	assert.ErrorIs(t, ValidateShapeTable([]tensor.Shape{{128, 4096, 1}}), ErrBadShapeTable)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported(testTable, 128, 4096))
	assert.True(t, Supported(testTable, 2048, 4096))

	// Exact membership only, no rounding up to the next table entry.
	assert.False(t, Supported(testTable, 100, 4096))
	assert.False(t, Supported(testTable, 129, 4096))
	assert.False(t, Supported(testTable, 128, 2048))
	assert.False(t, Supported(nil, 128, 4096))
}

func TestMaxElems(t *testing.T) {
	assert.Equal(t, 2048*4096, MaxElems(testTable))

	// Skipping the row axis sizes weight-style buffers.
	assert.Equal(t, 4096, MaxElems(testTable, 0))
	assert.Equal(t, 2048, MaxElems(testTable, 1))
	assert.Equal(t, 0, MaxElems(nil))
}

func TestKeys(t *testing.T) {
	v := VariantKey("mladfrmsnorm", "a16")
	assert.Equal(t, "mladfrmsnorm_a16", v)
	assert.Equal(t, "mladfrmsnorm_a16_128_4096", InstrKey(v, 128, 4096))
}
