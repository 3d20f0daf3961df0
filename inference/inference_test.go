package inference

import (
	"image"
	"image/color"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrecision(t *testing.T) {
	tests := map[string]Precision{
		"fp32":     PrecisionFP32,
		"Baseline": PrecisionFP32,
		"FLOAT32":  PrecisionFP32,
		" bf16 ":   PrecisionBF16,
		"bfloat16": PrecisionBF16,
		"INT8":     PrecisionINT8,
		"qint8":    PrecisionINT8,
	}
	for in, want := range tests {
		got, err := ParsePrecision(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParsePrecision("fp16")
	assert.True(t, errors.Is(err, ErrUnsupportedConfiguration))
}

func TestPrecisionValidateAndLabel(t *testing.T) {
	for _, p := range Precisions {
		assert.NoError(t, p.Validate())
	}
	assert.Equal(t, PrecisionFP32, Precisions[0])
	assert.Equal(t, "bf16", PrecisionBF16.Label())
	assert.True(t, errors.Is(Precision("FP16").Validate(), ErrUnsupportedConfiguration))
}

func TestParseEngineType(t *testing.T) {
	e, err := ParseEngineType("")
	require.NoError(t, err)
	assert.Equal(t, EngineNative, e)

	e, err = ParseEngineType("OnnxRuntime")
	require.NoError(t, err)
	assert.Equal(t, EngineONNX, e)

	_, err = ParseEngineType("tensorrt")
	assert.True(t, errors.Is(err, ErrUnsupportedConfiguration))
}

func TestPrepareImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 0, B: 0, A: 255})
		}
	}

	dst := make([]float32, 3*4*4)
	require.NoError(t, PrepareImage(img, 4, 4, dst))
	assert.InDelta(t, 1.0, dst[0], 0.01)
	assert.InDelta(t, 0.0, dst[16], 0.01)
	assert.InDelta(t, 0.0, dst[32], 0.01)

	assert.Error(t, PrepareImage(img, 4, 4, dst[:10]))
}
