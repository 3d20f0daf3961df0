package quant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBFloat16Rounding(t *testing.T) {
	// Values with at most 8 significant bits survive unchanged.
	for _, v := range []float32{0, 1, -2, 0.5, 3.75, 65536} {
		assert.Equal(t, v, RoundBF16(v))
	}

	// 1 + 2^-8 sits halfway between 1 and 1 + 2^-7; ties go to even (1).
	assert.Equal(t, float32(1), RoundBF16(1+1.0/256))
	// Just above the halfway point rounds up.
	assert.Equal(t, float32(1+1.0/128), RoundBF16(1+1.0/256+1.0/4096))

	assert.InDelta(t, 3.14159, RoundBF16(3.14159), 0.02)

	xs := []float32{0.1, 0.2, 0.3}
	RoundSliceBF16(xs)
	for _, x := range xs {
		assert.Equal(t, x, RoundBF16(x), "rounding is idempotent")
	}
}

func TestQuantizePerChannel(t *testing.T) {
	// Linear weight [in=2, out=3], channels along axis 1.
	data := []float32{
		1, -0.5, 0.25,
		-2, 0.5, 0,
	}
	q, err := QuantizePerChannel(data, []int{2, 3}, 1)
	require.NoError(t, err)

	require.Len(t, q.Scales, 3)
	assert.InDelta(t, 2.0/127, q.Scales[0], 1e-7)
	assert.InDelta(t, 0.5/127, q.Scales[1], 1e-7)
	assert.InDelta(t, 0.25/127, q.Scales[2], 1e-7)
	assert.Equal(t, int8(-127), q.Data[3])
	assert.Equal(t, int8(127), q.Data[2])

	back := q.Dequantize()
	for i := range data {
		assert.InDelta(t, data[i], back[i], float64(q.Scales[i%3]), "element %d", i)
	}
}

func TestQuantizePerChannelFilters(t *testing.T) {
	// Conv filter [out=2, in=1, 1, 2], channels along axis 0.
	data := []float32{4, -1, 0.1, 0.2}
	q, err := QuantizePerChannel(data, []int{2, 1, 1, 2}, 0)
	require.NoError(t, err)
	assert.InDelta(t, 4.0/127, q.Scales[0], 1e-7)
	assert.InDelta(t, 0.2/127, q.Scales[1], 1e-7)
}

func TestQuantizePerChannelErrors(t *testing.T) {
	_, err := QuantizePerChannel([]float32{1, 2, 3}, []int{2, 2}, 0)
	assert.Error(t, err)

	_, err = QuantizePerChannel([]float32{1, 2}, []int{2}, 1)
	assert.Error(t, err)
}

func TestObserverAndFakeQuantize(t *testing.T) {
	o := NewObserver()
	assert.Equal(t, float32(1), o.Scale(), "empty observer falls back to unit scale")

	o.Observe([]float32{-3, 1})
	o.Observe([]float32{2, 0.5})
	assert.Equal(t, 2, o.Batches)
	assert.InDelta(t, 3.0/127, o.Scale(), 1e-7)

	xs := []float32{-3, 0, 10}
	FakeQuantize(xs, o.Scale())
	assert.InDelta(t, -3, xs[0], 1e-5)
	assert.Equal(t, float32(0), xs[1])
	assert.InDelta(t, 3, xs[2], 1e-5, "values beyond the calibrated range saturate")
}
