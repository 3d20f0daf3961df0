package quant

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

const (
	// QMax is the largest magnitude used by symmetric int8 quantization.
	QMax = 127
)

// QuantizedTensor is a symmetric int8 tensor with one scale per slice along Axis.
//
// Value[i] = Data[i] * Scales[channel(i)]; with a single scale the tensor is per-tensor
// quantized.
type QuantizedTensor struct {
	Shape  []int
	Data   []int8
	Scales []float32
	Axis   int
}

// ScaleFor returns the symmetric scale mapping [-absMax, absMax] onto [-127, 127].
func ScaleFor(absMax float32) float32 {
	if absMax <= 0 || math32.IsInf(absMax, 0) || math32.IsNaN(absMax) {
		return 1
	}
	return absMax / QMax
}

// QuantizeValue quantizes one value with the given scale, saturating at +-127.
func QuantizeValue(x, scale float32) int8 {
	q := math32.Round(x / scale)
	if q > QMax {
		q = QMax
	}
	if q < -QMax {
		q = -QMax
	}
	return int8(q)
}

// FakeQuantize quantizes and immediately dequantizes xs in place.
func FakeQuantize(xs []float32, scale float32) {
	for i, x := range xs {
		xs[i] = float32(QuantizeValue(x, scale)) * scale
	}
}

// QuantizePerChannel quantizes data of the given shape with one scale per index of axis.
//
// Arguments:
//   - data: Row-major float32 values.
//   - shape: The tensor shape.
//   - axis: The channel axis (0 for conv filters [out, in, kh, kw], 1 for linear [in, out]).
//
// Returns:
//   - *QuantizedTensor: The quantized tensor.
//   - error: An error if the shape does not describe data or axis is out of range.
func QuantizePerChannel(data []float32, shape []int, axis int) (*QuantizedTensor, error) {
	if axis < 0 || axis >= len(shape) {
		return nil, errors.Errorf("axis %d out of range for shape %v", axis, shape)
	}
	if volume(shape) != len(data) {
		return nil, errors.Errorf("shape %v does not describe %d values", shape, len(data))
	}

	channels := shape[axis]
	inner := volume(shape[axis+1:])

	absMax := make([]float32, channels)
	for i, x := range data {
		c := (i / inner) % channels
		if a := math32.Abs(x); a > absMax[c] {
			absMax[c] = a
		}
	}

	scales := make([]float32, channels)
	for c, m := range absMax {
		scales[c] = ScaleFor(m)
	}

	q := make([]int8, len(data))
	for i, x := range data {
		q[i] = QuantizeValue(x, scales[(i/inner)%channels])
	}

	return &QuantizedTensor{
		Shape:  append([]int(nil), shape...),
		Data:   q,
		Scales: scales,
		Axis:   axis,
	}, nil
}

// Dequantize expands the tensor back to float32.
func (t *QuantizedTensor) Dequantize() []float32 {
	out := make([]float32, len(t.Data))
	if len(t.Scales) == 1 {
		for i, q := range t.Data {
			out[i] = float32(q) * t.Scales[0]
		}
		return out
	}
	channels := t.Shape[t.Axis]
	inner := volume(t.Shape[t.Axis+1:])
	for i, q := range t.Data {
		out[i] = float32(q) * t.Scales[(i/inner)%channels]
	}
	return out
}

func volume(shape []int) int {
	v := 1
	for _, d := range shape {
		v *= d
	}
	return v
}
