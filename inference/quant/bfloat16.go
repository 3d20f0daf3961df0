// Package quant provides the reduced-precision number formats used by the benchmark paths.
package quant

import "math"

// BFloat16 is a 16-bit brain floating point number: 1 sign bit, 8 exponent bits, 7 mantissa
// bits. It keeps the float32 exponent range.
type BFloat16 uint16

// ToBFloat16 converts a float32 to bfloat16, rounding to nearest even.
func ToBFloat16(f float32) BFloat16 {
	bits := math.Float32bits(f)
	if f != f {
		// Keep NaN quiet rather than letting rounding carry into the exponent.
		return BFloat16(bits>>16 | 0x0040)
	}
	lsb := (bits >> 16) & 1
	bits += 0x7FFF + lsb
	return BFloat16(bits >> 16)
}

// Float32 widens the value back to float32. The conversion is exact.
func (b BFloat16) Float32() float32 {
	return math.Float32frombits(uint32(b) << 16)
}

// RoundBF16 returns f rounded to the nearest representable bfloat16 value.
func RoundBF16(f float32) float32 {
	return ToBFloat16(f).Float32()
}

// RoundSliceBF16 rounds every element of xs to bfloat16 in place.
func RoundSliceBF16(xs []float32) {
	for i, x := range xs {
		xs[i] = RoundBF16(x)
	}
}
