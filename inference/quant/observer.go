package quant

import "github.com/chewxy/math32"

// Observer accumulates the activation range seen during calibration.
type Observer struct {
	Min     float32
	Max     float32
	Batches int
}

// NewObserver returns an observer that has seen nothing yet.
func NewObserver() *Observer {
	return &Observer{Min: math32.Inf(1), Max: math32.Inf(-1)}
}

// Observe folds a batch of activations into the range.
func (o *Observer) Observe(xs []float32) {
	for _, x := range xs {
		if x < o.Min {
			o.Min = x
		}
		if x > o.Max {
			o.Max = x
		}
	}
	o.Batches++
}

// Scale returns the symmetric int8 scale covering the observed range.
func (o *Observer) Scale() float32 {
	if o.Batches == 0 {
		return 1
	}
	return ScaleFor(math32.Max(math32.Abs(o.Min), math32.Abs(o.Max)))
}
