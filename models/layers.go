package models

import "sort"

// LayerKind identifies the operation a layer performs.
type LayerKind string

// Layer kinds understood by the engines.
const (
	// LayerNormalize computes (x - mean) / std per channel. Params: mean, std [1, C, 1, 1].
	LayerNormalize LayerKind = "normalize"
	// LayerConv2D is an unpadded, stride 1 convolution. Params: weight [O, C, kh, kw], bias [1, O, 1, 1].
	LayerConv2D LayerKind = "conv2d"
	// LayerReLU is max(x, 0).
	LayerReLU LayerKind = "relu"
	// LayerMaxPool2D pools Kernel windows with Stride.
	LayerMaxPool2D LayerKind = "maxpool2d"
	// LayerFlatten reshapes [N, ...] to [N, prod(...)].
	LayerFlatten LayerKind = "flatten"
	// LayerLinear is x*W + b. Params: weight [in, out], bias [1, out].
	LayerLinear LayerKind = "linear"
	// LayerSelfAttention is single-head self attention with a residual connection.
	// Params: wq, wk, wv (or the fused wqkv [D, 3D]) and wo, all [D, D].
	LayerSelfAttention LayerKind = "self-attention"
	// LayerFeedForward is x + relu(x*W1 + b1)*W2 + b2.
	LayerFeedForward LayerKind = "feed-forward"
	// LayerMeanPool averages over the sequence: [N*L, D] to [N, D].
	LayerMeanPool LayerKind = "mean-pool"
)

// Param is a dense float32 parameter in row-major order.
type Param struct {
	Shape []int
	Data  []float32
}

// NewParam allocates a zeroed parameter.
func NewParam(shape ...int) *Param {
	return &Param{Shape: shape, Data: make([]float32, volume(shape))}
}

// Clone returns a deep copy.
func (p *Param) Clone() *Param {
	return &Param{
		Shape: append([]int(nil), p.Shape...),
		Data:  append([]float32(nil), p.Data...),
	}
}

// Layer is one step of a network.
type Layer struct {
	Name   string
	Kind   LayerKind
	Params map[string]*Param
	// Kernel and Stride configure pooling; Kernel also records the convolution window.
	Kernel [2]int
	Stride [2]int
	// Scale multiplies attention scores. It is 1 once folded into the query projection.
	Scale float32
	// Fused marks attention layers using a single wqkv projection.
	Fused bool
}

// Clone returns a deep copy.
func (l Layer) Clone() Layer {
	out := l
	if l.Params != nil {
		out.Params = make(map[string]*Param, len(l.Params))
		for k, p := range l.Params {
			out.Params[k] = p.Clone()
		}
	}
	return out
}

// QuantizableParams maps the parameters quantized by the int8 path to their channel axis.
func (l Layer) QuantizableParams() map[string]int {
	switch l.Kind {
	case LayerConv2D:
		return map[string]int{"weight": 0}
	case LayerLinear:
		return map[string]int{"weight": 1}
	case LayerSelfAttention:
		if l.Fused {
			return map[string]int{"wqkv": 1, "wo": 1}
		}
		return map[string]int{"wq": 1, "wk": 1, "wv": 1, "wo": 1}
	case LayerFeedForward:
		return map[string]int{"w1": 1, "w2": 1}
	default:
		return nil
	}
}

// ParamNames returns the parameter names in a stable order.
func (l Layer) ParamNames() []string {
	names := make([]string, 0, len(l.Params))
	for name := range l.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParamID is the identifier of a parameter across the whole network.
func ParamID(layer, param string) string {
	return layer + "/" + param
}

func volume(shape []int) int {
	v := 1
	for _, d := range shape {
		v *= d
	}
	return v
}
