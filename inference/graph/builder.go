package graph

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-ml-bench/models"
)

// bchw broadcasts a [1, C, 1, 1] operand over [N, C, H, W].
var bchw = []byte{0, 2, 3}

// rows broadcasts a [1, F] operand over [N, F].
var rows = []byte{0}

type builder struct {
	g         *G.ExprGraph
	net       *models.Network
	batch     int
	transform ParamTransform
}

func (b *builder) layer(l models.Layer, x *G.Node) (*G.Node, error) {
	switch l.Kind {
	case models.LayerNormalize:
		return b.normalize(l, x)
	case models.LayerConv2D:
		return b.conv(l, x)
	case models.LayerReLU:
		return G.Rectify(x)
	case models.LayerMaxPool2D:
		return G.MaxPool2D(x, tensor.Shape{l.Kernel[0], l.Kernel[1]}, []int{0, 0}, []int{l.Stride[0], l.Stride[1]})
	case models.LayerFlatten:
		shape := x.Shape()
		return G.Reshape(x, tensor.Shape{shape[0], shape.TotalSize() / shape[0]})
	case models.LayerLinear:
		return b.linear(l, x, "weight", "bias")
	case models.LayerSelfAttention:
		return b.attention(l, x)
	case models.LayerFeedForward:
		return b.feedForward(l, x)
	case models.LayerMeanPool:
		return b.meanPool(x)
	default:
		return nil, errors.Errorf("unknown layer kind %q", l.Kind)
	}
}

// param turns a layer parameter into a graph node, applying the capture transform.
func (b *builder) param(l models.Layer, name string) (*G.Node, error) {
	p, ok := l.Params[name]
	if !ok {
		return nil, errors.Errorf("missing parameter %s", name)
	}
	id := models.ParamID(l.Name, name)

	data := p.Data
	if b.transform != nil {
		rewritten, err := b.transform(id, p)
		if err != nil {
			return nil, errors.Wrapf(err, "transform %s", id)
		}
		if rewritten != nil {
			data = rewritten
		}
	}
	if len(data) != len(p.Data) {
		return nil, errors.Errorf("%s: transform returned %d values, want %d", id, len(data), len(p.Data))
	}

	value := tensor.New(tensor.WithShape(p.Shape...), tensor.WithBacking(append([]float32(nil), data...)))
	return G.NewTensor(b.g, tensor.Float32, len(p.Shape), G.WithShape(p.Shape...), G.WithValue(value), G.WithName(id)), nil
}

func (b *builder) normalize(l models.Layer, x *G.Node) (*G.Node, error) {
	mean, err := b.param(l, "mean")
	if err != nil {
		return nil, err
	}
	std, err := b.param(l, "std")
	if err != nil {
		return nil, err
	}
	centered, err := G.BroadcastSub(x, mean, nil, bchw)
	if err != nil {
		return nil, err
	}
	return G.BroadcastHadamardDiv(centered, std, nil, bchw)
}

func (b *builder) conv(l models.Layer, x *G.Node) (*G.Node, error) {
	w, err := b.param(l, "weight")
	if err != nil {
		return nil, err
	}
	bias, err := b.param(l, "bias")
	if err != nil {
		return nil, err
	}
	ws := l.Params["weight"].Shape
	y, err := G.Conv2d(x, w, tensor.Shape{ws[2], ws[3]}, []int{0, 0}, []int{1, 1}, []int{1, 1})
	if err != nil {
		return nil, err
	}
	return G.BroadcastAdd(y, bias, nil, bchw)
}

func (b *builder) linear(l models.Layer, x *G.Node, weight, bias string) (*G.Node, error) {
	w, err := b.param(l, weight)
	if err != nil {
		return nil, err
	}
	y, err := G.Mul(x, w)
	if err != nil {
		return nil, err
	}
	if _, ok := l.Params[bias]; !ok {
		return y, nil
	}
	bn, err := b.param(l, bias)
	if err != nil {
		return nil, err
	}
	return G.BroadcastAdd(y, bn, nil, rows)
}

func (b *builder) feedForward(l models.Layer, x *G.Node) (*G.Node, error) {
	h, err := b.linear(l, x, "w1", "b1")
	if err != nil {
		return nil, err
	}
	if h, err = G.Rectify(h); err != nil {
		return nil, err
	}
	y, err := b.linear(l, h, "w2", "b2")
	if err != nil {
		return nil, err
	}
	return G.Add(x, y)
}

// attention computes x + softmax(scale * Q K^T) V Wo independently for every sequence of the
// batch. x is [batch*seq, D].
func (b *builder) attention(l models.Layer, x *G.Node) (*G.Node, error) {
	seq := b.net.SequenceLength()
	hidden := x.Shape()[1]

	var q, k, v *G.Node
	var err error
	if l.Fused {
		qkv, err := b.linear(l, x, "wqkv", "")
		if err != nil {
			return nil, err
		}
		if q, err = G.Slice(qkv, nil, G.S(0, hidden)); err != nil {
			return nil, err
		}
		if k, err = G.Slice(qkv, nil, G.S(hidden, 2*hidden)); err != nil {
			return nil, err
		}
		if v, err = G.Slice(qkv, nil, G.S(2*hidden, 3*hidden)); err != nil {
			return nil, err
		}
	} else {
		if q, err = b.linear(l, x, "wq", ""); err != nil {
			return nil, err
		}
		if k, err = b.linear(l, x, "wk", ""); err != nil {
			return nil, err
		}
		if v, err = b.linear(l, x, "wv", ""); err != nil {
			return nil, err
		}
	}

	contexts := make([]*G.Node, 0, b.batch)
	for s := 0; s < b.batch; s++ {
		var parts [3]*G.Node
		for i, n := range []*G.Node{q, k, v} {
			if parts[i], err = sequence(n, s, seq, b.batch); err != nil {
				return nil, err
			}
		}
		ctx, err := b.head(l, parts[0], parts[1], parts[2])
		if err != nil {
			return nil, errors.Wrapf(err, "sequence %d", s)
		}
		contexts = append(contexts, ctx)
	}

	ctx := contexts[0]
	if len(contexts) > 1 {
		if ctx, err = G.Concat(0, contexts...); err != nil {
			return nil, err
		}
	}

	out, err := b.linear(l, ctx, "wo", "")
	if err != nil {
		return nil, err
	}
	return G.Add(x, out)
}

func (b *builder) head(l models.Layer, q, k, v *G.Node) (*G.Node, error) {
	kt, err := G.Transpose(k)
	if err != nil {
		return nil, err
	}
	scores, err := G.Mul(q, kt)
	if err != nil {
		return nil, err
	}
	if l.Scale != 0 && l.Scale != 1 {
		if scores, err = G.Mul(scores, G.NewConstant(l.Scale)); err != nil {
			return nil, err
		}
	}
	weights, err := G.SoftMax(scores)
	if err != nil {
		return nil, err
	}
	return G.Mul(weights, v)
}

func (b *builder) meanPool(x *G.Node) (*G.Node, error) {
	seq := b.net.SequenceLength()
	if seq == 0 {
		return nil, errors.New("mean pooling needs a token network")
	}
	hidden := x.Shape()[1]
	grouped, err := G.Reshape(x, tensor.Shape{b.batch, seq, hidden})
	if err != nil {
		return nil, err
	}
	return G.Mean(grouped, 1)
}

// sequence selects the rows of sequence s from a [batch*seq, D] node.
func sequence(n *G.Node, s, seq, batch int) (*G.Node, error) {
	if batch == 1 {
		return n, nil
	}
	return G.Slice(n, G.S(s*seq, (s+1)*seq))
}
