package models

import "github.com/pkg/errors"

// Optimize returns a rewritten copy of net that computes the same function with fewer graph
// operations:
//
//   - a leading Normalize is folded into the following unpadded Conv2D;
//   - self-attention Q/K/V projections are fused into one [D, 3D] projection, with the score
//     scale folded into the query columns.
//
// Optimizing an already optimized network returns an unchanged copy.
func Optimize(net *Network) (*Network, error) {
	out := net.Clone()
	if out.Variant == VariantOptimized {
		return out, nil
	}

	if len(out.Layers) > 1 && out.Layers[0].Kind == LayerNormalize && out.Layers[1].Kind == LayerConv2D {
		if err := foldNormalize(out.Layers[0], &out.Layers[1]); err != nil {
			return nil, err
		}
		out.Layers = out.Layers[1:]
	}

	for i := range out.Layers {
		if out.Layers[i].Kind == LayerSelfAttention && !out.Layers[i].Fused {
			if err := fuseAttention(&out.Layers[i]); err != nil {
				return nil, err
			}
		}
	}

	out.Variant = VariantOptimized
	return out, nil
}

// foldNormalize rewrites conv so that conv((x-m)/s) == conv'(x):
// W'[o,c] = W[o,c]/s[c] and b'[o] = b[o] - sum_c,i,j W[o,c,i,j]*m[c]/s[c].
func foldNormalize(norm Layer, conv *Layer) error {
	mean, std := norm.Params["mean"], norm.Params["std"]
	w, b := conv.Params["weight"], conv.Params["bias"]
	if mean == nil || std == nil || w == nil || b == nil {
		return errors.Errorf("cannot fold %s into %s: missing parameters", norm.Name, conv.Name)
	}
	outC, inC := w.Shape[0], w.Shape[1]
	if len(mean.Data) != inC || len(std.Data) != inC {
		return errors.Errorf("cannot fold %s into %s: %d channels, conv expects %d", norm.Name, conv.Name, len(mean.Data), inC)
	}
	window := w.Shape[2] * w.Shape[3]

	for o := 0; o < outC; o++ {
		shift := float32(0)
		for c := 0; c < inC; c++ {
			base := (o*inC + c) * window
			for k := 0; k < window; k++ {
				w.Data[base+k] /= std.Data[c]
				shift += w.Data[base+k] * mean.Data[c]
			}
		}
		b.Data[o] -= shift
	}
	return nil
}

// fuseAttention replaces wq, wk, wv with wqkv = [wq*scale | wk | wv].
func fuseAttention(l *Layer) error {
	wq, wk, wv := l.Params["wq"], l.Params["wk"], l.Params["wv"]
	if wq == nil || wk == nil || wv == nil {
		return errors.Errorf("cannot fuse %s: missing projections", l.Name)
	}
	rows, cols := wq.Shape[0], wq.Shape[1]

	fused := NewParam(rows, 3*cols)
	for r := 0; r < rows; r++ {
		dst := fused.Data[r*3*cols : (r+1)*3*cols]
		for c := 0; c < cols; c++ {
			dst[c] = wq.Data[r*cols+c] * l.Scale
		}
		copy(dst[cols:2*cols], wk.Data[r*cols:(r+1)*cols])
		copy(dst[2*cols:], wv.Data[r*cols:(r+1)*cols])
	}

	delete(l.Params, "wq")
	delete(l.Params, "wk")
	delete(l.Params, "wv")
	l.Params["wqkv"] = fused
	l.Scale = 1
	l.Fused = true
	return nil
}
