package models

import (
	"hash/fnv"
	"image"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-ml-bench/inference"
)

// Sample is a batch of model input in graph layout (see Network.GraphInputShape).
type Sample struct {
	Batch int       `json:"batch"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"-"`
}

// Clone returns a deep copy.
func (s *Sample) Clone() *Sample {
	return &Sample{
		Batch: s.Batch,
		Shape: append([]int(nil), s.Shape...),
		Data:  append([]float32(nil), s.Data...),
	}
}

// CheckInput verifies that s matches the network's expected input.
func (n *Network) CheckInput(s *Sample) error {
	if s == nil || s.Batch < 1 {
		return errors.Wrap(inference.ErrShapeMismatch, "empty sample")
	}
	want := n.GraphInputShape(s.Batch)
	if len(want) != len(s.Shape) {
		return errors.Wrapf(inference.ErrShapeMismatch, "%s: got %v, want %v", n.ID, s.Shape, want)
	}
	for i := range want {
		if want[i] != s.Shape[i] {
			return errors.Wrapf(inference.ErrShapeMismatch, "%s: got %v, want %v", n.ID, s.Shape, want)
		}
	}
	if len(s.Data) != volume(want) {
		return errors.Wrapf(inference.ErrShapeMismatch, "%s: %d values for shape %v", n.ID, len(s.Data), want)
	}
	return nil
}

// SampleInput returns the deterministic sample used for timing.
func (n *Network) SampleInput(batch int) (*Sample, error) {
	return n.randomSample(batch, 0)
}

// CalibrationSet returns count deterministic batches, distinct from SampleInput, for int8
// calibration.
func (n *Network) CalibrationSet(batch, count int) ([]*Sample, error) {
	out := make([]*Sample, 0, count)
	for i := 1; i <= count; i++ {
		s, err := n.randomSample(batch, int64(i))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (n *Network) randomSample(batch int, stream int64) (*Sample, error) {
	if batch < 1 {
		return nil, errors.Wrapf(inference.ErrShapeMismatch, "batch size %d", batch)
	}
	h := fnv.New64a()
	h.Write([]byte(n.ID))
	rng := rand.New(rand.NewSource(int64(h.Sum64()) + stream))

	switch n.Input.Kind {
	case InputTokens:
		tokens := make([][]int, batch)
		for b := range tokens {
			tokens[b] = make([]int, n.Input.Shape[0])
			for i := range tokens[b] {
				tokens[b][i] = rng.Intn(n.Input.Vocab)
			}
		}
		return n.TokenInput(tokens)
	default:
		shape := n.GraphInputShape(batch)
		data := make([]float32, volume(shape))
		for i := range data {
			data[i] = rng.Float32()
		}
		return &Sample{Batch: batch, Shape: shape, Data: data}, nil
	}
}

// TokenInput embeds token sequences into graph layout [batch*sequence, hidden].
func (n *Network) TokenInput(tokens [][]int) (*Sample, error) {
	if n.Input.Kind != InputTokens || n.Embedding == nil {
		return nil, errors.Wrapf(inference.ErrShapeMismatch, "%s does not take tokens", n.ID)
	}
	seq, hidden := n.Input.Shape[0], n.Input.Hidden
	if len(tokens) == 0 {
		return nil, errors.Wrap(inference.ErrShapeMismatch, "no sequences")
	}

	data := make([]float32, 0, len(tokens)*seq*hidden)
	for b, sequence := range tokens {
		if len(sequence) != seq {
			return nil, errors.Wrapf(inference.ErrShapeMismatch, "sequence %d has %d tokens, want %d", b, len(sequence), seq)
		}
		for _, tok := range sequence {
			if tok < 0 || tok >= n.Input.Vocab {
				return nil, errors.Wrapf(inference.ErrShapeMismatch, "token %d outside vocabulary of %d", tok, n.Input.Vocab)
			}
			data = append(data, n.Embedding.Data[tok*hidden:(tok+1)*hidden]...)
		}
	}
	return &Sample{Batch: len(tokens), Shape: n.GraphInputShape(len(tokens)), Data: data}, nil
}

// ImageInput converts images into a classifier batch, resizing each to the network input.
func (n *Network) ImageInput(imgs ...image.Image) (*Sample, error) {
	if n.Input.Kind != InputImage {
		return nil, errors.Wrapf(inference.ErrShapeMismatch, "%s does not take images", n.ID)
	}
	if len(imgs) == 0 {
		return nil, errors.Wrap(inference.ErrShapeMismatch, "no images")
	}
	c, h, w := n.Input.Shape[0], n.Input.Shape[1], n.Input.Shape[2]
	if c != 3 {
		return nil, errors.Wrapf(inference.ErrShapeMismatch, "%s expects %d channels", n.ID, c)
	}

	shape := n.GraphInputShape(len(imgs))
	data := make([]float32, volume(shape))
	per := c * h * w
	for i, img := range imgs {
		if err := inference.PrepareImage(img, w, h, data[i*per:(i+1)*per]); err != nil {
			return nil, err
		}
	}
	return &Sample{Batch: len(imgs), Shape: shape, Data: data}, nil
}
