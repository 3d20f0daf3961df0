package models

import (
	"fmt"

	"github.com/chewxy/math32"
)

// BERTMiniID identifies the language encoder.
const BERTMiniID = "bert-mini"

const (
	bertVocab   = 512
	bertSeqLen  = 16
	bertHidden  = 32
	bertFF      = 64
	bertBlocks  = 2
	bertPooling = 32
)

// NewBERTMini builds the language encoder: token embeddings followed by two transformer blocks
// (self attention and feed-forward, both residual), mean pooling and a linear pooler.
func NewBERTMini() *Network {
	rng := newInitializer(BERTMiniID)

	layers := make([]Layer, 0, 2*bertBlocks+2)
	for b := 0; b < bertBlocks; b++ {
		layers = append(layers,
			Layer{
				Name: fmt.Sprintf("block%d.attention", b),
				Kind: LayerSelfAttention,
				Params: map[string]*Param{
					"wq": rng.uniform(NewParam(bertHidden, bertHidden), bertHidden*4),
					"wk": rng.uniform(NewParam(bertHidden, bertHidden), bertHidden*4),
					"wv": rng.uniform(NewParam(bertHidden, bertHidden), bertHidden*4),
					"wo": rng.uniform(NewParam(bertHidden, bertHidden), bertHidden*4),
				},
				Scale: 1 / math32.Sqrt(bertHidden),
			},
			Layer{
				Name: fmt.Sprintf("block%d.ffn", b),
				Kind: LayerFeedForward,
				Params: map[string]*Param{
					"w1": rng.uniform(NewParam(bertHidden, bertFF), bertHidden*4),
					"b1": rng.small(NewParam(1, bertFF), 0.02),
					"w2": rng.uniform(NewParam(bertFF, bertHidden), bertFF*4),
					"b2": rng.small(NewParam(1, bertHidden), 0.02),
				},
			},
		)
	}
	layers = append(layers,
		Layer{Name: "pool", Kind: LayerMeanPool},
		Layer{
			Name: "pooler",
			Kind: LayerLinear,
			Params: map[string]*Param{
				"weight": rng.uniform(NewParam(bertHidden, bertPooling), bertHidden),
				"bias":   rng.small(NewParam(1, bertPooling), 0.02),
			},
		},
	)

	return &Network{
		ID:   BERTMiniID,
		Task: TaskTextEncoding,
		Input: InputSpec{
			Kind:   InputTokens,
			Shape:  []int{bertSeqLen},
			Vocab:  bertVocab,
			Hidden: bertHidden,
		},
		Embedding: rng.small(NewParam(bertVocab, bertHidden), 0.5),
		Layers:    layers,
		Variant:   VariantEager,
	}
}
