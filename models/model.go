// Package models - Pretrained networks measured by the benchmark.
//
// A Network is a small, framework independent description of a model: an input
// description plus an ordered list of layers with their parameters. Engines capture a
// Network into an executable graph; the description itself never runs anything.
package models

// Task is the kind of problem a network solves.
type Task string

const (
	// TaskImageClassification maps an image to class logits.
	TaskImageClassification Task = "image-classification"
	// TaskTextEncoding maps a token sequence to a pooled embedding.
	TaskTextEncoding Task = "text-encoding"
)

// InputKind distinguishes image tensors from token sequences.
type InputKind string

const (
	// InputImage is a CHW float image.
	InputImage InputKind = "image"
	// InputTokens is a sequence of vocabulary ids, embedded before entering the graph.
	InputTokens InputKind = "tokens"
)

// Variant names the graph rewrite applied to a network.
const (
	VariantEager     = "eager"
	VariantOptimized = "optimized"
)

// InputSpec describes the per-sample input of a network.
type InputSpec struct {
	Kind InputKind `json:"kind"`
	// Shape is the per-sample shape: [C, H, W] for images, [sequence] for tokens.
	Shape []int `json:"shape"`
	// Vocab and Hidden describe the embedding table for token inputs.
	Vocab  int `json:"vocab,omitempty"`
	Hidden int `json:"hidden,omitempty"`
}

// Network is a pretrained model description.
type Network struct {
	ID    string    `json:"id"`
	Task  Task      `json:"task"`
	Input InputSpec `json:"input"`
	// Embedding is the [vocab, hidden] token table for token inputs.
	Embedding *Param  `json:"-"`
	Layers    []Layer `json:"-"`
	Variant   string  `json:"variant"`
}

// GraphInputShape returns the shape of the tensor fed to the captured graph.
//
// Images enter as [batch, C, H, W]; token sequences enter already embedded as
// [batch*sequence, hidden].
func (n *Network) GraphInputShape(batch int) []int {
	switch n.Input.Kind {
	case InputTokens:
		return []int{batch * n.Input.Shape[0], n.Input.Hidden}
	default:
		return append([]int{batch}, n.Input.Shape...)
	}
}

// SequenceLength returns the token sequence length, or 0 for image networks.
func (n *Network) SequenceLength() int {
	if n.Input.Kind != InputTokens {
		return 0
	}
	return n.Input.Shape[0]
}

// Clone returns a deep copy whose parameters may be rewritten freely.
func (n *Network) Clone() *Network {
	out := *n
	out.Input.Shape = append([]int(nil), n.Input.Shape...)
	if n.Embedding != nil {
		out.Embedding = n.Embedding.Clone()
	}
	out.Layers = make([]Layer, len(n.Layers))
	for i, l := range n.Layers {
		out.Layers[i] = l.Clone()
	}
	return &out
}

// ParamCount returns the number of scalar parameters.
func (n *Network) ParamCount() int {
	total := 0
	if n.Embedding != nil {
		total += len(n.Embedding.Data)
	}
	for _, l := range n.Layers {
		for _, p := range l.Params {
			total += len(p.Data)
		}
	}
	return total
}
