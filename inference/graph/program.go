// Package graph - Native engine that captures a network into a static gorgonia graph.
//
// Capture builds an ExprGraph from a models.Network and compiles it into a TapeMachine once.
// Every forward pass afterwards replays the tape over the bound input.
package graph

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-ml-bench/inference"
	"github.com/nvr-ai/go-ml-bench/models"
)

// ParamTransform rewrites parameter data before it is captured as a graph constant.
// id is models.ParamID(layer, param). Returning nil keeps the original data.
type ParamTransform func(id string, p *models.Param) ([]float32, error)

// Options configures a capture.
type Options struct {
	// Transform rewrites parameters (bfloat16 rounding, int8 dequantization).
	Transform ParamTransform
	// Observe records the input of every quantizable layer on each run.
	Observe bool
}

// Program is a captured network bound to a fixed batch size.
type Program struct {
	net    *models.Network
	batch  int
	g      *G.ExprGraph
	input  *G.Node
	output *G.Node
	vm     G.VM

	inputT *tensor.Dense
	outVal G.Value
	// observed[i] holds the input of layer i when it is observed.
	observed []G.Value
	watch    []int
}

// Capture builds and compiles the graph of net for the given batch size.
//
// Arguments:
//   - net: The network to capture.
//   - batch: The batch size baked into the graph.
//   - opts: Capture options.
//
// Returns:
//   - *Program: The compiled program.
//   - error: An error if a layer cannot be expressed or its parameters are inconsistent.
func Capture(net *models.Network, batch int, opts Options) (*Program, error) {
	if batch < 1 {
		return nil, errors.Wrapf(inference.ErrShapeMismatch, "batch size %d", batch)
	}

	p := &Program{
		net:      net,
		batch:    batch,
		g:        G.NewGraph(),
		observed: make([]G.Value, len(net.Layers)),
	}

	shape := net.GraphInputShape(batch)
	p.inputT = tensor.New(tensor.WithShape(shape...), tensor.Of(tensor.Float32))
	p.input = G.NewTensor(p.g, tensor.Float32, len(shape), G.WithShape(shape...), G.WithName("input"))

	b := &builder{g: p.g, net: net, batch: batch, transform: opts.Transform}
	x := p.input
	for i, layer := range net.Layers {
		if opts.Observe && len(layer.QuantizableParams()) > 0 {
			G.Read(x, &p.observed[i])
			p.watch = append(p.watch, i)
		}
		next, err := b.layer(layer, x)
		if err != nil {
			return nil, errors.Wrapf(err, "capture %s layer %s", net.ID, layer.Name)
		}
		x = next
	}
	p.output = x
	G.Read(p.output, &p.outVal)

	p.vm = G.NewTapeMachine(p.g)
	return p, nil
}

// Bind copies the sample into the graph input.
func (p *Program) Bind(s *models.Sample) error {
	if err := p.net.CheckInput(s); err != nil {
		return err
	}
	if s.Batch != p.batch {
		return errors.Wrapf(inference.ErrShapeMismatch, "program captured for batch %d, sample has %d", p.batch, s.Batch)
	}
	copy(p.inputT.Data().([]float32), s.Data)
	return errors.Wrap(G.Let(p.input, p.inputT), "bind input")
}

// Run executes one forward pass and rewinds the tape.
func (p *Program) Run() error {
	defer p.vm.Reset()
	if err := p.vm.RunAll(); err != nil {
		return errors.Wrapf(err, "run %s", p.net.ID)
	}
	return nil
}

// Output returns a copy of the last output.
func (p *Program) Output() []float32 {
	return copyValue(p.outVal)
}

// OutputShape returns the shape of the graph output.
func (p *Program) OutputShape() []int {
	return append([]int(nil), p.output.Shape()...)
}

// Observed returns the inputs of the observed layers from the last run, keyed by layer index.
func (p *Program) Observed() map[int][]float32 {
	out := make(map[int][]float32, len(p.watch))
	for _, i := range p.watch {
		out[i] = copyValue(p.observed[i])
	}
	return out
}

// Close releases the tape machine.
func (p *Program) Close() error {
	if p.vm == nil {
		return nil
	}
	err := p.vm.Close()
	p.vm = nil
	return err
}

func copyValue(v G.Value) []float32 {
	if v == nil {
		return nil
	}
	data, ok := v.Data().([]float32)
	if !ok {
		if f, ok := v.Data().(float32); ok {
			return []float32{f}
		}
		return nil
	}
	return append([]float32(nil), data...)
}
