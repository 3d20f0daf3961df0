package models

import (
	"hash/fnv"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// initializer produces deterministic weights seeded by the model identifier, so every process
// measures the same network.
type initializer struct {
	rng *rand.Rand
}

func newInitializer(id string) *initializer {
	h := fnv.New64a()
	h.Write([]byte(id))
	return &initializer{rng: rand.New(rand.NewSource(int64(h.Sum64())))}
}

// uniform fills p with He-uniform values for the given fan-in.
func (in *initializer) uniform(p *Param, fanIn int) *Param {
	bound := math32.Sqrt(6 / float32(fanIn))
	for i := range p.Data {
		p.Data[i] = (in.rng.Float32()*2 - 1) * bound
	}
	return p
}

// small fills p with values in [-scale, scale].
func (in *initializer) small(p *Param, scale float32) *Param {
	for i := range p.Data {
		p.Data[i] = (in.rng.Float32()*2 - 1) * scale
	}
	return p
}

// paramFile returns the npy file holding a parameter under dir.
func paramFile(dir, model, layer, param string) string {
	return filepath.Join(dir, model, layer+"."+param+".npy")
}

// LoadWeights replaces parameters with pretrained values found under dir/<model id>/.
//
// Files are named <layer>.<param>.npy (the token table is embedding.table.npy). Missing files
// keep the seeded values; a file whose shape or dtype differs is an error.
//
// Arguments:
//   - net: The network to update in place.
//   - dir: The weights root directory.
//
// Returns:
//   - int: The number of parameters loaded from disk.
//   - error: An error if a file exists but cannot be used.
func LoadWeights(net *Network, dir string) (int, error) {
	loaded := 0
	load := func(layer, param string, p *Param) error {
		ok, err := readNpy(paramFile(dir, net.ID, layer, param), p)
		if err != nil {
			return errors.Wrapf(err, "load %s/%s", layer, param)
		}
		if ok {
			loaded++
		}
		return nil
	}

	if net.Embedding != nil {
		if err := load("embedding", "table", net.Embedding); err != nil {
			return loaded, err
		}
	}
	for _, l := range net.Layers {
		for _, name := range l.ParamNames() {
			if err := load(l.Name, name, l.Params[name]); err != nil {
				return loaded, err
			}
		}
	}
	return loaded, nil
}

// SaveWeights writes every parameter of net under dir/<model id>/ in npy format.
func SaveWeights(net *Network, dir string) error {
	if err := os.MkdirAll(filepath.Join(dir, net.ID), 0o755); err != nil {
		return errors.Wrap(err, "create weights directory")
	}
	if net.Embedding != nil {
		if err := writeNpy(paramFile(dir, net.ID, "embedding", "table"), net.Embedding); err != nil {
			return err
		}
	}
	for _, l := range net.Layers {
		for _, name := range l.ParamNames() {
			if err := writeNpy(paramFile(dir, net.ID, l.Name, name), l.Params[name]); err != nil {
				return err
			}
		}
	}
	return nil
}

func readNpy(path string, p *Param) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	var t tensor.Dense
	if err := t.ReadNpy(f); err != nil {
		return false, errors.Wrapf(err, "read %s", path)
	}
	if t.Dtype() != tensor.Float32 {
		return false, errors.Errorf("%s: dtype %v, want float32", path, t.Dtype())
	}
	if !tensor.Shape(p.Shape).Eq(t.Shape()) {
		return false, errors.Errorf("%s: shape %v, want %v", path, t.Shape(), p.Shape)
	}
	copy(p.Data, t.Data().([]float32))
	return true, nil
}

func writeNpy(path string, p *Param) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()

	t := tensor.New(tensor.WithShape(p.Shape...), tensor.WithBacking(append([]float32(nil), p.Data...)))
	if err := t.WriteNpy(f); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}
