// Package models - registry for models.
package models

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-ml-bench/inference"
)

// Constructor builds a network with its seeded pretrained weights.
type Constructor func() *Network

var registry = map[string]Constructor{
	ResNetMiniID: NewResNetMini,
	BERTMiniID:   NewBERTMini,
}

// IDs returns the registered model identifiers in sorted order.
func IDs() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Validate reports whether id names a registered model without building it.
func Validate(id string) error {
	if _, ok := registry[id]; !ok {
		return errors.Wrapf(inference.ErrUnsupportedConfiguration, "model %q", id)
	}
	return nil
}

// NewModel creates a network by identifier.
//
// This factory is the single entry point for model creation; unknown identifiers fail with
// inference.ErrUnsupportedConfiguration before anything is allocated.
//
// Arguments:
//   - id: The model identifier, e.g. "resnet-mini".
//   - weightsDir: Optional directory of pretrained npy weights; empty keeps the seeded weights.
//
// Returns:
//   - *Network: The network.
//   - error: An error if the id is unknown or the weights cannot be loaded.
//
// Example:
//
//	net, err := models.NewModel(models.ResNetMiniID, "")
//	if err != nil {
//	    log.Fatalf("Failed to create model: %v", err)
//	}
func NewModel(id, weightsDir string) (*Network, error) {
	ctor, ok := registry[id]
	if !ok {
		return nil, errors.Wrapf(inference.ErrUnsupportedConfiguration, "model %q", id)
	}
	net := ctor()
	if weightsDir != "" {
		if _, err := LoadWeights(net, weightsDir); err != nil {
			return nil, err
		}
	}
	return net, nil
}
