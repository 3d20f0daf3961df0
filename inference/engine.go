// Package inference - Inference engine interface.
package inference

import "context"

// Engine is a prepared model ready to execute forward passes on a bound sample input.
//
// Preparation (quantization, graph capture) happens when the engine is built, so Forward
// only measures execution.
type Engine interface {
	// Forward executes one forward pass over the bound input.
	Forward(ctx context.Context) error
	// Output returns a copy of the last forward pass result.
	Output() []float32
	// Describe reports how the engine was prepared.
	Describe() EngineInfo
	Close() error
}

// EngineInfo describes a prepared engine.
type EngineInfo struct {
	Engine      EngineType `json:"engine"`
	Model       string     `json:"model"`
	Precision   Precision  `json:"precision"`
	Accelerated bool       `json:"accelerated"`
	// Tier is the effective instruction-set dispatch tier when the engine was prepared.
	Tier string `json:"tier"`
	// Emulated is set when the precision runs without native instruction support.
	Emulated bool `json:"emulated"`
	// CacheHit is set when a compiled artifact was reused from the artifact cache.
	CacheHit bool `json:"cache_hit"`
	// Provider names the execution provider for runtime backed engines.
	Provider string `json:"provider,omitempty"`
}
