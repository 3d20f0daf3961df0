// Package inference - Inference engine types.
package inference

import (
	"strings"

	"github.com/pkg/errors"
)

// EngineType is the type of the engine
type EngineType string

const (
	// EngineNative captures models into gorgonia expression graphs.
	EngineNative EngineType = "native"
	// EngineONNX is the ONNX engine that uses the onnxruntime library
	EngineONNX EngineType = "onnx"
)

// Engines is a list of all supported engines
var Engines = []EngineType{EngineNative, EngineONNX}

// ParseEngineType resolves an engine name.
func ParseEngineType(s string) (EngineType, error) {
	switch EngineType(strings.ToLower(strings.TrimSpace(s))) {
	case EngineNative, "":
		return EngineNative, nil
	case EngineONNX, "onnxruntime":
		return EngineONNX, nil
	default:
		return "", errors.Wrapf(ErrUnsupportedConfiguration, "engine %q", s)
	}
}
