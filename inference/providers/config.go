// Package providers - Configuration for the onnxruntime engine.
package providers

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-ml-bench/inference"
)

// ProviderBackend names the execution provider used by accelerated sessions.
type ProviderBackend string

const (
	// CPUProviderBackend keeps the default CPU provider; acceleration only enables graph
	// optimizations.
	CPUProviderBackend ProviderBackend = "cpu"

	// OpenVINOProviderBackend uses Intel OpenVINO for inference optimization.
	OpenVINOProviderBackend ProviderBackend = "openvino"
)

// Config describes an ONNX model and how to run it.
type Config struct {
	// SharedLibraryPath locates the onnxruntime library. See SharedLibPath.
	SharedLibraryPath string `json:"shared_library_path" mapstructure:"shared_library_path"`

	// ModelPath specifies the path to the ONNX model file
	ModelPath string `json:"model_path" mapstructure:"model_path"`

	// InputName and OutputName are the graph tensor names.
	InputName  string `json:"input_name" mapstructure:"input_name"`
	OutputName string `json:"output_name" mapstructure:"output_name"`

	// InputShape and OutputShape are the static tensor shapes, batch first.
	InputShape  []int64 `json:"input_shape" mapstructure:"input_shape"`
	OutputShape []int64 `json:"output_shape" mapstructure:"output_shape"`

	// Accelerator is the execution provider appended when a case is accelerated.
	Accelerator ProviderBackend `json:"accelerator" mapstructure:"accelerator"`

	// OpenVINO configures the OpenVINO provider.
	OpenVINO OpenVINOOptions `json:"openvino" mapstructure:"openvino"`

	// Optimization overrides the session settings derived from the acceleration flag.
	Optimization *OptimizationConfig `json:"optimization,omitempty" mapstructure:"-"`
}

// DefaultConfig returns a configuration for an image classifier exported with the usual
// tensor names.
//
// @example
// config := DefaultConfig()
// config.ModelPath = "path/to/model.onnx"
func DefaultConfig() Config {
	return Config{
		InputName:   "input",
		OutputName:  "output",
		InputShape:  []int64{1, 3, 224, 224},
		OutputShape: []int64{1, 1000},
		Accelerator: CPUProviderBackend,
		OpenVINO:    DefaultOpenVINOOptions(),
	}
}

// Validate checks that the configuration describes a runnable model.
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return errors.Wrap(inference.ErrUnsupportedConfiguration, "onnx engine needs a model path")
	}
	if c.InputName == "" || c.OutputName == "" {
		return errors.New("input and output tensor names are required")
	}
	for _, shape := range [][]int64{c.InputShape, c.OutputShape} {
		if len(shape) == 0 {
			return errors.New("input and output shapes are required")
		}
		for _, d := range shape {
			if d < 1 {
				return errors.Wrapf(inference.ErrShapeMismatch, "shape %v", shape)
			}
		}
	}
	switch c.Accelerator {
	case CPUProviderBackend, OpenVINOProviderBackend, "":
	default:
		return errors.Wrapf(inference.ErrUnsupportedConfiguration, "accelerator %q", c.Accelerator)
	}
	return nil
}

// InputSize returns the number of values in the input tensor.
func (c Config) InputSize() int {
	return int(volume(c.InputShape))
}

func volume(shape []int64) int64 {
	v := int64(1)
	for _, d := range shape {
		v *= d
	}
	return v
}
