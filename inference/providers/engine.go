package providers

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-ml-bench/inference"
	"github.com/nvr-ai/go-ml-bench/inference/isa"
)

// Engine runs an ONNX model through onnxruntime.
type Engine struct {
	session *Session
	info    inference.EngineInfo
}

var _ inference.Engine = (*Engine)(nil)

// CheckPrecision reports whether the onnx engine can run a precision. Quantized and bfloat16
// graphs are produced offline for onnxruntime, so only FP32 is accepted.
func CheckPrecision(p inference.Precision) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p != inference.PrecisionFP32 {
		return errors.Wrapf(inference.ErrUnsupportedConfiguration, "onnx engine runs fp32 graphs only, got %s", p.Label())
	}
	return nil
}

// NewEngine creates an onnx engine with input bound.
//
// Arguments:
//   - config: The model configuration.
//   - precision: Must be FP32.
//   - accelerate: Whether to optimize the session.
//   - input: The input values, matching config.InputShape.
//
// Returns:
//   - *Engine: The prepared engine.
//   - error: ErrUnsupportedConfiguration or ErrShapeMismatch before any native work, or a
//     session error.
func NewEngine(config Config, precision inference.Precision, accelerate bool, input []float32) (*Engine, error) {
	if err := CheckPrecision(precision); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if len(input) != config.InputSize() {
		return nil, errors.Wrapf(inference.ErrShapeMismatch, "%d input values for shape %v", len(input), config.InputShape)
	}

	session, err := NewSession(config, accelerate)
	if err != nil {
		return nil, err
	}
	copy(session.Input.GetData(), input)

	return &Engine{
		session: session,
		info: inference.EngineInfo{
			Engine:      inference.EngineONNX,
			Model:       ModelName(config.ModelPath),
			Precision:   precision,
			Accelerated: accelerate,
			Tier:        isa.Effective().String(),
			Provider:    string(session.Provider),
		},
	}, nil
}

// ModelName derives a model identifier from a file path.
func ModelName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// Forward executes one forward pass.
func (e *Engine) Forward(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Wrap(e.session.Session.Run(), "run onnx session")
}

// Output returns a copy of the output tensor.
func (e *Engine) Output() []float32 {
	return append([]float32(nil), e.session.Output.GetData()...)
}

// Describe reports how the engine was prepared.
func (e *Engine) Describe() inference.EngineInfo {
	return e.info
}

// Close releases the session.
func (e *Engine) Close() error {
	return e.session.Close()
}
