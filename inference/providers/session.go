package providers

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Session represents a model session from the onnxruntime with its bound tensors.
type Session struct {
	Session  *ort.AdvancedSession
	Input    *ort.Tensor[float32]
	Output   *ort.Tensor[float32]
	Provider ProviderBackend
}

// Close releases the resources associated with the Session.
func (s *Session) Close() error {
	if s.Input != nil {
		s.Input.Destroy()
		s.Input = nil
	}
	if s.Output != nil {
		s.Output.Destroy()
		s.Output = nil
	}
	if s.Session != nil {
		err := s.Session.Destroy()
		s.Session = nil
		if err != nil {
			return errors.Wrap(err, "destroy onnxruntime session")
		}
	}
	return nil
}

// NewSession creates an onnxruntime session with preallocated input and output tensors.
//
// Order of operations:
//  1. Environment setup: loads the shared library once per process.
//  2. Tensor allocation: fixed-shape buffers for input and output.
//  3. Session options: graph optimization level from the acceleration flag.
//  4. Execution provider: OpenVINO when accelerated and configured.
//  5. Session creation: loads the model and binds the tensors.
//
// Arguments:
//   - config: The model configuration.
//   - accelerate: Whether to optimize the graph and append the configured provider.
//
// Returns:
//   - *Session: The session; the caller closes it.
//   - error: An error if the session creation fails.
func NewSession(config Config, accelerate bool) (*Session, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := InitializeEnvironment(SharedLibPath(config.SharedLibraryPath)); err != nil {
		return nil, err
	}

	s := &Session{Provider: CPUProviderBackend}
	var err error
	if s.Input, err = ort.NewEmptyTensor[float32](ort.NewShape(config.InputShape...)); err != nil {
		return nil, errors.Wrap(err, "create input tensor")
	}
	if s.Output, err = ort.NewEmptyTensor[float32](ort.NewShape(config.OutputShape...)); err != nil {
		s.Close()
		return nil, errors.Wrap(err, "create output tensor")
	}

	optimization := DefaultOptimizationConfig(accelerate)
	if config.Optimization != nil {
		optimization = *config.Optimization
	}
	options, err := OptimizedSessionOptions(optimization)
	if err != nil {
		s.Close()
		return nil, err
	}
	defer options.Destroy()

	if accelerate && config.Accelerator == OpenVINOProviderBackend {
		if err := options.AppendExecutionProviderOpenVINO(config.OpenVINO.ToMap()); err != nil {
			s.Close()
			return nil, errors.Wrap(err, "enable OpenVINO")
		}
		s.Provider = OpenVINOProviderBackend
	}

	s.Session, err = ort.NewAdvancedSession(
		config.ModelPath,
		[]string{config.InputName},
		[]string{config.OutputName},
		[]ort.Value{s.Input},
		[]ort.Value{s.Output},
		options,
	)
	if err != nil {
		s.Close()
		return nil, errors.Wrapf(err, "create session for %s", config.ModelPath)
	}
	return s, nil
}
