package inference

import "github.com/pkg/errors"

var (
	// ErrUnsupportedConfiguration is returned for unknown model identifiers, precisions or
	// engine/precision combinations. It is fatal for the case being measured.
	ErrUnsupportedConfiguration = errors.New("unsupported configuration")

	// ErrShapeMismatch is returned when a sample input does not match the model input shape.
	ErrShapeMismatch = errors.New("input shape mismatch")
)
