// Package inference - This file provides the numeric precisions a benchmark case can run under.
package inference

import (
	"strings"

	"github.com/pkg/errors"
)

// Precision represents the numeric representation used for weights and activations.
type Precision string

// Precision constants are the supported precisions for inference.
const (
	// PrecisionFP32 is the full-precision baseline.
	PrecisionFP32 Precision = "FP32"
	// PrecisionBF16 is the reduced-precision floating point mode (autocast).
	PrecisionBF16 Precision = "BF16"
	// PrecisionINT8 is the reduced-precision integer mode (calibrated quantization).
	PrecisionINT8 Precision = "INT8"
)

// Precisions lists every supported precision, baseline first.
var Precisions = []Precision{PrecisionFP32, PrecisionBF16, PrecisionINT8}

// ParsePrecision resolves a user supplied precision name.
//
// Arguments:
//   - s: The precision name or alias (case-insensitive).
//
// Returns:
//   - Precision: The resolved precision.
//   - error: ErrUnsupportedConfiguration if the name is unknown.
func ParsePrecision(s string) (Precision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fp32", "float32", "baseline":
		return PrecisionFP32, nil
	case "bf16", "bfloat16":
		return PrecisionBF16, nil
	case "int8", "qint8":
		return PrecisionINT8, nil
	default:
		return "", errors.Wrapf(ErrUnsupportedConfiguration, "precision %q", s)
	}
}

// Validate reports whether p is one of the supported precisions.
func (p Precision) Validate() error {
	for _, known := range Precisions {
		if p == known {
			return nil
		}
	}
	return errors.Wrapf(ErrUnsupportedConfiguration, "precision %q", string(p))
}

// Label is the lower-case short name used in result labels and file names.
func (p Precision) Label() string {
	return strings.ToLower(string(p))
}
