package benchmark

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-ml-bench/inference"
	"github.com/nvr-ai/go-ml-bench/inference/providers"
	"github.com/nvr-ai/go-ml-bench/models"
)

// BaselineLabel is the label of the unaccelerated FP32 case every speedup is relative to.
const BaselineLabel = "fp32"

// Case is one benchmark configuration. Cases are values and never change once built.
type Case struct {
	Model      string               `json:"model"`
	Engine     inference.EngineType `json:"engine"`
	Precision  inference.Precision  `json:"precision"`
	Accelerate bool                 `json:"accelerate"`
	BatchSize  int                  `json:"batch_size"`
}

// Label names the case within a result set: the precision, with "+accel" when accelerated.
func (c Case) Label() string {
	label := c.Precision.Label()
	if c.Accelerate {
		label += "+accel"
	}
	return label
}

// Validate checks the case without side effects.
//
// Returns:
//   - error: ErrUnsupportedConfiguration for an unknown model, precision or engine, or an
//     engine/precision combination the engine cannot run.
func (c Case) Validate() error {
	if _, err := inference.ParseEngineType(string(c.Engine)); err != nil {
		return err
	}
	if err := c.Precision.Validate(); err != nil {
		return err
	}
	if c.BatchSize < 1 {
		return errors.Wrapf(inference.ErrUnsupportedConfiguration, "batch size %d", c.BatchSize)
	}
	if c.Engine == inference.EngineONNX {
		return providers.CheckPrecision(c.Precision)
	}
	return models.Validate(c.Model)
}

func (c Case) withDefaults() Case {
	if c.Engine == "" {
		c.Engine = inference.EngineNative
	}
	if c.BatchSize == 0 {
		c.BatchSize = 1
	}
	return c
}

// CaseBuilder helps build cases with fluent API
type CaseBuilder struct {
	c Case
}

// NewCaseBuilder creates a builder for an unaccelerated FP32 case of the model with batch
// size 1 on the native engine.
func NewCaseBuilder(model string) *CaseBuilder {
	return &CaseBuilder{
		c: Case{
			Model:     model,
			Engine:    inference.EngineNative,
			Precision: inference.PrecisionFP32,
			BatchSize: 1,
		},
	}
}

// WithEngine sets the engine type
func (b *CaseBuilder) WithEngine(engine inference.EngineType) *CaseBuilder {
	b.c.Engine = engine
	return b
}

// WithPrecision sets the precision
func (b *CaseBuilder) WithPrecision(p inference.Precision) *CaseBuilder {
	b.c.Precision = p
	return b
}

// WithAcceleration toggles acceleration
func (b *CaseBuilder) WithAcceleration(on bool) *CaseBuilder {
	b.c.Accelerate = on
	return b
}

// WithBatchSize sets the batch size
func (b *CaseBuilder) WithBatchSize(n int) *CaseBuilder {
	b.c.BatchSize = n
	return b
}

// Build returns the case
func (b *CaseBuilder) Build() Case {
	return b.c
}

// CaseSet represents a collection of cases
type CaseSet struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Cases       []Case `json:"cases"`
}

// PrecisionMatrix returns the cases for every precision with acceleration off and then on,
// baseline first.
//
// Arguments:
//   - model: The model identifier.
//   - batchSize: The batch size.
//   - precisions: The precisions to include; all supported precisions when empty.
//
// Returns:
//   - *CaseSet: The cases.
func PrecisionMatrix(model string, batchSize int, precisions ...inference.Precision) *CaseSet {
	if len(precisions) == 0 {
		precisions = inference.Precisions
	}
	cases := make([]Case, 0, 2*len(precisions))
	for _, accelerate := range []bool{false, true} {
		for _, p := range precisions {
			cases = append(cases, NewCaseBuilder(model).
				WithPrecision(p).
				WithAcceleration(accelerate).
				WithBatchSize(batchSize).
				Build())
		}
	}
	return &CaseSet{
		Name:        fmt.Sprintf("Precision Matrix - %s", model),
		Description: fmt.Sprintf("Compares precisions with and without acceleration for %s at batch size %d", model, batchSize),
		Cases:       cases,
	}
}

// SaveCaseSet saves a case set to a JSON file
func SaveCaseSet(set *CaseSet, filename string) error {
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal case set")
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return errors.Wrap(err, "write case file")
	}
	return nil
}

// LoadCaseSet loads a case set from a JSON file
func LoadCaseSet(filename string) (*CaseSet, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "read case file")
	}
	var set CaseSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, errors.Wrap(err, "unmarshal case set")
	}
	return &set, nil
}
