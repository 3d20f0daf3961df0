package graph

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-ml-bench/inference"
	"github.com/nvr-ai/go-ml-bench/inference/cache"
	"github.com/nvr-ai/go-ml-bench/inference/isa"
	"github.com/nvr-ai/go-ml-bench/inference/quant"
	"github.com/nvr-ai/go-ml-bench/models"
)

// DefaultCalibrationBatches is the number of calibration batches used for int8.
const DefaultCalibrationBatches = 4

// Config configures engine preparation.
type Config struct {
	Precision  inference.Precision
	Accelerate bool
	// Cache stores calibrated int8 artifacts. Required for INT8.
	Cache *cache.Store
	// CalibrationBatches defaults to DefaultCalibrationBatches.
	CalibrationBatches int
	Logger             *slog.Logger
}

// Engine is a captured network with its sample input bound.
type Engine struct {
	prog       *Program
	info       inference.EngineInfo
	calibrated bool
}

var _ inference.Engine = (*Engine)(nil)

// Prepare builds a native engine for net under the configured precision.
//
// Preparation is everything before timing: the optional graph optimization, bfloat16
// rounding or int8 calibration and quantization, graph capture and input binding.
//
// Arguments:
//   - net: The network.
//   - input: The sample input bound to the engine.
//   - cfg: The precision and acceleration settings.
//
// Returns:
//   - *Engine: The prepared engine.
//   - error: ErrUnsupportedConfiguration for an unknown precision, ErrShapeMismatch for a bad
//     input, or a capture/calibration error.
func Prepare(net *models.Network, input *models.Sample, cfg Config) (*Engine, error) {
	if err := cfg.Precision.Validate(); err != nil {
		return nil, err
	}
	if err := net.CheckInput(input); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Accelerate {
		optimized, err := models.Optimize(net)
		if err != nil {
			return nil, errors.Wrapf(err, "optimize %s", net.ID)
		}
		net = optimized
	}

	tier := isa.Effective()
	e := &Engine{
		info: inference.EngineInfo{
			Engine:      inference.EngineNative,
			Model:       net.ID,
			Precision:   cfg.Precision,
			Accelerated: cfg.Accelerate,
			Tier:        tier.String(),
		},
	}

	sample := input.Clone()
	var opts Options
	switch cfg.Precision {
	case inference.PrecisionFP32:
	case inference.PrecisionBF16:
		opts.Transform = bfloat16
		quant.RoundSliceBF16(sample.Data)
		e.info.Emulated = !tier.SupportsBF16()
	case inference.PrecisionINT8:
		artifact, hit, err := e.artifact(net, input, cfg, logger)
		if err != nil {
			return nil, err
		}
		opts.Transform = dequantized(artifact)
		quant.FakeQuantize(sample.Data, artifact.InputScale)
		e.info.CacheHit = hit
		e.info.Emulated = !tier.SupportsVNNI()
	}

	prog, err := Capture(net, sample.Batch, opts)
	if err != nil {
		return nil, err
	}
	if err := prog.Bind(sample); err != nil {
		prog.Close()
		return nil, err
	}
	e.prog = prog

	logger.Debug("engine prepared",
		"model", net.ID,
		"variant", net.Variant,
		"precision", cfg.Precision,
		"tier", e.info.Tier,
		"emulated", e.info.Emulated,
		"cache_hit", e.info.CacheHit,
	)
	return e, nil
}

// artifact loads the int8 artifact for net, calibrating only on a cache miss.
func (e *Engine) artifact(net *models.Network, input *models.Sample, cfg Config, logger *slog.Logger) (*cache.Artifact, bool, error) {
	if cfg.Cache == nil {
		return nil, false, errors.Wrap(inference.ErrUnsupportedConfiguration, "int8 needs an artifact cache")
	}
	batches := cfg.CalibrationBatches
	if batches <= 0 {
		batches = DefaultCalibrationBatches
	}

	key := cache.Key{
		Model:      net.ID,
		Precision:  string(cfg.Precision),
		InputShape: input.Shape,
		Variant:    net.Variant,
	}
	return cfg.Cache.GetOrBuild(key, func() (*cache.Artifact, error) {
		logger.Info("calibrating", "model", net.ID, "variant", net.Variant, "batches", batches)
		set, err := net.CalibrationSet(input.Batch, batches)
		if err != nil {
			return nil, err
		}
		cal, err := Calibrate(net, set)
		if err != nil {
			return nil, errors.Wrapf(err, "calibrate %s", net.ID)
		}
		e.calibrated = true
		return Quantize(net, cal)
	})
}

// Forward runs one forward pass over the bound input.
func (e *Engine) Forward(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.prog.Run()
}

// Output returns the result of the last forward pass.
func (e *Engine) Output() []float32 {
	return e.prog.Output()
}

// OutputShape returns the shape of the graph output.
func (e *Engine) OutputShape() []int {
	return e.prog.OutputShape()
}

// Describe reports how the engine was prepared.
func (e *Engine) Describe() inference.EngineInfo {
	return e.info
}

// Calibrated reports whether preparing this engine ran int8 calibration.
func (e *Engine) Calibrated() bool {
	return e.calibrated
}

// Close releases the captured graph.
func (e *Engine) Close() error {
	return e.prog.Close()
}
