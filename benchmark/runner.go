package benchmark

import (
	"context"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-ml-bench/inference"
	"github.com/nvr-ai/go-ml-bench/inference/cache"
	"github.com/nvr-ai/go-ml-bench/inference/graph"
	"github.com/nvr-ai/go-ml-bench/inference/isa"
	"github.com/nvr-ai/go-ml-bench/inference/providers"
	"github.com/nvr-ai/go-ml-bench/models"
	"github.com/nvr-ai/go-ml-bench/profiler"
)

// DefaultWarmup is the number of untimed forward passes before the timed one.
const DefaultWarmup = 10

// Stats counts the work a runner did across cases.
type Stats struct {
	Cases        int `json:"cases"`
	Calibrations int `json:"calibrations"`
	CacheHits    int `json:"cache_hits"`
}

// NewRunnerArgs represents the arguments for creating a runner.
type NewRunnerArgs struct {
	// Warmup is the number of untimed passes; DefaultWarmup when zero, none when negative.
	Warmup int
	// Cache stores calibrated int8 artifacts.
	Cache *cache.Store
	// WeightsDir holds pretrained .npy weights; seeded weights are used when empty.
	WeightsDir string
	// CalibrationBatches is passed to the native engine.
	CalibrationBatches int
	// ONNX configures cases on the onnx engine. ModelPath is required for those cases.
	ONNX providers.Config
	// Profiler accumulates preparation and warm-up timings across cases; a new one when nil.
	Profiler *profiler.Profiler
	Logger   *slog.Logger
}

// Runner measures benchmark cases.
type Runner struct {
	warmup             int
	cache              *cache.Store
	weightsDir         string
	calibrationBatches int
	onnx               providers.Config
	profiler           *profiler.Profiler
	logger             *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// NewRunner creates a runner.
func NewRunner(args NewRunnerArgs) *Runner {
	warmup := args.Warmup
	switch {
	case warmup == 0:
		warmup = DefaultWarmup
	case warmup < 0:
		warmup = 0
	}
	logger := args.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prof := args.Profiler
	if prof == nil {
		prof = profiler.New(profiler.Options{})
	}
	return &Runner{
		warmup:             warmup,
		cache:              args.Cache,
		weightsDir:         args.WeightsDir,
		calibrationBatches: args.CalibrationBatches,
		onnx:               args.ONNX,
		profiler:           prof,
		logger:             logger,
	}
}

// Stats returns the counters accumulated so far.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Profiler returns the profiler holding preparation and warm-up timings.
func (r *Runner) Profiler() *profiler.Profiler {
	return r.profiler
}

// Measure times one forward pass of a case after warm-up.
//
// The case is validated before any model is loaded or artifact written.
//
// Arguments:
//   - ctx: The context; cancellation stops warm-up and timing.
//   - c: The case.
//
// Returns:
//   - time.Duration: The wall-clock time of the timed forward pass.
//   - error: The cause wrapped with the case label.
func (r *Runner) Measure(ctx context.Context, c Case) (time.Duration, error) {
	res, err := r.Run(ctx, c)
	if err != nil {
		return 0, err
	}
	return res.Elapsed, nil
}

// Run measures a case and returns the full result.
func (r *Runner) Run(ctx context.Context, c Case) (*Result, error) {
	c = c.withDefaults()
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "case %s/%s", c.Model, c.Label())
	}

	var (
		res *Result
		err error
	)
	switch c.Engine {
	case inference.EngineONNX:
		res, err = r.runONNX(ctx, c)
	default:
		res, err = r.runNative(ctx, c)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "case %s/%s", c.Model, c.Label())
	}

	r.logger.Info("case measured",
		"model", c.Model,
		"label", res.Label,
		"seconds", res.Seconds,
		"tier", res.Tier,
		"emulated", res.Emulated,
		"cache_hit", res.CacheHit,
	)
	return res, nil
}

func (r *Runner) runNative(ctx context.Context, c Case) (*Result, error) {
	net, err := models.NewModel(c.Model, r.weightsDir)
	if err != nil {
		return nil, err
	}
	input, err := net.SampleInput(c.BatchSize)
	if err != nil {
		return nil, err
	}
	return r.measureNetwork(ctx, net, input, c)
}

// MeasureNetwork prepares net under the precision, warms it up and times one forward pass.
//
// Arguments:
//   - ctx: The context.
//   - net: The network.
//   - input: The sample input.
//   - precision: The precision path.
//   - accelerate: Whether to optimize the graph first.
//
// Returns:
//   - time.Duration: The wall-clock time of the timed forward pass.
//   - error: A preparation or execution error.
func (r *Runner) MeasureNetwork(ctx context.Context, net *models.Network, input *models.Sample, precision inference.Precision, accelerate bool) (time.Duration, error) {
	c := Case{
		Model:      net.ID,
		Engine:     inference.EngineNative,
		Precision:  precision,
		Accelerate: accelerate,
		BatchSize:  input.Batch,
	}
	res, err := r.measureNetwork(ctx, net, input, c)
	if err != nil {
		return 0, err
	}
	return res.Elapsed, nil
}

func (r *Runner) measureNetwork(ctx context.Context, net *models.Network, input *models.Sample, c Case) (*Result, error) {
	done := r.profiler.StartOperation(operation(c, "prepare"))
	engine, err := graph.Prepare(net, input, graph.Config{
		Precision:          c.Precision,
		Accelerate:         c.Accelerate,
		Cache:              r.cache,
		CalibrationBatches: r.calibrationBatches,
		Logger:             r.logger,
	})
	if err != nil {
		return nil, err
	}
	defer engine.Close()
	prepare := done()

	if engine.Calibrated() {
		r.mu.Lock()
		r.stats.Calibrations++
		r.mu.Unlock()
	}
	return r.timeEngine(ctx, engine, c, prepare)
}

func (r *Runner) runONNX(ctx context.Context, c Case) (*Result, error) {
	cfg := r.onnx
	cfg.InputShape = append([]int64(nil), cfg.InputShape...)
	if len(cfg.InputShape) > 0 {
		cfg.InputShape[0] = int64(c.BatchSize)
	}
	if len(cfg.OutputShape) > 0 {
		cfg.OutputShape = append([]int64(nil), cfg.OutputShape...)
		cfg.OutputShape[0] = int64(c.BatchSize)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	done := r.profiler.StartOperation(operation(c, "prepare"))
	engine, err := providers.NewEngine(cfg, c.Precision, c.Accelerate, onnxSample(c.Model, cfg.InputSize()))
	if err != nil {
		return nil, err
	}
	defer engine.Close()
	return r.timeEngine(ctx, engine, c, done())
}

// onnxSample is a deterministic input in [0, 1) for runtime models.
func onnxSample(model string, size int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(model))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))
	data := make([]float32, size)
	for i := range data {
		data[i] = rng.Float32()
	}
	return data
}

// timeEngine runs the warm-up passes and exactly one timed pass.
func (r *Runner) timeEngine(ctx context.Context, engine inference.Engine, c Case, prepare time.Duration) (*Result, error) {
	passes := profiler.New(profiler.Options{MaxSamples: r.warmup + 1})
	op := operation(c, "warmup")
	for i := 0; i < r.warmup; i++ {
		done := passes.StartOperation(op)
		if err := engine.Forward(ctx); err != nil {
			return nil, errors.Wrapf(err, "warm-up pass %d", i)
		}
		r.profiler.Record(op, done())
	}
	warmup, _ := passes.Stats(op)

	startMem := readMemStats()
	start := time.Now()
	if err := engine.Forward(ctx); err != nil {
		return nil, errors.Wrap(err, "timed pass")
	}
	elapsed := time.Since(start)
	if elapsed < 0 {
		elapsed = 0
	}
	endMem := readMemStats()

	info := engine.Describe()
	r.mu.Lock()
	r.stats.Cases++
	if info.CacheHit {
		r.stats.CacheHits++
	}
	r.mu.Unlock()

	if info.Model != "" && c.Engine == inference.EngineONNX {
		c.Model = info.Model
	}
	var prediction string
	if set, ok := models.ClassesFor(c.Model); ok {
		if top, err := set.TopK(engine.Output(), 1); err == nil && len(top) == 1 {
			prediction = top[0].Name
		}
	}
	return &Result{
		Label:      c.Label(),
		Case:       c,
		Elapsed:    elapsed,
		Seconds:    elapsed.Seconds(),
		Tier:       info.Tier,
		Emulated:   info.Emulated,
		CacheHit:   info.CacheHit,
		Provider:   info.Provider,
		Timestamp:  start,
		Prepare:    prepare,
		Warmup:     warmup,
		Prediction: prediction,
		Memory:     memoryDelta(startMem, endMem),
	}, nil
}

// operation names a profiled step of a case.
func operation(c Case, step string) string {
	return c.Model + "/" + c.Label() + "/" + step
}

// RunCases measures cases of a single model in order, stopping at the first failure.
//
// Labels carry no model, so cases of several models are rejected before anything runs; use
// RunReport for those.
//
// Returns:
//   - *ResultSet: The results with BaselineLabel as baseline; on failure, the results
//     measured before it.
//   - error: ErrUnsupportedConfiguration for mixed models, otherwise the first failure.
func (r *Runner) RunCases(ctx context.Context, cases []Case) (*ResultSet, error) {
	rs := NewResultSet(BaselineLabel)
	for _, c := range cases {
		if c.Model != cases[0].Model {
			return rs, errors.Wrapf(inference.ErrUnsupportedConfiguration,
				"result set mixes models %q and %q", cases[0].Model, c.Model)
		}
	}
	for _, c := range cases {
		res, err := r.Run(ctx, c)
		if err != nil {
			return rs, err
		}
		rs.Add(*res)
	}
	return rs, nil
}

// RunReport measures cases grouped by model, stopping at the first failure.
//
// Returns:
//   - *Report: One result set per model, tagged with the effective dispatch tier.
//   - error: The first failure; the report then holds what was measured before it.
func (r *Runner) RunReport(ctx context.Context, cases []Case) (*Report, error) {
	report := &Report{Tier: isa.Effective().String()}
	for _, c := range cases {
		c = c.withDefaults()
		res, err := r.Run(ctx, c)
		if err != nil {
			return report, err
		}
		rs, ok := report.Get(res.Case.Model)
		if !ok {
			rs = NewResultSet(BaselineLabel)
			report.Models = append(report.Models, ModelResults{Model: res.Case.Model, BatchSize: c.BatchSize, Results: rs})
		}
		rs.Add(*res)
	}
	return report, nil
}
