package main

import (
	"log/slog"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/nvr-ai/go-ml-bench/benchmark"
	"github.com/nvr-ai/go-ml-bench/inference"
	"github.com/nvr-ai/go-ml-bench/inference/graph"
	"github.com/nvr-ai/go-ml-bench/inference/providers"
	"github.com/nvr-ai/go-ml-bench/models"
)

// Acceleration modes select which side of the acceleration axis is measured.
const (
	AccelerateOff  = "off"
	AccelerateOn   = "on"
	AccelerateBoth = "both"
)

// Output formats of the run command.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config is assembled from defaults, the config file, GOMLBENCH_ environment variables and
// flags, in increasing priority.
type Config struct {
	Models             []string         `mapstructure:"models"`
	Precisions         []string         `mapstructure:"precisions"`
	Engine             string           `mapstructure:"engine"`
	Accelerate         string           `mapstructure:"accelerate"`
	BatchSize          int              `mapstructure:"batch_size"`
	Warmup             int              `mapstructure:"warmup"`
	CalibrationBatches int              `mapstructure:"calibration_batches"`
	CacheDir           string           `mapstructure:"cache_dir"`
	OutputDir          string           `mapstructure:"output_dir"`
	WeightsDir         string           `mapstructure:"weights_dir"`
	HistoryDB          string           `mapstructure:"history_db"`
	MetricsFile        string           `mapstructure:"metrics_file"`
	CasesFile          string           `mapstructure:"cases"`
	Format             string           `mapstructure:"format"`
	LogLevel           string           `mapstructure:"log_level"`
	ONNX               providers.Config `mapstructure:"onnx"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Models:             models.IDs(),
		Precisions:         []string{"fp32", "bf16", "int8"},
		Engine:             string(inference.EngineNative),
		Accelerate:         AccelerateBoth,
		BatchSize:          1,
		Warmup:             benchmark.DefaultWarmup,
		CalibrationBatches: graph.DefaultCalibrationBatches,
		CacheDir:           ".cache/artifacts",
		OutputDir:          "benchmark_results",
		HistoryDB:          ".cache/history.db",
		Format:             FormatText,
		LogLevel:           "info",
		ONNX:               providers.DefaultConfig(),
	}
}

// setDefaults registers every top-level key so environment variables are honoured.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("models", d.Models)
	v.SetDefault("precisions", d.Precisions)
	v.SetDefault("engine", d.Engine)
	v.SetDefault("accelerate", d.Accelerate)
	v.SetDefault("batch_size", d.BatchSize)
	v.SetDefault("warmup", d.Warmup)
	v.SetDefault("calibration_batches", d.CalibrationBatches)
	v.SetDefault("cache_dir", d.CacheDir)
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("weights_dir", d.WeightsDir)
	v.SetDefault("history_db", d.HistoryDB)
	v.SetDefault("metrics_file", d.MetricsFile)
	v.SetDefault("cases", d.CasesFile)
	v.SetDefault("format", d.Format)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("onnx.shared_library_path", d.ONNX.SharedLibraryPath)
	v.SetDefault("onnx.model_path", d.ONNX.ModelPath)
	v.SetDefault("onnx.input_name", d.ONNX.InputName)
	v.SetDefault("onnx.output_name", d.ONNX.OutputName)
	v.SetDefault("onnx.input_shape", d.ONNX.InputShape)
	v.SetDefault("onnx.output_shape", d.ONNX.OutputShape)
	v.SetDefault("onnx.accelerator", string(d.ONNX.Accelerator))
}

// loadConfig decodes the viper state over the defaults and validates it.
func loadConfig(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "decode configuration")
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration before any model is built.
func (c Config) Validate() error {
	if c.BatchSize < 1 {
		return errors.Errorf("batch size must be at least 1, got %d", c.BatchSize)
	}
	if c.Warmup < 0 {
		return errors.Errorf("warmup must not be negative, got %d", c.Warmup)
	}
	switch c.Accelerate {
	case AccelerateOff, AccelerateOn, AccelerateBoth:
	default:
		return errors.Errorf("accelerate must be one of off, on, both; got %q", c.Accelerate)
	}
	switch c.Format {
	case FormatText, FormatJSON:
	default:
		return errors.Errorf("format must be text or json, got %q", c.Format)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.CasesFile != "" {
		return nil
	}

	engine, err := inference.ParseEngineType(c.Engine)
	if err != nil {
		return err
	}
	precisions, err := c.precisions()
	if err != nil {
		return err
	}
	if engine == inference.EngineONNX {
		for _, p := range precisions {
			if err := providers.CheckPrecision(p); err != nil {
				return err
			}
		}
		return c.ONNX.Validate()
	}
	if len(c.Models) == 0 {
		return errors.New("no models selected")
	}
	for _, id := range c.Models {
		if err := models.Validate(id); err != nil {
			return err
		}
	}
	return nil
}

// Level parses the log level.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return level, errors.Wrapf(err, "log level %q", c.LogLevel)
	}
	return level, nil
}

func (c Config) precisions() ([]inference.Precision, error) {
	out := make([]inference.Precision, 0, len(c.Precisions))
	for _, name := range c.Precisions {
		// Comma separated values arrive as one element from environment variables.
		for _, part := range strings.Split(name, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			p, err := inference.ParsePrecision(part)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, errors.Wrap(inference.ErrUnsupportedConfiguration, "no precisions selected")
	}
	return out, nil
}

// Cases expands the configuration into benchmark cases, model by model.
//
// Returns:
//   - []benchmark.Case: The cases from the cases file, or the precision matrix of every
//     selected model filtered by the acceleration mode.
//   - error: An error if the cases file cannot be read or a precision is unknown, and
//     benchmark.ErrMissingBaseline if a model has no unaccelerated fp32 case.
func (c Config) Cases() ([]benchmark.Case, error) {
	if c.CasesFile != "" {
		set, err := benchmark.LoadCaseSet(c.CasesFile)
		if err != nil {
			return nil, err
		}
		return set.Cases, requireBaselines(set.Cases)
	}

	engine, err := inference.ParseEngineType(c.Engine)
	if err != nil {
		return nil, err
	}
	precisions, err := c.precisions()
	if err != nil {
		return nil, err
	}
	ids := c.Models
	if engine == inference.EngineONNX {
		ids = []string{providers.ModelName(c.ONNX.ModelPath)}
	}

	var cases []benchmark.Case
	for _, id := range ids {
		for _, bc := range benchmark.PrecisionMatrix(id, c.BatchSize, precisions...).Cases {
			if (bc.Accelerate && c.Accelerate == AccelerateOff) || (!bc.Accelerate && c.Accelerate == AccelerateOn) {
				continue
			}
			bc.Engine = engine
			cases = append(cases, bc)
		}
	}
	return cases, requireBaselines(cases)
}

// requireBaselines checks that every model has the case speedups are relative to, so a run
// cannot finish without a summary.
func requireBaselines(cases []benchmark.Case) error {
	var order []string
	seen := make(map[string]bool)
	for _, bc := range cases {
		if _, ok := seen[bc.Model]; !ok {
			order = append(order, bc.Model)
			seen[bc.Model] = false
		}
		if bc.Label() == benchmark.BaselineLabel {
			seen[bc.Model] = true
		}
	}
	for _, model := range order {
		if !seen[model] {
			return errors.Wrapf(benchmark.ErrMissingBaseline,
				"model %s has no %s case; select fp32 with acceleration off or both", model, benchmark.BaselineLabel)
		}
	}
	return nil
}
