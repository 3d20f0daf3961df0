package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-ml-bench/benchmark"
	"github.com/nvr-ai/go-ml-bench/inference"
	"github.com/nvr-ai/go-ml-bench/models"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.Warmup)
	assert.Equal(t, 1, cfg.BatchSize)
	assert.Equal(t, ".cache/artifacts", cfg.CacheDir)

	cases, err := cfg.Cases()
	require.NoError(t, err)
	assert.Len(t, cases, 12)
	assert.Equal(t, models.BERTMiniID, cases[0].Model)
	assert.Equal(t, "fp32", cases[0].Label())
}

func TestConfigValidate(t *testing.T) {
	tests := map[string]func(*Config){
		"batch":      func(c *Config) { c.BatchSize = 0 },
		"warmup":     func(c *Config) { c.Warmup = -1 },
		"accelerate": func(c *Config) { c.Accelerate = "sometimes" },
		"format":     func(c *Config) { c.Format = "xml" },
		"log level":  func(c *Config) { c.LogLevel = "loud" },
		"engine":     func(c *Config) { c.Engine = "tensorrt" },
		"precision":  func(c *Config) { c.Precisions = []string{"fp16"} },
		"model":      func(c *Config) { c.Models = []string{"vgg-mega"} },
		"no models":  func(c *Config) { c.Models = nil },
		"onnx model": func(c *Config) { c.Engine = "onnx" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultConfig()
	cfg.Models = []string{"vgg-mega"}
	assert.True(t, errors.Is(cfg.Validate(), inference.ErrUnsupportedConfiguration))
}

func TestConfigCasesAccelerationFilter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Models = []string{models.ResNetMiniID}
	cfg.Precisions = []string{"baseline,int8"}
	cfg.Accelerate = AccelerateOff
	cfg.BatchSize = 4

	cases, err := cfg.Cases()
	require.NoError(t, err)
	require.Len(t, cases, 2)
	for _, c := range cases {
		assert.False(t, c.Accelerate)
		assert.Equal(t, 4, c.BatchSize)
		assert.Equal(t, inference.EngineNative, c.Engine)
	}
	assert.Equal(t, []string{"fp32", "int8"}, []string{cases[0].Label(), cases[1].Label()})

	// Every label gains +accel, leaving nothing to compare against.
	cfg.Accelerate = AccelerateOn
	_, err = cfg.Cases()
	assert.True(t, errors.Is(err, benchmark.ErrMissingBaseline))
}

func TestConfigCasesRequireBaseline(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Precisions = []string{"bf16", "int8"}
	_, err := cfg.Cases()
	assert.True(t, errors.Is(err, benchmark.ErrMissingBaseline))
	assert.Contains(t, err.Error(), models.BERTMiniID)
}

func TestConfigCasesONNX(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine = "onnx"
	cfg.Precisions = []string{"fp32"}
	cfg.ONNX.ModelPath = "/models/resnet50.onnx"
	require.NoError(t, cfg.Validate())

	cases, err := cfg.Cases()
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, inference.EngineONNX, cases[0].Engine)
	assert.Equal(t, "resnet50", cases[0].Model)
}

func TestConfigCasesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.json")
	require.NoError(t, benchmark.SaveCaseSet(benchmark.PrecisionMatrix(models.BERTMiniID, 2, inference.PrecisionFP32, inference.PrecisionBF16), path))

	cfg := DefaultConfig()
	cfg.CasesFile = path
	cfg.Models = nil
	require.NoError(t, cfg.Validate())

	cases, err := cfg.Cases()
	require.NoError(t, err)
	require.Len(t, cases, 4)
	assert.Equal(t, "bf16+accel", cases[3].Label())

	bf16Only := filepath.Join(t.TempDir(), "bf16.json")
	require.NoError(t, benchmark.SaveCaseSet(benchmark.PrecisionMatrix(models.BERTMiniID, 2, inference.PrecisionBF16), bf16Only))
	cfg.CasesFile = bf16Only
	_, err = cfg.Cases()
	assert.True(t, errors.Is(err, benchmark.ErrMissingBaseline))
}

func TestLoadConfig(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("batch_size", 8)
	v.Set("models", []string{models.ResNetMiniID})
	v.Set("onnx.accelerator", "openvino")

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.BatchSize)
	assert.Equal(t, []string{models.ResNetMiniID}, cfg.Models)
	assert.Equal(t, "openvino", string(cfg.ONNX.Accelerator))
	assert.Equal(t, "input", cfg.ONNX.InputName)

	v.Set("format", "yaml")
	_, err = loadConfig(v)
	assert.Error(t, err)
}

func TestModelsCommand(t *testing.T) {
	var out bytes.Buffer
	modelsCmd.SetOut(&out)
	require.NoError(t, modelsCmd.RunE(modelsCmd, nil))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], models.BERTMiniID)
	assert.Contains(t, lines[2], "[N,3,32,32]")
}

func TestChildRunArgs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Warmup = 3
	args := childRunArgs(cfg)
	assert.Equal(t, []string{"--warmup", "3"}, args[:2])
	assert.Contains(t, args, "--history")
	assert.Contains(t, childArgs(cfg), "info")
}

func TestConfigRejectsReducedPrecisionONNX(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine = "onnx"
	cfg.ONNX.ModelPath = "/models/resnet50.onnx"
	assert.True(t, errors.Is(cfg.Validate(), inference.ErrUnsupportedConfiguration))
}

func TestRunCommandWithoutBaselineFails(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"run",
		"--models", models.ResNetMiniID,
		"--precisions", "bf16",
		"--accelerate", "off",
		"--warmup", "1",
		"--cache-dir", filepath.Join(dir, "artifacts"),
		"--output", "",
		"--history", "",
	})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, benchmark.ErrMissingBaseline))
	assert.Empty(t, out.String(), "nothing is measured or printed")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, loadDotEnv(filepath.Join(dir, "missing.env")))

	good := filepath.Join(dir, "good.env")
	require.NoError(t, os.WriteFile(good, []byte("GOMLBENCH_DOTENV_CHECK=AVX2\n"), 0o644))
	t.Setenv("GOMLBENCH_DOTENV_CHECK", "")
	os.Unsetenv("GOMLBENCH_DOTENV_CHECK")
	require.NoError(t, loadDotEnv(good))
	assert.Equal(t, "AVX2", os.Getenv("GOMLBENCH_DOTENV_CHECK"))

	// A path that exists but cannot be read as a file is reported.
	assert.Error(t, loadDotEnv(dir))
}
