package providers

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/go-ml-bench/inference"
)

func testConfig() Config {
	c := DefaultConfig()
	c.ModelPath = "models/classifier.onnx"
	c.InputShape = []int64{1, 3, 4, 4}
	c.OutputShape = []int64{1, 10}
	return c
}

func TestCheckPrecision(t *testing.T) {
	assert.NoError(t, CheckPrecision(inference.PrecisionFP32))
	for _, p := range []inference.Precision{inference.PrecisionBF16, inference.PrecisionINT8, "FP64"} {
		assert.True(t, errors.Is(CheckPrecision(p), inference.ErrUnsupportedConfiguration), p)
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, testConfig().Validate())
	assert.Equal(t, 48, testConfig().InputSize())

	c := testConfig()
	c.ModelPath = ""
	assert.True(t, errors.Is(c.Validate(), inference.ErrUnsupportedConfiguration))

	c = testConfig()
	c.InputShape = []int64{1, 0, 4}
	assert.True(t, errors.Is(c.Validate(), inference.ErrShapeMismatch))

	c = testConfig()
	c.Accelerator = "dnnl"
	assert.True(t, errors.Is(c.Validate(), inference.ErrUnsupportedConfiguration))

	c = testConfig()
	c.OutputName = ""
	assert.Error(t, c.Validate())
}

func TestNewEngineRejectsBeforeLoadingRuntime(t *testing.T) {
	c := testConfig()
	c.SharedLibraryPath = filepath.Join(t.TempDir(), "missing.so")

	_, err := NewEngine(c, inference.PrecisionINT8, false, make([]float32, 48))
	assert.True(t, errors.Is(err, inference.ErrUnsupportedConfiguration))

	_, err = NewEngine(c, inference.PrecisionFP32, false, make([]float32, 3))
	assert.True(t, errors.Is(err, inference.ErrShapeMismatch))
}

func TestSharedLibPath(t *testing.T) {
	assert.Equal(t, "/opt/ort.so", SharedLibPath("/opt/ort.so"))

	t.Setenv(SharedLibraryEnvVar, "/usr/lib/libonnxruntime.so")
	assert.Equal(t, "/usr/lib/libonnxruntime.so", SharedLibPath(""))

	t.Setenv(SharedLibraryEnvVar, "")
	assert.NotEmpty(t, SharedLibPath(""))
}

func TestOpenVINOOptions(t *testing.T) {
	assert.Equal(t, map[string]string{
		"device_type":            "CPU",
		"disable_dynamic_shapes": "false",
	}, DefaultOpenVINOOptions().ToMap())

	opts := OpenVINOOptions{NumOfThreads: 4, NumStreams: 2, DisableDynamicShapes: true}
	m := opts.ToMap()
	assert.Equal(t, "4", m["num_of_threads"])
	assert.Equal(t, "2", m["num_streams"])
	assert.Equal(t, "true", m["disable_dynamic_shapes"])
	assert.NotContains(t, m, "device_type")
}

func TestDefaultOptimizationConfig(t *testing.T) {
	eager := DefaultOptimizationConfig(false)
	accel := DefaultOptimizationConfig(true)
	// The ort constants are untyped; convert so testify compares equal types.
	assert.Equal(t, ort.GraphOptimizationLevel(ort.GraphOptimizationLevelDisableAll), eager.GraphOptimizationLevel)
	assert.Equal(t, ort.GraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll), accel.GraphOptimizationLevel)
	assert.Equal(t, ort.ExecutionMode(ort.ExecutionModeSequential), accel.ExecutionMode)
	assert.GreaterOrEqual(t, accel.IntraOpNumThreads, 1)
}

func TestModelName(t *testing.T) {
	assert.Equal(t, "resnet50", ModelName("/models/imagenet/resnet50.onnx"))
	assert.Equal(t, "bert", ModelName("bert"))
}
