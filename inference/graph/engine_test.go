package graph

import (
	"context"
	"os"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-ml-bench/inference"
	"github.com/nvr-ai/go-ml-bench/inference/cache"
	"github.com/nvr-ai/go-ml-bench/models"
)

func prepare(t *testing.T, id string, batch int, cfg Config) (*Engine, *models.Network) {
	t.Helper()
	net, err := models.NewModel(id, "")
	require.NoError(t, err)
	sample, err := net.SampleInput(batch)
	require.NoError(t, err)

	e, err := Prepare(net, sample, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e, net
}

func forward(t *testing.T, e *Engine) []float32 {
	t.Helper()
	require.NoError(t, e.Forward(context.Background()))
	return e.Output()
}

func TestPrepareFP32(t *testing.T) {
	e, _ := prepare(t, models.ResNetMiniID, 2, Config{Precision: inference.PrecisionFP32})
	out := forward(t, e)
	assert.Equal(t, []int{2, 10}, e.OutputShape())
	assert.Len(t, out, 20)

	// Replaying the tape gives the same result.
	assert.Equal(t, out, forward(t, e))

	info := e.Describe()
	assert.Equal(t, inference.EngineNative, info.Engine)
	assert.False(t, info.Emulated)
	assert.NotEmpty(t, info.Tier)
}

func TestOptimizedMatchesEager(t *testing.T) {
	for _, id := range models.IDs() {
		t.Run(id, func(t *testing.T) {
			eager, _ := prepare(t, id, 2, Config{Precision: inference.PrecisionFP32})
			opt, _ := prepare(t, id, 2, Config{Precision: inference.PrecisionFP32, Accelerate: true})
			assert.True(t, opt.Describe().Accelerated)
			assert.InDeltaSlice(t, forward(t, eager), forward(t, opt), 1e-3)
		})
	}
}

func TestBF16StaysClose(t *testing.T) {
	fp32, _ := prepare(t, models.BERTMiniID, 1, Config{Precision: inference.PrecisionFP32})
	bf16, _ := prepare(t, models.BERTMiniID, 1, Config{Precision: inference.PrecisionBF16})

	want, got := forward(t, fp32), forward(t, bf16)
	assert.Equal(t, []int{1, 32}, bf16.OutputShape())
	assert.InDeltaSlice(t, want, got, 0.1)
}

func TestINT8UsesArtifactCache(t *testing.T) {
	store := cache.NewStore(t.TempDir(), nil)
	cfg := Config{Precision: inference.PrecisionINT8, Cache: store, CalibrationBatches: 2}

	first, net := prepare(t, models.ResNetMiniID, 1, cfg)
	assert.True(t, first.Calibrated())
	assert.False(t, first.Describe().CacheHit)

	second, _ := prepare(t, models.ResNetMiniID, 1, cfg)
	assert.False(t, second.Calibrated())
	assert.True(t, second.Describe().CacheHit)
	assert.Equal(t, forward(t, first), forward(t, second))

	key := cache.Key{Model: net.ID, Precision: "INT8", InputShape: []int{1, 3, 32, 32}, Variant: models.VariantEager}
	_, err := os.Stat(store.Path(key))
	assert.NoError(t, err)

	// The optimized graph has a different parameter set and gets its own artifact.
	cfg.Accelerate = true
	accel, _ := prepare(t, models.ResNetMiniID, 1, cfg)
	assert.True(t, accel.Calibrated())
}

func TestINT8StaysClose(t *testing.T) {
	store := cache.NewStore(t.TempDir(), nil)
	fp32, _ := prepare(t, models.ResNetMiniID, 1, Config{Precision: inference.PrecisionFP32})
	q8, _ := prepare(t, models.ResNetMiniID, 1, Config{Precision: inference.PrecisionINT8, Cache: store})
	assert.InDeltaSlice(t, forward(t, fp32), forward(t, q8), 0.25)
}

func TestPrepareRejects(t *testing.T) {
	net := models.NewResNetMini()
	sample, err := net.SampleInput(1)
	require.NoError(t, err)

	_, err = Prepare(net, sample, Config{Precision: "FP16"})
	assert.True(t, errors.Is(err, inference.ErrUnsupportedConfiguration))

	_, err = Prepare(net, sample, Config{Precision: inference.PrecisionINT8})
	assert.True(t, errors.Is(err, inference.ErrUnsupportedConfiguration), "int8 without a cache")

	tokens, err := models.NewBERTMini().SampleInput(1)
	require.NoError(t, err)
	_, err = Prepare(net, tokens, Config{Precision: inference.PrecisionFP32})
	assert.True(t, errors.Is(err, inference.ErrShapeMismatch))
}

func TestForwardHonoursContext(t *testing.T) {
	e, _ := prepare(t, models.ResNetMiniID, 1, Config{Precision: inference.PrecisionFP32})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, e.Forward(ctx), context.Canceled)
}

func TestCalibrate(t *testing.T) {
	net := models.NewBERTMini()
	set, err := net.CalibrationSet(1, 3)
	require.NoError(t, err)

	cal, err := Calibrate(net, set)
	require.NoError(t, err)
	assert.Equal(t, 3, cal.Batches)
	assert.Equal(t, 3, cal.Input.Batches)

	// Every attention, feed-forward and linear layer is observed; mean pooling is not.
	for i, l := range net.Layers {
		_, ok := cal.Layers[i]
		assert.Equal(t, len(l.QuantizableParams()) > 0, ok, l.Name)
	}

	a, err := Quantize(net, cal)
	require.NoError(t, err)
	assert.Contains(t, a.Weights, models.ParamID("block0.attention", "wq"))
	assert.Contains(t, a.ActivationScales, "pooler")
	assert.Positive(t, a.InputScale)

	// One positive scale per observed layer, none for the others.
	assert.Len(t, a.ActivationScales, len(cal.Layers))
	for i, l := range net.Layers {
		scale, ok := a.ActivationScales[l.Name]
		assert.Equal(t, len(l.QuantizableParams()) > 0, ok, l.Name)
		if ok {
			assert.Positive(t, scale, l.Name)
			assert.Equal(t, cal.Layers[i].Scale(), scale, l.Name)
		}
	}

	_, err = Calibrate(net, nil)
	assert.Error(t, err)
}
