package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-ml-bench/inference/quant"
)

func testKey() Key {
	return Key{Model: "resnet-mini", Precision: "INT8", InputShape: []int{1, 3, 32, 32}, Variant: "eager"}
}

func testArtifact() *Artifact {
	return &Artifact{
		Weights: map[string]*quant.QuantizedTensor{
			"fc/weight": {Shape: []int{2}, Data: []int8{1, -1}, Scales: []float32{0.5}},
		},
		ActivationScales:   map[string]float32{"fc": 0.1},
		InputScale:         0.02,
		CalibrationBatches: 4,
	}
}

func TestFingerprint(t *testing.T) {
	k := testKey()
	assert.Equal(t, k.Fingerprint(), testKey().Fingerprint(), "fingerprint is deterministic")

	other := testKey()
	other.InputShape = []int{2, 3, 32, 32}
	assert.NotEqual(t, k.Fingerprint(), other.Fingerprint(), "input shape is part of the key")

	other = testKey()
	other.Variant = "optimized"
	assert.NotEqual(t, k.Fingerprint(), other.Fingerprint())

	other = testKey()
	other.Precision = "BF16"
	assert.NotEqual(t, k.Fingerprint(), other.Fingerprint())
}

func TestGetOrBuild(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "artifacts"), nil)

	builds := 0
	build := func() (*Artifact, error) {
		builds++
		return testArtifact(), nil
	}

	a, hit, err := store.GetOrBuild(testKey(), build)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, builds)
	assert.Equal(t, testKey().Fingerprint(), a.Fingerprint)
	assert.FileExists(t, store.Path(testKey()))

	b, hit, err := store.GetOrBuild(testKey(), build)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, builds, "second call must not rebuild")
	assert.Equal(t, a.Weights["fc/weight"].Data, b.Weights["fc/weight"].Data)
	assert.Equal(t, float32(0.02), b.InputScale)
}

func TestGetOrBuildRebuildsCorruptArtifact(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	require.NoError(t, os.WriteFile(store.Path(testKey()), []byte("not gob"), 0o644))

	builds := 0
	_, hit, err := store.GetOrBuild(testKey(), func() (*Artifact, error) {
		builds++
		return testArtifact(), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, builds)

	_, err = store.Load(testKey())
	assert.NoError(t, err)
}

func TestGetOrBuildFailureWritesNothing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "artifacts")
	store := NewStore(dir, nil)

	boom := errors.New("calibration failed")
	_, _, err := store.GetOrBuild(testKey(), func() (*Artifact, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.NoDirExists(t, dir)
}

func TestLoadMissing(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	_, err := store.Load(testKey())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPathIsDeterministic(t *testing.T) {
	store := NewStore("/tmp/x", nil)
	k := testKey()
	k.Model = "bert/mini"
	p := store.Path(k)
	assert.Equal(t, p, store.Path(k))
	assert.Equal(t, "/tmp/x", filepath.Dir(p))
	assert.Contains(t, filepath.Base(p), "bert_mini-int8-")
}
