package benchmark

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-ml-bench/inference"
	"github.com/nvr-ai/go-ml-bench/models"
)

func result(label string, seconds float64) Result {
	return Result{
		Label:   label,
		Seconds: seconds,
		Elapsed: time.Duration(seconds * float64(time.Second)),
	}
}

func TestCaseLabel(t *testing.T) {
	b := NewCaseBuilder(models.ResNetMiniID)
	assert.Equal(t, BaselineLabel, b.Build().Label())
	assert.Equal(t, "bf16", b.WithPrecision(inference.PrecisionBF16).Build().Label())
	assert.Equal(t, "bf16+accel", b.WithAcceleration(true).Build().Label())
	assert.Equal(t, "int8+accel", NewCaseBuilder("x").WithPrecision(inference.PrecisionINT8).WithAcceleration(true).Build().Label())
}

func TestCaseValidate(t *testing.T) {
	assert.NoError(t, NewCaseBuilder(models.BERTMiniID).WithPrecision(inference.PrecisionINT8).Build().Validate())

	for name, c := range map[string]Case{
		"unknown model":     NewCaseBuilder("alexnet").Build(),
		"unknown precision": NewCaseBuilder(models.ResNetMiniID).WithPrecision("FP8").Build(),
		"zero batch":        NewCaseBuilder(models.ResNetMiniID).WithBatchSize(0).Build(),
		"onnx bf16":         NewCaseBuilder("").WithEngine(inference.EngineONNX).WithPrecision(inference.PrecisionBF16).Build(),
		"unknown engine":    NewCaseBuilder(models.ResNetMiniID).WithEngine("tvm").Build(),
	} {
		assert.True(t, errors.Is(c.Validate(), inference.ErrUnsupportedConfiguration), name)
	}
}

func TestPrecisionMatrix(t *testing.T) {
	set := PrecisionMatrix(models.ResNetMiniID, 4)
	require.Len(t, set.Cases, 6)
	labels := make([]string, 0, len(set.Cases))
	for _, c := range set.Cases {
		assert.Equal(t, 4, c.BatchSize)
		labels = append(labels, c.Label())
	}
	assert.Equal(t, []string{"fp32", "bf16", "int8", "fp32+accel", "bf16+accel", "int8+accel"}, labels)

	path := filepath.Join(t.TempDir(), "cases.json")
	require.NoError(t, SaveCaseSet(set, path))
	loaded, err := LoadCaseSet(path)
	require.NoError(t, err)
	assert.Equal(t, set, loaded)

	only := PrecisionMatrix(models.BERTMiniID, 1, inference.PrecisionFP32)
	assert.Len(t, only.Cases, 2)
}

func TestSpeedups(t *testing.T) {
	rs := NewResultSet("baseline")
	rs.Add(result("baseline", 2.0))
	rs.Add(result("A", 1.0))
	rs.Add(result("B", 0.5))

	speedups, err := rs.Speedups()
	require.NoError(t, err)
	assert.Equal(t, []Speedup{{Label: "A", Ratio: 2.0}, {Label: "B", Ratio: 4.0}}, speedups)
}

func TestSpeedupsMissingBaseline(t *testing.T) {
	rs := NewResultSet("")
	rs.Add(result("bf16", 1.0))

	_, err := rs.Speedups()
	assert.True(t, errors.Is(err, ErrMissingBaseline))
}

func TestResultSetOrderAndMerge(t *testing.T) {
	rs := NewResultSet("")
	rs.Add(result("fp32", 3))
	rs.Add(result("int8", 1))
	rs.Add(result("fp32", 2))
	assert.Equal(t, []string{"fp32", "int8"}, rs.Labels())
	got, ok := rs.Get("fp32")
	require.True(t, ok)
	assert.Equal(t, 2.0, got.Seconds)

	child := NewResultSet("")
	child.Add(result("fp32", 4))
	rs.Merge(child, "@AVX2")
	assert.Equal(t, []string{"fp32", "int8", "fp32@AVX2"}, rs.Labels())

	speedups, err := rs.Speedups()
	require.NoError(t, err)
	assert.Equal(t, Speedup{Label: "fp32@AVX2", Ratio: 0.5}, speedups[1])

	data, err := json.Marshal(rs)
	require.NoError(t, err)
	var decoded ResultSet
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, rs.Labels(), decoded.Labels())
	assert.Equal(t, rs.Baseline(), decoded.Baseline())
}

func TestReportMerge(t *testing.T) {
	parent := &Report{}
	a := NewResultSet("")
	a.Add(result("fp32", 1))
	parent.Models = append(parent.Models, ModelResults{Model: "m1", Results: a})

	child := &Report{}
	b := NewResultSet("")
	b.Add(result("fp32", 2))
	c := NewResultSet("")
	c.Add(result("fp32", 3))
	child.Models = append(child.Models, ModelResults{Model: "m1", Results: b}, ModelResults{Model: "m2", Results: c})

	parent.Merge(child, "@AVX")
	m1, ok := parent.Get("m1")
	require.True(t, ok)
	assert.Equal(t, []string{"fp32", "fp32@AVX"}, m1.Labels())

	m2, ok := parent.Get("m2")
	require.True(t, ok)
	assert.Equal(t, "fp32@AVX", m2.Baseline())
	_, err := m2.Speedups()
	assert.NoError(t, err)
}

func TestSummarize(t *testing.T) {
	rs := NewResultSet("")
	rs.Add(result("fp32", 0.02))
	rs.Add(result("bf16", 0.01))
	rs.Add(Result{Label: "int8", Seconds: 0.005, Emulated: true})

	var buf bytes.Buffer
	require.NoError(t, Summarize(&buf, "resnet-mini", rs, 2))
	out := buf.String()
	assert.Contains(t, out, "resnet-mini")
	assert.Contains(t, out, "20.000 ms")
	assert.Contains(t, out, "100.0 samples/s")
	assert.Contains(t, out, "(emulated)")
	assert.Contains(t, out, "2.00x")
	assert.Contains(t, out, "4.00x")
	assert.Equal(t, 4, strings.Count(out, "fp32"), "entry line, both bars and the speedup heading")
}

func TestSummarizeMissingBaseline(t *testing.T) {
	rs := NewResultSet("")
	rs.Add(result("bf16", 0.01))

	var buf bytes.Buffer
	err := Summarize(&buf, "resnet-mini", rs, 1)
	assert.True(t, errors.Is(err, ErrMissingBaseline))
	assert.Zero(t, buf.Len())
}

func TestCompare(t *testing.T) {
	prev := NewResultSet("")
	prev.Add(result("fp32", 2))
	prev.Add(result("int8", 1))
	curr := NewResultSet("")
	curr.Add(result("fp32", 1))
	curr.Add(result("bf16", 1))
	curr.Add(result("int8", 1.5))

	comps := Compare(prev, curr)
	require.Len(t, comps, 2)
	assert.Equal(t, "fp32", comps[0].Label)
	assert.InDelta(t, -50.0, comps[0].SecondsDiff, 1e-9)
	assert.False(t, comps[0].Regressed(10))
	assert.True(t, comps[1].Regressed(10))
	assert.Contains(t, comps[1].String(), "+50.00%")
}
