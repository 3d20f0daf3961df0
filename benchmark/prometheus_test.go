package benchmark

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExporterTextfile(t *testing.T) {
	rs := NewResultSet("")
	rs.Add(Result{Label: "fp32", Seconds: 0.5, Tier: "AVX2"})
	rs.Add(Result{Label: "int8", Seconds: 0.125, Tier: "AVX2"})

	e := NewExporter()
	e.Observe("resnet-mini", rs)
	e.ObserveStats(Stats{Calibrations: 1, CacheHits: 3})

	path := filepath.Join(t.TempDir(), "gomlbench.prom")
	require.NoError(t, e.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `gomlbench_forward_pass_seconds{label="int8",model="resnet-mini",tier="AVX2"} 0.125`)
	assert.Contains(t, out, `gomlbench_speedup_ratio{label="int8",model="resnet-mini"} 4`)
	assert.Contains(t, out, "gomlbench_calibrations_total 1")
	assert.Contains(t, out, "gomlbench_artifact_cache_hits_total 3")
}

func TestExporterSkipsSpeedupsWithoutBaseline(t *testing.T) {
	rs := NewResultSet("")
	rs.Add(Result{Label: "bf16", Seconds: 0.01})

	e := NewExporter()
	e.Observe("bert-mini", rs)

	families, err := e.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		assert.NotEqual(t, "gomlbench_speedup_ratio", f.GetName())
	}
}
