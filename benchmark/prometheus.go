package benchmark

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Exporter holds the benchmark metrics in a private registry, written to a node-exporter
// textfile after a run.
type Exporter struct {
	registry     *prometheus.Registry
	latency      *prometheus.GaugeVec
	speedup      *prometheus.GaugeVec
	calibrations prometheus.Counter
	cacheHits    prometheus.Counter
}

// NewExporter creates and registers the benchmark metrics.
func NewExporter() *Exporter {
	e := &Exporter{registry: prometheus.NewRegistry()}

	e.latency = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gomlbench",
			Name:      "forward_pass_seconds",
			Help:      "Wall-clock time of the timed forward pass",
		},
		[]string{"model", "label", "tier"},
	)
	e.speedup = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gomlbench",
			Name:      "speedup_ratio",
			Help:      "Baseline time divided by the case time",
		},
		[]string{"model", "label"},
	)
	e.calibrations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gomlbench",
			Name:      "calibrations_total",
			Help:      "Number of int8 calibrations run",
		},
	)
	e.cacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gomlbench",
			Name:      "artifact_cache_hits_total",
			Help:      "Number of int8 artifacts reused from the cache",
		},
	)

	e.registry.MustRegister(e.latency, e.speedup, e.calibrations, e.cacheHits)
	return e
}

// Registry exposes the registry for gathering.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Observe records a model's results. Speedups are skipped when the baseline is missing.
func (e *Exporter) Observe(model string, rs *ResultSet) {
	for _, r := range rs.Results() {
		e.latency.WithLabelValues(model, r.Label, r.Tier).Set(r.Seconds)
	}
	speedups, err := rs.Speedups()
	if err != nil {
		return
	}
	for _, s := range speedups {
		e.speedup.WithLabelValues(model, s.Label).Set(s.Ratio)
	}
}

// ObserveStats adds the runner counters.
func (e *Exporter) ObserveStats(s Stats) {
	e.calibrations.Add(float64(s.Calibrations))
	e.cacheHits.Add(float64(s.CacheHits))
}

// WriteTextfile writes the metrics atomically in the text exposition format.
func (e *Exporter) WriteTextfile(path string) error {
	return errors.Wrapf(prometheus.WriteToTextfile(path, e.registry), "write metrics %s", path)
}
