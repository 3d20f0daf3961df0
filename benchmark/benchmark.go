package benchmark

import (
	"encoding/json"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-ml-bench/profiler"
)

// ErrMissingBaseline is returned when speedups are requested from a result set without its
// baseline entry.
var ErrMissingBaseline = errors.New("missing baseline result")

// Result is the outcome of one measured case.
type Result struct {
	Label   string        `json:"label"`
	Case    Case          `json:"case"`
	Elapsed time.Duration `json:"elapsed"`
	// Seconds is Elapsed in seconds, kept for reports.
	Seconds   float64       `json:"seconds"`
	Tier      string        `json:"tier"`
	Emulated  bool          `json:"emulated"`
	CacheHit  bool          `json:"cache_hit"`
	Provider  string        `json:"provider,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Memory    MemoryMetrics `json:"memory"`
	// Prepare covers loading, quantization and graph capture.
	Prepare time.Duration           `json:"prepare"`
	Warmup  profiler.OperationStats `json:"warmup"`
	// Prediction is the top-1 class of the first sample for classifiers.
	Prediction string `json:"prediction,omitempty"`
}

// Speedup is the ratio of the baseline time to an entry's time.
type Speedup struct {
	Label string  `json:"label"`
	Ratio float64 `json:"ratio"`
}

// ResultSet is an ordered mapping from label to result with a designated baseline.
type ResultSet struct {
	baseline string
	order    []string
	byLabel  map[string]Result
}

// NewResultSet creates an empty set.
//
// Arguments:
//   - baseline: The label speedups are computed against; BaselineLabel when empty.
//
// Returns:
//   - *ResultSet: The empty set.
func NewResultSet(baseline string) *ResultSet {
	if baseline == "" {
		baseline = BaselineLabel
	}
	return &ResultSet{baseline: baseline, byLabel: make(map[string]Result)}
}

// Baseline returns the baseline label.
func (rs *ResultSet) Baseline() string {
	return rs.baseline
}

// Add stores r under r.Label. Re-adding a label replaces the entry in place.
func (rs *ResultSet) Add(r Result) {
	if _, ok := rs.byLabel[r.Label]; !ok {
		rs.order = append(rs.order, r.Label)
	}
	rs.byLabel[r.Label] = r
}

// Get returns the result for a label.
func (rs *ResultSet) Get(label string) (Result, bool) {
	r, ok := rs.byLabel[label]
	return r, ok
}

// Len returns the number of entries.
func (rs *ResultSet) Len() int {
	return len(rs.order)
}

// Labels returns the labels in insertion order.
func (rs *ResultSet) Labels() []string {
	return append([]string(nil), rs.order...)
}

// Results returns the entries in insertion order.
func (rs *ResultSet) Results() []Result {
	out := make([]Result, 0, len(rs.order))
	for _, label := range rs.order {
		out = append(out, rs.byLabel[label])
	}
	return out
}

// Merge adds every entry of other with suffix appended to its label.
func (rs *ResultSet) Merge(other *ResultSet, suffix string) {
	for _, r := range other.Results() {
		r.Label += suffix
		rs.Add(r)
	}
}

// Speedups returns baseline/entry for every non-baseline entry in insertion order.
//
// An entry that took no measurable time has an infinite speedup.
//
// Returns:
//   - []Speedup: The ratios.
//   - error: ErrMissingBaseline if the baseline entry is absent.
func (rs *ResultSet) Speedups() ([]Speedup, error) {
	base, ok := rs.byLabel[rs.baseline]
	if !ok {
		return nil, errors.Wrapf(ErrMissingBaseline, "baseline %q", rs.baseline)
	}
	out := make([]Speedup, 0, len(rs.order))
	for _, label := range rs.order {
		if label == rs.baseline {
			continue
		}
		r := rs.byLabel[label]
		ratio := math.Inf(1)
		if r.Seconds > 0 {
			ratio = base.Seconds / r.Seconds
		}
		out = append(out, Speedup{Label: label, Ratio: ratio})
	}
	return out, nil
}

type resultSetJSON struct {
	Baseline string   `json:"baseline"`
	Results  []Result `json:"results"`
}

// MarshalJSON encodes the set with its order preserved.
func (rs *ResultSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultSetJSON{Baseline: rs.baseline, Results: rs.Results()})
}

// UnmarshalJSON decodes a set written by MarshalJSON.
func (rs *ResultSet) UnmarshalJSON(data []byte) error {
	var raw resultSetJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*rs = *NewResultSet(raw.Baseline)
	for _, r := range raw.Results {
		rs.Add(r)
	}
	return nil
}

// ModelResults is the result set of one model.
type ModelResults struct {
	Model     string     `json:"model"`
	BatchSize int        `json:"batch_size"`
	Results   *ResultSet `json:"results"`
}

// Report groups the results of a run by model, in the order models were first measured.
type Report struct {
	Tier   string         `json:"tier"`
	Models []ModelResults `json:"models"`
}

// Get returns the results of a model.
func (r *Report) Get(model string) (*ResultSet, bool) {
	for _, m := range r.Models {
		if m.Model == model {
			return m.Results, true
		}
	}
	return nil, false
}

// Merge adds other's result sets into the matching models with suffix appended to each
// label. Models missing from r are added.
func (r *Report) Merge(other *Report, suffix string) {
	for _, m := range other.Models {
		if rs, ok := r.Get(m.Model); ok {
			rs.Merge(m.Results, suffix)
			continue
		}
		rs := NewResultSet(m.Results.Baseline() + suffix)
		rs.Merge(m.Results, suffix)
		r.Models = append(r.Models, ModelResults{Model: m.Model, BatchSize: m.BatchSize, Results: rs})
	}
}
