// Package profiler - Operation timing for benchmark runs.
//
// The profiler tracks durations of named operations, such as model preparation and warm-up
// passes, alongside a snapshot of runtime memory statistics. It is thread-safe; the timed
// forward pass itself is measured by the caller and never routed through the profiler.
package profiler

import (
	"fmt"
	"io"
	"runtime"
	"sort"
	"sync"
	"time"
)

// Profiler collects timing statistics per operation name.
type Profiler struct {
	mu         sync.RWMutex
	startTime  time.Time
	maxSamples int
	operations map[string]*TimeTracker
}

// TimeTracker tracks operation timing statistics.
type TimeTracker struct {
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// OperationStats is a snapshot of one operation.
type OperationStats struct {
	Count int64         `json:"count"`
	Total time.Duration `json:"total"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Mean  time.Duration `json:"mean"`
	// Median covers the retained samples only.
	Median time.Duration `json:"median"`
}

// Options configures the profiler.
type Options struct {
	// MaxSamples bounds the durations kept per operation for the median (default: 1000).
	MaxSamples int
}

// New creates a profiler.
//
// Arguments:
// - opts: Configuration options for the profiler
//
// Returns:
// - A configured Profiler instance
func New(opts Options) *Profiler {
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = 1000
	}
	return &Profiler{
		startTime:  time.Now(),
		maxSamples: opts.MaxSamples,
		operations: make(map[string]*TimeTracker),
	}
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the operation to track
//
// Returns:
// - A function to call when the operation completes; it returns the elapsed time
func (p *Profiler) StartOperation(name string) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		d := time.Since(start)
		p.Record(name, d)
		return d
	}
}

// Record adds a duration to an operation.
func (p *Profiler) Record(name string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tracker, ok := p.operations[name]
	if !ok {
		tracker = &TimeTracker{minTime: d, maxTime: d}
		p.operations[name] = tracker
	}
	tracker.durations = append(tracker.durations, d)
	if len(tracker.durations) > p.maxSamples {
		tracker.durations = tracker.durations[1:]
	}
	tracker.totalTime += d
	tracker.count++
	if d < tracker.minTime {
		tracker.minTime = d
	}
	if d > tracker.maxTime {
		tracker.maxTime = d
	}
}

// Stats returns the statistics of an operation and whether it was recorded.
func (p *Profiler) Stats(name string) (OperationStats, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	tracker, ok := p.operations[name]
	if !ok {
		return OperationStats{}, false
	}
	return tracker.stats(), true
}

// Operations returns the recorded operation names in sorted order.
func (p *Profiler) Operations() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.operations))
	for name := range p.operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset drops every recorded operation.
func (p *Profiler) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.operations = make(map[string]*TimeTracker)
	p.startTime = time.Now()
}

func (t *TimeTracker) stats() OperationStats {
	s := OperationStats{
		Count: t.count,
		Total: t.totalTime,
		Min:   t.minTime,
		Max:   t.maxTime,
	}
	if t.count > 0 {
		s.Mean = t.totalTime / time.Duration(t.count)
	}
	if n := len(t.durations); n > 0 {
		sorted := append([]time.Duration(nil), t.durations...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		if n%2 == 1 {
			s.Median = sorted[n/2]
		} else {
			s.Median = (sorted[n/2-1] + sorted[n/2]) / 2
		}
	}
	return s
}

// WriteReport writes a status report of memory usage and every operation.
func (p *Profiler) WriteReport(w io.Writer) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	p.mu.RLock()
	uptime := time.Since(p.startTime)
	p.mu.RUnlock()

	fmt.Fprintf(w, "PROFILER REPORT - uptime %v\n", uptime.Truncate(time.Millisecond))
	fmt.Fprintf(w, "  Alloc: %s  Heap Objects: %d  GC Cycles: %d\n", formatBytes(mem.Alloc), mem.HeapObjects, mem.NumGC)

	for _, name := range p.Operations() {
		s, _ := p.Stats(name)
		fmt.Fprintf(w, "  %s: count=%d mean=%v min=%v max=%v median=%v\n",
			name, s.Count, s.Mean, s.Min, s.Max, s.Median)
	}
}

// formatBytes formats byte counts in human-readable format.
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
