package benchmark

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// barWidth is the length of the longest bar in a chart.
const barWidth = 40

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle    = lipgloss.NewStyle().Width(16)
	timeBarStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	speedBarStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	baseBarStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// Summarize prints one line per entry and two bar charts: absolute time and speedup over
// the baseline.
//
// Arguments:
//   - w: The destination.
//   - label: The heading, usually the model identifier.
//   - rs: The results.
//   - batchSize: The samples per forward pass, for throughput.
//
// Returns:
//   - error: ErrMissingBaseline before anything is written, or a write error.
func Summarize(w io.Writer, label string, rs *ResultSet, batchSize int) error {
	speedups, err := rs.Speedups()
	if err != nil {
		return err
	}
	if batchSize < 1 {
		batchSize = 1
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s (batch %d)", label, batchSize)))
	b.WriteString("\n")
	for _, r := range rs.Results() {
		throughput := 0.0
		if r.Seconds > 0 {
			throughput = float64(batchSize) / r.Seconds
		}
		fmt.Fprintf(&b, "%s %10.6f s %10.3f ms %12.1f samples/s", labelStyle.Render(r.Label), r.Seconds, r.Seconds*1e3, throughput)
		if r.Emulated {
			b.WriteString("  (emulated)")
		}
		b.WriteString("\n")
	}

	results := rs.Results()
	times := make([]float64, len(results))
	for i, r := range results {
		times[i] = r.Seconds * 1e3
	}
	b.WriteString("\n")
	b.WriteString(titleStyle.Render("time (ms)"))
	b.WriteString("\n")
	for i, r := range results {
		style := timeBarStyle
		if r.Label == rs.Baseline() {
			style = baseBarStyle
		}
		writeBar(&b, r.Label, times[i], maxOf(times), style, "%.3f")
	}

	ratios := make([]float64, len(speedups)+1)
	ratios[0] = 1
	for i, s := range speedups {
		ratios[i+1] = s.Ratio
	}
	b.WriteString("\n")
	b.WriteString(titleStyle.Render(fmt.Sprintf("speedup vs %s", rs.Baseline())))
	b.WriteString("\n")
	writeBar(&b, rs.Baseline(), 1, maxOf(ratios), baseBarStyle, "%.2fx")
	for _, s := range speedups {
		writeBar(&b, s.Label, s.Ratio, maxOf(ratios), speedBarStyle, "%.2fx")
	}

	_, err = io.WriteString(w, b.String())
	return err
}

func writeBar(b *strings.Builder, label string, value, limit float64, style lipgloss.Style, format string) {
	n := 0
	switch {
	case math.IsInf(value, 1):
		n = barWidth
	case limit > 0:
		n = int(math.Round(value / limit * barWidth))
	}
	if n < 1 && value > 0 {
		n = 1
	}
	fmt.Fprintf(b, "%s %s %s\n", labelStyle.Render(label), style.Render(strings.Repeat("█", n)), fmt.Sprintf(format, value))
}

func maxOf(xs []float64) float64 {
	m := 0.0
	for _, x := range xs {
		if x > m && !math.IsInf(x, 1) {
			m = x
		}
	}
	return m
}
