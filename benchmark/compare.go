package benchmark

import "fmt"

// Comparison relates one label across two runs.
type Comparison struct {
	Label string
	// SecondsDiff is the percentage change from Prev to Curr; negative is faster.
	SecondsDiff float64
	Prev        Result
	Curr        Result
}

// Compare returns a comparison for every label present in both runs, in curr's order.
func Compare(prev, curr *ResultSet) []Comparison {
	var comparisons []Comparison
	for _, c := range curr.Results() {
		p, ok := prev.Get(c.Label)
		if !ok {
			continue
		}
		comp := Comparison{Label: c.Label, Prev: p, Curr: c}
		if p.Seconds > 0 {
			comp.SecondsDiff = (c.Seconds - p.Seconds) / p.Seconds * 100
		}
		comparisons = append(comparisons, comp)
	}
	return comparisons
}

// Regressed reports whether the entry slowed down by more than threshold percent.
func (c Comparison) Regressed(threshold float64) bool {
	return c.SecondsDiff > threshold
}

func (c Comparison) String() string {
	return fmt.Sprintf("%s: %+.2f%% (%.6fs -> %.6fs)", c.Label, c.SecondsDiff, c.Prev.Seconds, c.Curr.Seconds)
}
