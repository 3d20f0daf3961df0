package benchmark

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// SaveResults persists a result set as detailed JSON and a summary CSV.
//
// Arguments:
//   - dir: The output directory, created if needed.
//   - model: The model identifier used in file names.
//   - rs: The results.
//
// Returns:
//   - []string: The written files, JSON first.
//   - error: An error if a file cannot be written.
func SaveResults(dir, model string, rs *ResultSet) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create output directory")
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	resultsFile := filepath.Join(dir, fmt.Sprintf("benchmark_results_%s_%s.json", model, timestamp))
	data, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshal results")
	}
	if err := os.WriteFile(resultsFile, data, 0o644); err != nil {
		return nil, errors.Wrap(err, "write results file")
	}

	summaryFile := filepath.Join(dir, fmt.Sprintf("benchmark_summary_%s_%s.csv", model, timestamp))
	if err := saveSummaryCSV(summaryFile, rs); err != nil {
		return nil, errors.Wrap(err, "save summary CSV")
	}
	return []string{resultsFile, summaryFile}, nil
}

func saveSummaryCSV(filename string, rs *ResultSet) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	speedup := map[string]float64{rs.Baseline(): 1}
	if speedups, err := rs.Speedups(); err == nil {
		for _, s := range speedups {
			speedup[s.Label] = s.Ratio
		}
	}

	w := csv.NewWriter(file)
	header := []string{"Label", "Model", "Engine", "Precision", "Accelerated", "Batch", "Seconds", "Milliseconds", "Speedup", "Tier", "Emulated", "Cache_Hit", "Alloc_MB", "Prepare_MS", "Prediction"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range rs.Results() {
		ratio := ""
		if s, ok := speedup[r.Label]; ok {
			ratio = strconv.FormatFloat(s, 'f', 4, 64)
		}
		row := []string{
			r.Label,
			r.Case.Model,
			string(r.Case.Engine),
			string(r.Case.Precision),
			strconv.FormatBool(r.Case.Accelerate),
			strconv.Itoa(r.Case.BatchSize),
			strconv.FormatFloat(r.Seconds, 'f', 9, 64),
			strconv.FormatFloat(r.Seconds*1e3, 'f', 4, 64),
			ratio,
			r.Tier,
			strconv.FormatBool(r.Emulated),
			strconv.FormatBool(r.CacheHit),
			strconv.FormatFloat(float64(r.Memory.AllocBytes)/(1024*1024), 'f', 2, 64),
			strconv.FormatFloat(float64(r.Prepare)/float64(time.Millisecond), 'f', 3, 64),
			r.Prediction,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
