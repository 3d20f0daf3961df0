package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nvr-ai/go-ml-bench/benchmark"
	"github.com/nvr-ai/go-ml-bench/inference/cache"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Measure the selected cases under the current dispatch ceiling",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		runner := newRunner(cfg)
		report, err := measure(cmd.Context(), runner, cfg)
		if err != nil {
			return err
		}
		if profile, _ := cmd.Flags().GetBool("profile"); profile {
			runner.Profiler().WriteReport(cmd.ErrOrStderr())
		}
		if cfg.Format == FormatJSON {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(report)
		}
		return publish(cmd.Context(), cmd.OutOrStdout(), cfg, report, runner.Stats())
	},
}

func init() {
	addCaseFlags(runCmd)
	runCmd.Flags().String("format", FormatText, "Output format (text, json)")
	runCmd.Flags().Bool("profile", false, "Print preparation and warm-up timings to stderr")
	rootCmd.AddCommand(runCmd)
}

// newRunner builds a runner from the configuration.
func newRunner(cfg Config) *benchmark.Runner {
	warmup := cfg.Warmup
	if warmup == 0 {
		// The runner reads zero as "use the default".
		warmup = -1
	}
	return benchmark.NewRunner(benchmark.NewRunnerArgs{
		Warmup:             warmup,
		Cache:              cache.NewStore(cfg.CacheDir, slog.Default()),
		WeightsDir:         cfg.WeightsDir,
		CalibrationBatches: cfg.CalibrationBatches,
		ONNX:               cfg.ONNX,
		Logger:             slog.Default(),
	})
}

// measure runs every configured case in this process.
func measure(ctx context.Context, runner *benchmark.Runner, cfg Config) (*benchmark.Report, error) {
	cases, err := cfg.Cases()
	if err != nil {
		return nil, err
	}
	return runner.RunReport(ctx, cases)
}

// publish prints the summaries and writes the optional result files, history and metrics.
func publish(ctx context.Context, w io.Writer, cfg Config, report *benchmark.Report, stats benchmark.Stats) error {
	var history *benchmark.History
	if cfg.HistoryDB != "" {
		h, err := benchmark.OpenHistory(cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer h.Close()
		history = h
	}
	exporter := benchmark.NewExporter()

	fmt.Fprintf(w, "Dispatch tier: %s\n", report.Tier)
	for _, m := range report.Models {
		if err := benchmark.Summarize(w, m.Model, m.Results, m.BatchSize); err != nil {
			return errors.Wrapf(err, "summarize %s", m.Model)
		}
		exporter.Observe(m.Model, m.Results)

		if cfg.OutputDir != "" {
			files, err := benchmark.SaveResults(cfg.OutputDir, m.Model, m.Results)
			if err != nil {
				return err
			}
			slog.Info("results saved", "model", m.Model, "files", files)
		}

		if history != nil {
			if err := compareWithHistory(ctx, w, history, m.Model, m.Results); err != nil {
				return err
			}
			runID, err := history.Record(ctx, m.Model, m.Results)
			if err != nil {
				return err
			}
			slog.Debug("run recorded", "model", m.Model, "run_id", runID)
		}
	}

	if cfg.MetricsFile != "" {
		exporter.ObserveStats(stats)
		if err := exporter.WriteTextfile(cfg.MetricsFile); err != nil {
			return err
		}
	}
	return nil
}

// compareWithHistory prints the change against the previous run of the model, if any.
func compareWithHistory(ctx context.Context, w io.Writer, h *benchmark.History, model string, rs *benchmark.ResultSet) error {
	prev, err := h.Latest(ctx, model)
	if errors.Is(err, benchmark.ErrNoHistory) {
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\nChange since the previous %s run:\n", model)
	for _, c := range benchmark.Compare(prev, rs) {
		fmt.Fprintf(w, "  %s\n", c)
	}
	return nil
}
