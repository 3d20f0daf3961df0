package main

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nvr-ai/go-ml-bench/benchmark"
	"github.com/nvr-ai/go-ml-bench/inference/isa"
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Measure the cases here and again in a child process under a lower dispatch ceiling",
	Long: `compare runs the selected cases under the current ceiling, then re-runs them in a child
process started with ONEDNN_MAX_CPU_ISA set to --tier. The ceiling is fixed for the lifetime
of a process, so the child is the only way to measure another tier. Child results are merged
with an @<tier> suffix and summarized against the in-process baseline.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		raw, _ := cmd.Flags().GetString("tier")
		tier, err := isa.ParseTier(raw)
		if err != nil {
			return err
		}
		if current := isa.Effective(); tier >= current {
			slog.Warn("child ceiling is not below the current tier", "tier", tier.String(), "current", current.String())
		}

		cases, err := cfg.Cases()
		if err != nil {
			return err
		}
		report, err := newRunner(cfg).RunReport(cmd.Context(), cases)
		if err != nil {
			return err
		}

		child := &benchmark.IsolatedRunner{
			Args:    childArgs(cfg),
			RunArgs: childRunArgs(cfg),
			Logger:  slog.Default(),
		}
		isolated, err := child.Run(cmd.Context(), tier, cases)
		if err != nil {
			return err
		}
		report.Merge(isolated, benchmark.TierSuffix(tier))

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Dispatch tiers: %s (in process), %s (child)\n", report.Tier, isolated.Tier)
		for _, m := range report.Models {
			if err := benchmark.Summarize(w, m.Model, m.Results, m.BatchSize); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	addCaseFlags(compareCmd)
	compareCmd.Flags().String("tier", isa.TierAVX2.String(), "Dispatch ceiling of the child process")
	rootCmd.AddCommand(compareCmd)
}

// childArgs forwards the root flags to the child process.
func childArgs(cfg Config) []string {
	args := []string{"--log-level", cfg.LogLevel}
	if cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	return args
}

// childRunArgs forwards the settings that shape preparation and timing. Cases travel in a
// file, and the child writes no results of its own.
func childRunArgs(cfg Config) []string {
	return []string{
		"--warmup", strconv.Itoa(cfg.Warmup),
		"--cache-dir", cfg.CacheDir,
		"--weights", cfg.WeightsDir,
		"--onnx-model", cfg.ONNX.ModelPath,
		"--onnx-library", cfg.ONNX.SharedLibraryPath,
		"--accelerator", string(cfg.ONNX.Accelerator),
		"--output", "",
		"--history", "",
		"--metrics", "",
	}
}
