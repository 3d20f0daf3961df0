package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Forward-pass latency across precisions and acceleration",
	Long: `benchmark loads the bundled networks, prepares them under FP32, BF16 and INT8 with
and without graph acceleration, warms them up and times one forward pass per case.

The instruction-set ceiling is read from ONEDNN_MAX_CPU_ISA once per process. Set it in the
environment or in a .env file; use "compare" to measure a lower ceiling in a child process.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := bindFlags(cmd.Flags()); err != nil {
			return err
		}
		return setupLogger()
	},
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"models":       "models",
	"precisions":   "precisions",
	"engine":       "engine",
	"accelerate":   "accelerate",
	"batch":        "batch_size",
	"warmup":       "warmup",
	"cache-dir":    "cache_dir",
	"output":       "output_dir",
	"weights":      "weights_dir",
	"history":      "history_db",
	"metrics":      "metrics_file",
	"cases":        "cases",
	"format":       "format",
	"log-level":    "log_level",
	"onnx-model":   "onnx.model_path",
	"onnx-library": "onnx.shared_library_path",
	"accelerator":  "onnx.accelerator",
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./gomlbench.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
}

// initConfig reads the .env file, the config file and GOMLBENCH_ variables.
func initConfig() {
	// .env may set ONEDNN_MAX_CPU_ISA, so it is loaded before anything reads the ceiling.
	if err := loadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("gomlbench")
	}

	viper.SetEnvPrefix("GOMLBENCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
	}
}

// loadDotEnv loads .env files; a missing file is not an error.
func loadDotEnv(filenames ...string) error {
	err := godotenv.Load(filenames...)
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	return err
}

// bindFlags binds the flags of the running command. Binding happens per command because
// run and compare share keys.
func bindFlags(flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

func setupLogger() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log_level"))); err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// addCaseFlags registers the flags that select benchmark cases.
func addCaseFlags(cmd *cobra.Command) {
	d := DefaultConfig()
	cmd.Flags().StringSlice("models", d.Models, "Models to measure")
	cmd.Flags().StringSlice("precisions", d.Precisions, "Precisions to measure (fp32, bf16, int8)")
	cmd.Flags().String("engine", d.Engine, "Engine (native, onnx)")
	cmd.Flags().String("accelerate", d.Accelerate, "Acceleration cases to run (off, on, both)")
	cmd.Flags().Int("batch", d.BatchSize, "Batch size")
	cmd.Flags().Int("warmup", d.Warmup, "Untimed forward passes before the timed one")
	cmd.Flags().String("cache-dir", d.CacheDir, "Directory of calibrated int8 artifacts")
	cmd.Flags().String("weights", d.WeightsDir, "Directory of pretrained .npy weights")
	cmd.Flags().String("output", d.OutputDir, "Directory for JSON and CSV results; empty disables")
	cmd.Flags().String("history", d.HistoryDB, "SQLite run history; empty disables")
	cmd.Flags().String("metrics", d.MetricsFile, "Prometheus textfile to write; empty disables")
	cmd.Flags().String("cases", "", "JSON case set to run instead of the precision matrix")
	cmd.Flags().String("onnx-model", "", "ONNX model file for the onnx engine")
	cmd.Flags().String("onnx-library", "", "onnxruntime shared library")
	cmd.Flags().String("accelerator", string(d.ONNX.Accelerator), "Provider for accelerated onnx cases (cpu, openvino)")
}
