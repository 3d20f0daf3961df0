package benchmark

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-ml-bench/inference/isa"
)

// IsolatedRunner measures cases in a child process started under a different dispatch
// ceiling. The ceiling is fixed once per process, so a lower tier needs a fresh process.
type IsolatedRunner struct {
	// Executable is the benchmark binary; the running executable when empty.
	Executable string
	// Args precede the "run" subcommand, e.g. a --config flag.
	Args []string
	// RunArgs follow the "run" subcommand.
	RunArgs []string
	Logger  *slog.Logger
}

// Run executes the cases in a child process with the dispatch ceiling set to tier and
// decodes its JSON results.
//
// Arguments:
//   - ctx: The context; cancelling it kills the child.
//   - tier: The child's dispatch ceiling.
//   - cases: The cases to run.
//
// Returns:
//   - *Report: The child's results.
//   - error: An error if the child fails or prints something other than a report.
func (r *IsolatedRunner) Run(ctx context.Context, tier isa.Tier, cases []Case) (*Report, error) {
	exe := r.Executable
	if exe == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, errors.Wrap(err, "locate benchmark executable")
		}
		exe = self
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dir, err := os.MkdirTemp("", "gomlbench-")
	if err != nil {
		return nil, errors.Wrap(err, "create case directory")
	}
	defer os.RemoveAll(dir)
	casesFile := filepath.Join(dir, "cases.json")
	if err := SaveCaseSet(&CaseSet{Name: "isolated", Cases: cases}, casesFile); err != nil {
		return nil, err
	}

	args := append([]string(nil), r.Args...)
	args = append(args, "run", "--format", "json", "--cases", casesFile)
	args = append(args, r.RunArgs...)

	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Env = isa.Environ(tier)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = os.Stderr

	logger.Info("starting isolated run", "tier", tier.String(), "cases", len(cases))
	if err := cmd.Run(); err != nil {
		return nil, errors.Wrapf(err, "isolated run at %s", tier)
	}

	var report Report
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		return nil, errors.Wrapf(err, "decode isolated results at %s", tier)
	}
	for _, m := range report.Models {
		if m.Results == nil {
			return nil, errors.Errorf("isolated run at %s returned no results for %s", tier, m.Model)
		}
	}
	return &report, nil
}

// TierSuffix is the label suffix for results measured under a ceiling.
func TierSuffix(tier isa.Tier) string {
	return "@" + tier.String()
}
