package providers

import (
	"runtime"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// OptimizationConfig contains the onnxruntime session settings.
type OptimizationConfig struct {
	// GraphOptimizationLevel controls the level of graph optimization
	GraphOptimizationLevel ort.GraphOptimizationLevel `json:"graph_optimization_level"`

	// EnableMemoryPattern enables memory pattern optimization
	EnableMemoryPattern bool `json:"enable_memory_pattern"`

	// EnableCPUMemArena enables CPU memory arena for better memory management
	EnableCPUMemArena bool `json:"enable_cpu_mem_arena"`

	// ExecutionMode controls sequential vs parallel execution
	ExecutionMode ort.ExecutionMode `json:"execution_mode"`

	// IntraOpNumThreads sets threads for parallelizing ops
	IntraOpNumThreads int `json:"intra_op_num_threads"`

	// InterOpNumThreads sets threads for parallelizing independent ops
	InterOpNumThreads int `json:"inter_op_num_threads"`
}

// DefaultOptimizationConfig returns the session settings for a benchmark case.
//
// Unaccelerated sessions run the graph as exported; accelerated sessions enable every graph
// rewrite onnxruntime offers. Both run sequentially so a single forward pass is timed in
// isolation.
//
// Arguments:
//   - accelerate: Whether the case runs with acceleration.
//
// Returns:
//   - OptimizationConfig: The session settings.
func DefaultOptimizationConfig(accelerate bool) OptimizationConfig {
	config := OptimizationConfig{
		GraphOptimizationLevel: ort.GraphOptimizationLevelDisableAll,
		EnableMemoryPattern:    true,
		EnableCPUMemArena:      true,
		ExecutionMode:          ort.ExecutionModeSequential,
		IntraOpNumThreads:      maxInt(1, runtime.NumCPU()/2),
		InterOpNumThreads:      1,
	}
	if accelerate {
		config.GraphOptimizationLevel = ort.GraphOptimizationLevelEnableAll
	}
	return config
}

// OptimizedSessionOptions creates session options from the configuration.
//
// Returns:
//   - *ort.SessionOptions: Configured session options; the caller destroys them.
//   - error: An error if an option is rejected.
func OptimizedSessionOptions(config OptimizationConfig) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "create session options")
	}

	steps := []struct {
		name string
		set  func() error
	}{
		{"graph optimization level", func() error { return options.SetGraphOptimizationLevel(config.GraphOptimizationLevel) }},
		{"execution mode", func() error { return options.SetExecutionMode(config.ExecutionMode) }},
		{"intra-op threads", func() error { return options.SetIntraOpNumThreads(config.IntraOpNumThreads) }},
		{"inter-op threads", func() error { return options.SetInterOpNumThreads(config.InterOpNumThreads) }},
		{"memory pattern", func() error { return options.SetMemPattern(config.EnableMemoryPattern) }},
		{"cpu memory arena", func() error { return options.SetCpuMemArena(config.EnableCPUMemArena) }},
	}
	for _, step := range steps {
		if err := step.set(); err != nil {
			options.Destroy()
			return nil, errors.Wrapf(err, "set %s", step.name)
		}
	}
	return options, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
