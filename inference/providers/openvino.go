package providers

import "strconv"

// OpenVINOOptions configures the OpenVINO execution provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
type OpenVINOOptions struct {
	// Overrides the accelerator hardware type at runtime. CPU keeps the benchmark on the same
	// device as the native engine.
	DeviceType string `json:"deviceType" mapstructure:"device_type" yaml:"deviceType"`
	// Overrides the accelerator default number of threads. Zero keeps the provider default.
	NumOfThreads int `json:"numOfThreads" mapstructure:"num_of_threads" yaml:"numOfThreads"`
	// Overrides the accelerator default streams. Zero keeps the provider default.
	NumStreams int `json:"numStreams" mapstructure:"num_streams" yaml:"numStreams"`
	// Rewrites dynamic shaped models to static shape at runtime.
	DisableDynamicShapes bool `json:"disableDynamicShapes" mapstructure:"disable_dynamic_shapes" yaml:"disableDynamicShapes"`
}

// DefaultOpenVINOOptions targets the CPU device.
func DefaultOpenVINOOptions() OpenVINOOptions {
	return OpenVINOOptions{DeviceType: "CPU"}
}

// ToMap converts the options into the provider option map, leaving out unset values.
func (o OpenVINOOptions) ToMap() map[string]string {
	out := map[string]string{
		"disable_dynamic_shapes": strconv.FormatBool(o.DisableDynamicShapes),
	}
	if o.DeviceType != "" {
		out["device_type"] = o.DeviceType
	}
	if o.NumOfThreads > 0 {
		out["num_of_threads"] = strconv.Itoa(o.NumOfThreads)
	}
	if o.NumStreams > 0 {
		out["num_streams"] = strconv.Itoa(o.NumStreams)
	}
	return out
}
