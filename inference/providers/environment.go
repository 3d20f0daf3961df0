// Package providers - onnxruntime backed engine for user supplied ONNX models.
package providers

import (
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"github.com/tebeka/atexit"
	ort "github.com/yalue/onnxruntime_go"
)

// SharedLibraryEnvVar overrides the onnxruntime shared library location.
const SharedLibraryEnvVar = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

var (
	envOnce sync.Once
	envErr  error
)

// SharedLibPath returns the onnxruntime shared library to load.
//
// Arguments:
//   - configured: An explicit path; empty to fall back to the environment and then the
//     platform default.
//
// Returns:
//   - string: The path to the shared library.
func SharedLibPath(configured string) string {
	if configured != "" {
		return configured
	}
	if fromEnv := os.Getenv(SharedLibraryEnvVar); fromEnv != "" {
		return fromEnv
	}
	switch runtime.GOOS {
	case "windows":
		return "./third_party/onnxruntime.dll"
	case "darwin":
		return "./third_party/libonnxruntime.1.21.0.dylib"
	default:
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so"
		}
		return "./third_party/onnxruntime.so"
	}
}

// InitializeEnvironment loads the shared library and initializes the onnxruntime environment.
// Only the first call has an effect; the environment is destroyed when the process exits
// through atexit.
func InitializeEnvironment(libPath string) error {
	envOnce.Do(func() {
		if _, err := os.Stat(libPath); err != nil {
			envErr = errors.Wrapf(err, "onnxruntime library not found at %s", libPath)
			return
		}
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			envErr = errors.Wrap(err, "initialize onnxruntime environment")
			return
		}
		atexit.Register(func() {
			if err := ort.DestroyEnvironment(); err != nil {
				slog.Warn("destroy onnxruntime environment", "error", err)
			}
		})
	})
	return envErr
}
