// Command benchmark measures forward-pass latency of the bundled networks across precision
// and acceleration settings.
package main

import "github.com/tebeka/atexit"

func main() {
	// atexit runs registered handlers, such as the onnxruntime teardown, before exiting.
	atexit.Exit(Execute())
}
