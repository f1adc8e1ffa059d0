package vision

import (
	"fmt"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"
)

// LibraryPath returns the ONNX Runtime shared library name for this OS.
func LibraryPath() string {
	switch runtime.GOOS {
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}

// InitRuntime loads the ONNX Runtime library. An empty path uses LibraryPath.
func InitRuntime(libPath string) error {
	if libPath == "" {
		libPath = LibraryPath()
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnx runtime: %w", err)
	}
	return nil
}

// ShutdownRuntime releases the ONNX Runtime environment.
func ShutdownRuntime() {
	_ = ort.DestroyEnvironment()
}
