// Package inference - shared ONNX Runtime environment and session plumbing.
package inference

import (
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/autolabel-ai/go-autolabel/models/model"
)

// SharedLibEnv overrides the onnxruntime shared library location.
const SharedLibEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

var (
	initOnce sync.Once
	initErr  error
)

// GetSharedLibPath returns the path to the onnxruntime shared library for
// the current platform.
//
// Returns:
//   - string: The path to the shared library.
func GetSharedLibPath() string {
	if p := os.Getenv(SharedLibEnv); p != "" {
		return p
	}
	if runtime.GOOS == "windows" {
		return "./third_party/onnxruntime.dll"
	}
	if runtime.GOOS == "darwin" {
		return "./third_party/libonnxruntime.dylib"
	}
	if runtime.GOARCH == "arm64" {
		return "./third_party/onnxruntime_arm64.so"
	}
	return "./third_party/onnxruntime.so"
}

// Available reports whether the onnxruntime shared library is present. Used
// by the registry to skip families whose backing runtime is missing.
func Available() bool {
	_, err := os.Stat(GetSharedLibPath())
	return err == nil
}

// Initialize loads the onnxruntime native library. Required once per
// process; subsequent calls return the first outcome. A missing shared
// library surfaces as model.ErrMissingDependency so callers can distinguish
// it from a missing model artifact.
func Initialize() error {
	initOnce.Do(func() {
		libPath := GetSharedLibPath()
		if _, err := os.Stat(libPath); os.IsNotExist(err) {
			initErr = errors.Wrapf(model.ErrMissingDependency,
				"onnxruntime shared library not found at %s (set %s)", libPath, SharedLibEnv)
			return
		}

		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			initErr = errors.Wrap(err, "initializing ORT environment")
		}
	})
	return initErr
}
