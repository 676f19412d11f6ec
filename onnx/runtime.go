// Package onnx binds the kv cache to ONNX Runtime through onnxruntime_go
package onnx

import (
	"fmt"
	"log/slog"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/xiaozhiob/onnxruntime-genai/envconfig"
)

var (
	initOnce sync.Once
	initErr  error
)

// Init loads the onnxruntime shared library once per process. The library
// path comes from ONNXRUNTIME_SHARED_LIBRARY_PATH when set.
func Init() error {
	initOnce.Do(func() {
		if ort.IsInitialized() {
			return
		}
		if path := envconfig.OrtLibraryPath(); path != "" {
			ort.SetSharedLibraryPath(path)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			initErr = fmt.Errorf("failed to initialize ONNX runtime: %w", err)
			return
		}
		slog.Debug("onnx runtime initialized", "library", envconfig.OrtLibraryPath())
	})
	return initErr
}

// Shutdown releases the onnxruntime environment
func Shutdown() error {
	return ort.DestroyEnvironment()
}
