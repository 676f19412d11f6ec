// Package envconfig reads runtime settings from environment variables
package envconfig

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Var returns an environment variable with surrounding spaces and quotes removed
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// String returns a getter for a string variable
func String(key string) func() string {
	return func() string {
		return Var(key)
	}
}

// BoolWithDefault returns a getter for a boolean variable. Unparseable values count as true.
func BoolWithDefault(key string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(key); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool returns a getter for a boolean variable that defaults to false
func Bool(key string) func() bool {
	withDefault := BoolWithDefault(key)
	return func() bool {
		return withDefault(false)
	}
}

// LogLevel is Info unless GENAI_DEBUG is set. A true value selects Debug;
// an integer n selects slog.Level(-4n).
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("GENAI_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}
	return level
}

var (
	// OrtLibraryPath is the onnxruntime shared library to load
	OrtLibraryPath = String("ONNXRUNTIME_SHARED_LIBRARY_PATH")

	// ElementType is the default kv cache precision name, e.g. "float16"
	ElementType = String("GENAI_KV_DTYPE")

	// NoProgress disables CLI progress bars
	NoProgress = Bool("GENAI_NOPROGRESS")
)
