package genai

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedElementType is returned for any element type other than Float32 or Float16
	ErrUnsupportedElementType = errors.New("unsupported element type")

	// ErrInvalidBeamIndices is returned when a beam index mapping has the wrong length or an out-of-range entry
	ErrInvalidBeamIndices = errors.New("invalid beam indices")

	// ErrAllocation wraps allocator failures
	ErrAllocation = errors.New("tensor allocation failed")

	// ErrInvalidConfig is returned by CacheConfig.Validate
	ErrInvalidConfig = errors.New("invalid cache config")

	// ErrClosed is returned when a closed cache is used
	ErrClosed = errors.New("kv cache is closed")
)

// ElementType is the storage precision of cache tensors
type ElementType int

const (
	ElementTypeUnknown ElementType = iota
	Float32
	Float16
)

// Size returns the number of bytes per element, or 0 for unsupported types
func (e ElementType) Size() int {
	switch e {
	case Float32:
		return 4
	case Float16:
		return 2
	default:
		return 0
	}
}

// Valid reports whether the element type is one the cache can store
func (e ElementType) Valid() bool {
	return e == Float32 || e == Float16
}

func (e ElementType) String() string {
	switch e {
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	default:
		return fmt.Sprintf("ElementType(%d)", int(e))
	}
}

// ParseElementType parses names like "float32", "fp16" or "f16"
func ParseElementType(s string) (ElementType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "float32", "fp32", "f32":
		return Float32, nil
	case "float16", "fp16", "f16", "half":
		return Float16, nil
	default:
		return ElementTypeUnknown, fmt.Errorf("%w: %q", ErrUnsupportedElementType, s)
	}
}

// MemoryKind is where an allocator places tensor storage
type MemoryKind int

const (
	MemoryHost MemoryKind = iota
	MemoryDevice
)

func (m MemoryKind) String() string {
	if m == MemoryDevice {
		return "device"
	}
	return "host"
}

// Shape is an ordered tuple of tensor dimensions
type Shape []int64

// Elements returns the number of elements described by the shape.
// A rank-0 shape describes a scalar.
func (s Shape) Elements() int {
	n := int64(1)
	for _, d := range s {
		n *= d
	}
	return int(n)
}

// Clone returns a copy that does not share storage with s
func (s Shape) Clone() Shape {
	c := make(Shape, len(s))
	copy(c, s)
	return c
}

// WithDim returns a copy of s with dimension axis set to v
func (s Shape) WithDim(axis int, v int64) Shape {
	c := s.Clone()
	c[axis] = v
	return c
}

// Equal reports whether two shapes have identical dimensions
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}
