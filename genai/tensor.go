package genai

import (
	"fmt"
	"unsafe"

	"github.com/cespare/xxhash/v2"
	"github.com/x448/float16"
)

// Tensor is a contiguous buffer of one element type
//
// Bytes exposes the raw element storage. For device resident tensors the
// contents are only meaningful after the owning stream has been synchronized.
type Tensor interface {
	Shape() Shape
	ElementType() ElementType
	Bytes() []byte
	Destroy() error
}

// Allocator creates tensors and reports where it places them
type Allocator interface {
	CreateTensor(shape Shape, et ElementType) (Tensor, error)
	MemoryKind() MemoryKind
}

// element is the set of Go types a cache tensor can be viewed as
type element interface {
	float32 | float16.Float16
}

// view reinterprets raw tensor storage as a typed slice
func view[T element](b []byte) []T {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if len(b) < size {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), len(b)/size)
}

// bytesOf returns the raw storage backing a typed slice
func bytesOf[T element](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*int(unsafe.Sizeof(zero)))
}

// HostAllocator creates zero-filled tensors on the Go heap
type HostAllocator struct{}

// NewHostAllocator creates a new host allocator
func NewHostAllocator() *HostAllocator {
	return &HostAllocator{}
}

// CreateTensor allocates a host tensor
func (a *HostAllocator) CreateTensor(shape Shape, et ElementType) (Tensor, error) {
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("negative dimension in shape %v", shape)
		}
	}

	n := shape.Elements()
	t := &HostTensor{shape: shape.Clone(), et: et}
	switch et {
	case Float32:
		t.data = bytesOf(make([]float32, n))
	case Float16:
		t.data = bytesOf(make([]float16.Float16, n))
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedElementType, et)
	}
	return t, nil
}

// MemoryKind reports host memory
func (a *HostAllocator) MemoryKind() MemoryKind {
	return MemoryHost
}

// HostTensor is a tensor backed by Go memory
type HostTensor struct {
	shape     Shape
	et        ElementType
	data      []byte
	destroyed bool
}

func (t *HostTensor) Shape() Shape             { return t.shape }
func (t *HostTensor) ElementType() ElementType { return t.et }
func (t *HostTensor) Bytes() []byte            { return t.data }

// Destroy drops the backing storage
func (t *HostTensor) Destroy() error {
	if t.destroyed {
		return fmt.Errorf("tensor %v already destroyed", t.shape)
	}
	t.destroyed = true
	t.data = nil
	return nil
}

// Destroyed reports whether Destroy has been called
func (t *HostTensor) Destroyed() bool {
	return t.destroyed
}

// Float32s returns the tensor contents widened to float32
func Float32s(t Tensor) ([]float32, error) {
	switch t.ElementType() {
	case Float32:
		src := view[float32](t.Bytes())
		out := make([]float32, len(src))
		copy(out, src)
		return out, nil
	case Float16:
		src := view[float16.Float16](t.Bytes())
		out := make([]float32, len(src))
		for i, v := range src {
			out[i] = v.Float32()
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedElementType, t.ElementType())
	}
}

// SetFloat32s writes vals into the tensor, narrowing to float16 when needed
func SetFloat32s(t Tensor, vals []float32) error {
	n := t.Shape().Elements()
	if len(vals) != n {
		return fmt.Errorf("value count %d does not match tensor size %d", len(vals), n)
	}

	switch t.ElementType() {
	case Float32:
		copy(view[float32](t.Bytes()), vals)
	case Float16:
		dst := view[float16.Float16](t.Bytes())
		for i, v := range vals {
			dst[i] = float16.Fromfloat32(v)
		}
	default:
		return fmt.Errorf("%w: %v", ErrUnsupportedElementType, t.ElementType())
	}
	return nil
}

// Digest fingerprints the raw contents of a tensor
func Digest(t Tensor) uint64 {
	return xxhash.Sum64(t.Bytes())
}
