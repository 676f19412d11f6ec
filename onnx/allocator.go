package onnx

import (
	"errors"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/xiaozhiob/onnxruntime-genai/genai"
)

// ErrZeroLengthBinding is returned when a tensor with a zero dimension is bound
// to a session. onnxruntime_go rejects dimensions <= 0, so such tensors exist
// only on the Go side.
var ErrZeroLengthBinding = errors.New("zero-length tensor cannot be bound to onnxruntime")

// Allocator creates cache tensors as onnxruntime values so they can be bound
// directly to session inputs and outputs. onnxruntime_go keeps tensor data in
// Go memory, so the allocator reports host residency.
type Allocator struct{}

// NewAllocator initializes the runtime and returns an allocator
func NewAllocator() (*Allocator, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	return &Allocator{}, nil
}

// MemoryKind reports host memory
func (a *Allocator) MemoryKind() genai.MemoryKind {
	return genai.MemoryHost
}

// CreateTensor allocates a zero-filled onnxruntime tensor
func (a *Allocator) CreateTensor(shape genai.Shape, et genai.ElementType) (genai.Tensor, error) {
	var dataType ort.TensorElementDataType
	switch et {
	case genai.Float32:
		dataType = ort.TensorElementDataTypeFloat
	case genai.Float16:
		dataType = ort.TensorElementDataTypeFloat16
	default:
		return nil, fmt.Errorf("%w: %v", genai.ErrUnsupportedElementType, et)
	}

	empty := false
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("negative dimension in shape %v", shape)
		}
		if d == 0 {
			empty = true
		}
	}

	// the cache's initial past placeholder has a zero sequence dimension,
	// which onnxruntime cannot represent
	if empty {
		return &Tensor{shape: shape.Clone(), et: et, data: []byte{}}, nil
	}

	buf := make([]byte, shape.Elements()*et.Size())
	value, err := ort.NewCustomDataTensor(ort.Shape(shape.Clone()), buf, dataType)
	if err != nil {
		return nil, fmt.Errorf("failed to create %v tensor %v: %w", et, shape, err)
	}

	return &Tensor{
		value: value,
		shape: shape.Clone(),
		et:    et,
		data:  buf,
	}, nil
}

// Tensor is a cache tensor backed by an onnxruntime value. Tensors with a
// zero dimension carry no value.
type Tensor struct {
	value     *ort.CustomDataTensor
	shape     genai.Shape
	et        genai.ElementType
	data      []byte
	destroyed bool
}

func (t *Tensor) Shape() genai.Shape             { return t.shape }
func (t *Tensor) ElementType() genai.ElementType { return t.et }
func (t *Tensor) Bytes() []byte                  { return t.data }

// Value returns the onnxruntime value for session binding, or nil for a
// zero-length tensor
func (t *Tensor) Value() ort.Value {
	if t.value == nil {
		return nil
	}
	return t.value
}

// Destroy releases the onnxruntime value
func (t *Tensor) Destroy() error {
	if t.destroyed {
		return fmt.Errorf("tensor %v already destroyed", t.shape)
	}
	t.destroyed = true
	t.data = nil
	if t.value == nil {
		return nil
	}
	err := t.value.Destroy()
	t.value = nil
	return err
}

// valueOf unwraps a cache tensor for binding
func valueOf(b genai.Binding) (ort.Value, error) {
	t, ok := b.Tensor.(*Tensor)
	if !ok {
		return nil, fmt.Errorf("binding %s: tensor %T was not created by the onnx allocator", b.Name, b.Tensor)
	}
	if t.destroyed {
		return nil, fmt.Errorf("binding %s: tensor already destroyed", b.Name)
	}
	if t.value == nil {
		return nil, fmt.Errorf("binding %s %v: %w", b.Name, t.shape, ErrZeroLengthBinding)
	}
	return t.value, nil
}
