package genai

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/x448/float16"
)

// Copier moves element ranges between tensors and releases tensors it no
// longer needs. One implementation is chosen per cache, from the allocator's
// memory kind.
type Copier interface {
	// Copy copies n elements from src[srcOff:] to dst[dstOff:]
	Copy(dst, src Tensor, et ElementType, dstOff, srcOff, n int) error

	// Release destroys t once no pending copy can still read it
	Release(t Tensor)
}

func newCopier(kind MemoryKind, stream *Stream) (Copier, error) {
	switch kind {
	case MemoryHost:
		return hostCopier{}, nil
	case MemoryDevice:
		if stream == nil {
			return nil, errors.New("device memory requires an execution stream")
		}
		return &streamCopier{stream: stream}, nil
	default:
		return nil, fmt.Errorf("unknown memory kind %d", kind)
	}
}

// copyRange dispatches on the element type to a typed range copy
func copyRange(dst, src Tensor, et ElementType, dstOff, srcOff, n int) error {
	switch et {
	case Float32:
		return copyElements[float32](dst.Bytes(), src.Bytes(), dstOff, srcOff, n)
	case Float16:
		return copyElements[float16.Float16](dst.Bytes(), src.Bytes(), dstOff, srcOff, n)
	default:
		return fmt.Errorf("%w: %v", ErrUnsupportedElementType, et)
	}
}

func copyElements[T element](dst, src []byte, dstOff, srcOff, n int) error {
	d, s := view[T](dst), view[T](src)
	if srcOff < 0 || dstOff < 0 || srcOff+n > len(s) || dstOff+n > len(d) {
		return fmt.Errorf("copy range out of bounds: src [%d,%d) of %d, dst [%d,%d) of %d",
			srcOff, srcOff+n, len(s), dstOff, dstOff+n, len(d))
	}
	copy(d[dstOff:dstOff+n], s[srcOff:srcOff+n])
	return nil
}

// hostCopier copies synchronously on the calling goroutine
type hostCopier struct{}

func (hostCopier) Copy(dst, src Tensor, et ElementType, dstOff, srcOff, n int) error {
	return copyRange(dst, src, et, dstOff, srcOff, n)
}

func (hostCopier) Release(t Tensor) {
	if err := t.Destroy(); err != nil {
		slog.Warn("failed to destroy tensor", "error", err)
	}
}

// streamCopier issues copies and releases in order on an execution stream.
// Bounds are checked before enqueueing so a queued copy cannot fail.
type streamCopier struct {
	stream *Stream
}

func (c *streamCopier) Copy(dst, src Tensor, et ElementType, dstOff, srcOff, n int) error {
	if !et.Valid() {
		return fmt.Errorf("%w: %v", ErrUnsupportedElementType, et)
	}
	size := et.Size()
	if srcOff < 0 || dstOff < 0 || (srcOff+n)*size > len(src.Bytes()) || (dstOff+n)*size > len(dst.Bytes()) {
		return fmt.Errorf("copy range out of bounds: src [%d,%d), dst [%d,%d)", srcOff, srcOff+n, dstOff, dstOff+n)
	}

	c.stream.Enqueue(func() {
		if err := copyRange(dst, src, et, dstOff, srcOff, n); err != nil {
			slog.Error("stream copy failed", "error", err)
		}
	})
	return nil
}

func (c *streamCopier) Release(t Tensor) {
	c.stream.Enqueue(func() {
		if err := t.Destroy(); err != nil {
			slog.Warn("failed to destroy tensor", "error", err)
		}
	})
}
