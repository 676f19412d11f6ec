package onnx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/xiaozhiob/onnxruntime-genai/envconfig"
	"github.com/xiaozhiob/onnxruntime-genai/genai"
)

func newTestAllocator(t *testing.T) *Allocator {
	t.Helper()
	if envconfig.OrtLibraryPath() == "" {
		t.Skip("ONNXRUNTIME_SHARED_LIBRARY_PATH not set")
	}
	alloc, err := NewAllocator()
	require.NoError(t, err)
	return alloc
}

// shapeRecorder records every shape a cache asks for
type shapeRecorder struct {
	genai.Allocator
	shapes []genai.Shape
}

func (r *shapeRecorder) CreateTensor(shape genai.Shape, et genai.ElementType) (genai.Tensor, error) {
	r.shapes = append(r.shapes, shape.Clone())
	return r.Allocator.CreateTensor(shape, et)
}

func TestCacheShapesAreRepresentable(t *testing.T) {
	for _, layout := range []genai.Layout{genai.LayoutSplit, genai.LayoutCombined} {
		t.Run(layout.String(), func(t *testing.T) {
			rec := &shapeRecorder{Allocator: genai.NewHostAllocator()}
			cache, err := genai.NewKVCache(genai.NewCacheConfig(
				genai.WithNumLayers(2),
				genai.WithNumBeams(3),
				genai.WithLayout(layout),
			), rec, nil)
			require.NoError(t, err)
			slots := cache.Len()
			require.NoError(t, cache.Advance(nil, 4))
			require.NoError(t, cache.Advance([]int32{1, 1, 0}, 5))
			require.NoError(t, cache.Close())

			zeroLength := 0
			for _, s := range rec.shapes {
				if s.Elements() > 0 {
					assert.NoError(t, ort.Shape(s).Validate(), "shape %v", s)
					continue
				}

				// onnxruntime rejects zero dimensions, so the allocator must
				// handle these without creating a value
				zeroLength++
				assert.Error(t, ort.Shape(s).Validate(), "shape %v", s)
				tensor, err := (&Allocator{}).CreateTensor(s, genai.Float16)
				require.NoError(t, err, "shape %v", s)
				assert.Equal(t, s, tensor.Shape())
				assert.Empty(t, tensor.Bytes())
				assert.Nil(t, tensor.(*Tensor).Value())
				require.NoError(t, tensor.Destroy())
				assert.Error(t, tensor.Destroy())
			}
			// the past placeholder and the presents of a zero-length prompt
			assert.Equal(t, 1+slots, zeroLength)
		})
	}
}

func TestAllocatorCreateTensor(t *testing.T) {
	alloc := newTestAllocator(t)
	assert.Equal(t, genai.MemoryHost, alloc.MemoryKind())

	for _, et := range []genai.ElementType{genai.Float32, genai.Float16} {
		t.Run(et.String(), func(t *testing.T) {
			tensor, err := alloc.CreateTensor(genai.Shape{2, 3, 4}, et)
			require.NoError(t, err)
			assert.Equal(t, genai.Shape{2, 3, 4}, tensor.Shape())
			assert.Equal(t, et, tensor.ElementType())
			assert.Len(t, tensor.Bytes(), 24*et.Size())
			assert.NotNil(t, tensor.(*Tensor).Value())

			require.NoError(t, tensor.Destroy())
			assert.Error(t, tensor.Destroy())
		})
	}

	empty, err := alloc.CreateTensor(genai.Shape{1, 2, 0, 4}, genai.Float16)
	require.NoError(t, err)
	assert.Empty(t, empty.Bytes())
	assert.Nil(t, empty.(*Tensor).Value())
	require.NoError(t, empty.Destroy())

	_, err = alloc.CreateTensor(genai.Shape{2}, genai.ElementTypeUnknown)
	assert.ErrorIs(t, err, genai.ErrUnsupportedElementType)
}

func TestAllocatorBackedReorder(t *testing.T) {
	alloc := newTestAllocator(t)

	cfg := genai.NewCacheConfig(
		genai.WithNumLayers(2),
		genai.WithNumHeads(2),
		genai.WithHeadDim(4),
		genai.WithNumBeams(3),
		genai.WithSequenceLength(2),
		genai.WithElementType(genai.Float16),
		genai.WithLayout(genai.LayoutCombined),
	)
	cache, err := genai.NewKVCache(cfg, alloc, nil)
	require.NoError(t, err)
	defer cache.Close()

	// slot j of each half holds 10*half + j
	for i := 0; i < cache.Len(); i++ {
		present := cache.Present(i)
		vals := make([]float32, present.Shape().Elements())
		block := len(vals) / 6
		for k := range vals {
			vals[k] = float32(10*(k/(3*block)) + (k/block)%3)
		}
		require.NoError(t, genai.SetFloat32s(present, vals))
	}

	require.NoError(t, cache.Advance([]int32{2, 2, 0}, 3))

	want := []float32{2, 2, 0, 12, 12, 10}
	for i := 0; i < cache.Len(); i++ {
		got, err := genai.Float32s(cache.Past(i))
		require.NoError(t, err)
		block := len(got) / 6
		for k, v := range got {
			require.Equal(t, want[k/block], v, "layer %d element %d", i, k)
		}
		assert.Equal(t, genai.Shape{2, 3, 2, 3, 4}, cache.Present(i).Shape())
	}
}
