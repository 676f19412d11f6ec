package genai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseElementType(t *testing.T) {
	cases := map[string]ElementType{
		"float32": Float32,
		"FP32":    Float32,
		"float16": Float16,
		" fp16 ":  Float16,
		"half":    Float16,
	}
	for in, want := range cases {
		got, err := ParseElementType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"bfloat16", "int8", ""} {
		_, err := ParseElementType(in)
		assert.ErrorIs(t, err, ErrUnsupportedElementType, in)
	}
}

func TestElementTypeSize(t *testing.T) {
	assert.Equal(t, 4, Float32.Size())
	assert.Equal(t, 2, Float16.Size())
	assert.Equal(t, 0, ElementType(9).Size())
	assert.False(t, ElementTypeUnknown.Valid())
}

func TestShape(t *testing.T) {
	s := Shape{2, 3, 0, 4}
	assert.Equal(t, 0, s.Elements())
	assert.Equal(t, 24, s.WithDim(2, 1).Elements())
	assert.Equal(t, Shape{2, 3, 0, 4}, s, "WithDim must not modify the receiver")
	assert.True(t, s.Equal(s.Clone()))
	assert.False(t, s.Equal(Shape{2, 3, 0}))
	assert.Equal(t, 1, Shape{}.Elements())
	assert.Equal(t, 1, Shape(nil).Elements())
}

func TestNames(t *testing.T) {
	assert.Equal(t, "past_key_values.3.key", PastName(LayoutSplit, 3, 0))
	assert.Equal(t, "past_key_values.3.value", PastName(LayoutSplit, 3, 1))
	assert.Equal(t, "past_key_values.12.kv", PastName(LayoutCombined, 12, 0))
	assert.Equal(t, "present.12.kv", PresentName(LayoutCombined, 12, 0))
	assert.Equal(t, "present.0.value", PresentNameFor("past_key_values.0.value"))
	assert.Equal(t, "input_ids", PresentNameFor("input_ids"))

	in, out := bindingNames(LayoutCombined, 3)
	assert.Equal(t, []string{"past_key_values.0.kv", "past_key_values.1.kv", "past_key_values.2.kv"}, in)
	assert.Equal(t, []string{"present.0.kv", "present.1.kv", "present.2.kv"}, out)
}

func TestParseLayout(t *testing.T) {
	l, err := ParseLayout("combined")
	require.NoError(t, err)
	assert.Equal(t, LayoutCombined, l)

	l, err = ParseLayout("split")
	require.NoError(t, err)
	assert.Equal(t, LayoutSplit, l)

	_, err = ParseLayout("paged")
	assert.Error(t, err)
}

func TestCacheConfigValidate(t *testing.T) {
	assert.NoError(t, NewCacheConfig().Validate())

	for name, opt := range map[string]CacheOption{
		"layers":   WithNumLayers(0),
		"heads":    WithNumHeads(-1),
		"head_dim": WithHeadDim(0),
		"batch":    WithBatchSize(0),
		"beams":    WithNumBeams(0),
		"sequence": WithSequenceLength(-2),
		"layout":   WithLayout(Layout(7)),
	} {
		assert.ErrorIs(t, NewCacheConfig(opt).Validate(), ErrInvalidConfig, name)
	}

	assert.ErrorIs(t, NewCacheConfig(WithElementType(ElementTypeUnknown)).Validate(), ErrUnsupportedElementType)
	assert.Equal(t, 12, NewCacheConfig(WithBatchSize(3), WithNumBeams(4)).BeamSlots())
}

func TestHostTensorValues(t *testing.T) {
	alloc := NewHostAllocator()
	assert.Equal(t, MemoryHost, alloc.MemoryKind())

	f16, err := alloc.CreateTensor(Shape{2, 2}, Float16)
	require.NoError(t, err)
	assert.Len(t, f16.Bytes(), 8)

	require.NoError(t, SetFloat32s(f16, []float32{0.5, -1, 1024, 3.25}))
	got, err := Float32s(f16)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -1, 1024, 3.25}, got)
	assert.Error(t, SetFloat32s(f16, []float32{1}))

	other, err := alloc.CreateTensor(Shape{2, 2}, Float16)
	require.NoError(t, err)
	require.NoError(t, SetFloat32s(other, got))
	assert.Equal(t, Digest(f16), Digest(other))

	require.NoError(t, f16.Destroy())
	assert.Error(t, f16.Destroy())

	_, err = alloc.CreateTensor(Shape{2}, ElementType(5))
	assert.ErrorIs(t, err, ErrUnsupportedElementType)
	_, err = alloc.CreateTensor(Shape{-1}, Float32)
	assert.Error(t, err)
}
