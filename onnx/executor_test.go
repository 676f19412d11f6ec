package onnx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaozhiob/onnxruntime-genai/genai"
)

func TestAppendBindings(t *testing.T) {
	names := []string{"present.0.key", "present.0.value"}

	_, err := appendBindings(nil, []genai.Binding{{Name: "present.0.key"}}, names)
	assert.ErrorContains(t, err, "session expects 2")

	_, err = appendBindings(nil, []genai.Binding{{Name: "present.0.value"}, {Name: "present.0.key"}}, names)
	assert.ErrorContains(t, err, `"present.0.value"`)

	host, err := genai.NewHostAllocator().CreateTensor(genai.Shape{1}, genai.Float32)
	require.NoError(t, err)
	_, err = appendBindings(nil, []genai.Binding{{Name: "present.0.key", Tensor: host}, {Name: "present.0.value", Tensor: host}}, names)
	assert.ErrorContains(t, err, "not created by the onnx allocator")

	empty, err := (&Allocator{}).CreateTensor(genai.Shape{1, 2, 0, 4}, genai.Float32)
	require.NoError(t, err)
	_, err = appendBindings(nil, []genai.Binding{{Name: "present.0.key", Tensor: empty}, {Name: "present.0.value", Tensor: empty}}, names)
	assert.ErrorIs(t, err, ErrZeroLengthBinding)

	require.NoError(t, empty.Destroy())
	_, err = appendBindings(nil, []genai.Binding{{Name: "present.0.key", Tensor: empty}, {Name: "present.0.value", Tensor: empty}}, names)
	assert.ErrorContains(t, err, "already destroyed")
}

func TestBindingNames(t *testing.T) {
	cache, err := genai.NewKVCache(genai.NewCacheConfig(genai.WithNumLayers(2)), genai.NewHostAllocator(), nil)
	require.NoError(t, err)
	defer cache.Close()

	assert.Equal(t, []string{
		"past_key_values.0.key", "past_key_values.0.value",
		"past_key_values.1.key", "past_key_values.1.value",
	}, bindingNames(cache.Inputs()))
	assert.Equal(t, []string{
		"present.0.key", "present.0.value",
		"present.1.key", "present.1.value",
	}, bindingNames(cache.Outputs()))
}
