package genai

import (
	"fmt"
	"strings"
)

const (
	pastPrefix    = "past_key_values."
	presentPrefix = "present."
)

// Binding pairs a model input or output name with the tensor bound to it
type Binding struct {
	Name   string
	Tensor Tensor
}

// halfSuffix names the sub-buffer of a layer: key/value for split, kv for combined
func halfSuffix(layout Layout, half int) string {
	if layout == LayoutCombined {
		return "kv"
	}
	if half == 0 {
		return "key"
	}
	return "value"
}

// PastName returns the model input name for a layer's past state
func PastName(layout Layout, layer, half int) string {
	return fmt.Sprintf("%s%d.%s", pastPrefix, layer, halfSuffix(layout, half))
}

// PresentName returns the model output name for a layer's present state
func PresentName(layout Layout, layer, half int) string {
	return fmt.Sprintf("%s%d.%s", presentPrefix, layer, halfSuffix(layout, half))
}

// PresentNameFor maps an input name such as "past_key_values.3.key" to the
// output name "present.3.key". Names without the past prefix are returned unchanged.
func PresentNameFor(pastName string) string {
	if rest, ok := strings.CutPrefix(pastName, pastPrefix); ok {
		return presentPrefix + rest
	}
	return pastName
}

// bindingNames generates input and output names in slot order
func bindingNames(layout Layout, layers int) (inputs, outputs []string) {
	perLayer := 2
	if layout == LayoutCombined {
		perLayer = 1
	}

	inputs = make([]string, 0, layers*perLayer)
	outputs = make([]string, 0, layers*perLayer)
	for i := 0; i < layers; i++ {
		for h := 0; h < perLayer; h++ {
			inputs = append(inputs, PastName(layout, i, h))
			outputs = append(outputs, PresentName(layout, i, h))
		}
	}
	return inputs, outputs
}
