package main

import (
	"context"
	"math/rand"

	"github.com/xiaozhiob/onnxruntime-genai/genai"
)

// syntheticExecutor stands in for a forward pass: it writes a value derived
// from the step and beam slot into every present tensor
type syntheticExecutor struct {
	step   int
	onPass func()
}

func (e *syntheticExecutor) Run(ctx context.Context, inputs, outputs []genai.Binding) error {
	e.step++
	for _, out := range outputs {
		s := out.Tensor.Shape()
		slots := int(s[len(s)-4])
		vals := make([]float32, s.Elements())
		if len(vals) == 0 {
			continue
		}
		block := len(vals) / slots
		if len(s) == 5 {
			block /= 2
		}
		for i := range vals {
			vals[i] = float32(e.step) + float32((i/block)%slots)/8
		}
		if err := genai.SetFloat32s(out.Tensor, vals); err != nil {
			return err
		}
	}
	if e.onPass != nil {
		e.onPass()
	}
	return nil
}

// randomController grows the sequence by one token per step and, on a
// fraction of steps, picks a random surviving beam for every slot
type randomController struct {
	rng       *rand.Rand
	slots     int
	fraction  float64
	length    int
	remaining int
}

func (c *randomController) Next(ctx context.Context, step int) (genai.Step, error) {
	if step >= c.remaining {
		return genai.Step{Done: true}, nil
	}

	c.length++
	next := genai.Step{SequenceLength: c.length}
	if c.rng.Float64() < c.fraction {
		next.BeamIndices = make([]int32, c.slots)
		for j := range next.BeamIndices {
			next.BeamIndices[j] = int32(c.rng.Intn(c.slots))
		}
	}
	return next, nil
}
