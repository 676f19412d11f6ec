package onnx

import (
	"context"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/xiaozhiob/onnxruntime-genai/genai"
)

// Feeds supplies the non-cache inputs and outputs of one forward pass, in the
// order of ExecutorConfig.InputNames and ExecutorConfig.OutputNames. The
// caller keeps ownership of the returned values.
type Feeds func(ctx context.Context) (inputs, outputs []ort.Value, err error)

// ExecutorConfig describes a decoder model and its non-cache bindings
type ExecutorConfig struct {
	ModelPath   string
	InputNames  []string // e.g. input_ids, attention_mask
	OutputNames []string // e.g. logits
	NumThreads  int
}

// Executor runs a decoder session with the kv cache bound by name.
// It implements genai.Executor. Cache tensors with a zero dimension cannot be
// bound, so Run fails with ErrZeroLengthBinding until the cache has been
// advanced to a non-empty past.
type Executor struct {
	session     *ort.DynamicAdvancedSession
	feeds       Feeds
	numInputs   int
	numOutputs  int
	cacheInputs []string
	cacheOutput []string
}

// NewExecutor creates a session whose inputs are the model inputs followed by
// the cache's past names, and whose outputs are the model outputs followed by
// the cache's present names
func NewExecutor(cfg ExecutorConfig, cache *genai.KVCache, feeds Feeds) (*Executor, error) {
	if err := Init(); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if cfg.NumThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			return nil, fmt.Errorf("failed to set threads: %w", err)
		}
	}

	e := &Executor{
		feeds:       feeds,
		numInputs:   len(cfg.InputNames),
		numOutputs:  len(cfg.OutputNames),
		cacheInputs: bindingNames(cache.Inputs()),
		cacheOutput: bindingNames(cache.Outputs()),
	}

	inputNames := append(append([]string{}, cfg.InputNames...), e.cacheInputs...)
	outputNames := append(append([]string{}, cfg.OutputNames...), e.cacheOutput...)

	e.session, err = ort.NewDynamicAdvancedSession(cfg.ModelPath, inputNames, outputNames, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return e, nil
}

func bindingNames(bindings []genai.Binding) []string {
	names := make([]string, len(bindings))
	for i, b := range bindings {
		names[i] = b.Name
	}
	return names
}

// Run executes one forward pass
func (e *Executor) Run(ctx context.Context, inputs, outputs []genai.Binding) error {
	in, out, err := e.feeds(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare feeds: %w", err)
	}
	if len(in) != e.numInputs || len(out) != e.numOutputs {
		return fmt.Errorf("feeds returned %d inputs and %d outputs, want %d and %d",
			len(in), len(out), e.numInputs, e.numOutputs)
	}

	in, err = appendBindings(in, inputs, e.cacheInputs)
	if err != nil {
		return err
	}
	out, err = appendBindings(out, outputs, e.cacheOutput)
	if err != nil {
		return err
	}

	if err := e.session.Run(in, out); err != nil {
		return fmt.Errorf("inference failed: %w", err)
	}
	return nil
}

func appendBindings(values []ort.Value, bindings []genai.Binding, names []string) ([]ort.Value, error) {
	if len(bindings) != len(names) {
		return nil, fmt.Errorf("got %d cache bindings, session expects %d", len(bindings), len(names))
	}
	for i, b := range bindings {
		if b.Name != names[i] {
			return nil, fmt.Errorf("cache binding %d is %q, session expects %q", i, b.Name, names[i])
		}
		v, err := valueOf(b)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// Close destroys the session
func (e *Executor) Close() error {
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return err
}
