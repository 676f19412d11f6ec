package genai

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Executor runs one forward pass with the cache's past tensors bound as
// inputs and its present tensors bound as outputs.
//
// Device executors must issue their reads on the same stream the cache
// copies on.
type Executor interface {
	Run(ctx context.Context, inputs, outputs []Binding) error
}

// Step is a beam controller's decision after a forward pass
type Step struct {
	// BeamIndices maps each new beam slot to the old slot it inherits from.
	// Empty means keep the present state as is.
	BeamIndices []int32

	// SequenceLength is the present length for the next forward pass
	SequenceLength int

	// Done ends generation; the cache is not advanced
	Done bool
}

// BeamController inspects the outputs of a forward pass and decides how the
// cache advances
type BeamController interface {
	Next(ctx context.Context, step int) (Step, error)
}

// StepStats describes one completed step, passed to progress callbacks
type StepStats struct {
	Step           int
	Reordered      bool
	SequenceLength int
	Elapsed        time.Duration
}

// Session drives one generation request: forward pass, beam decision, cache advance
type Session struct {
	cache      *KVCache
	executor   Executor
	controller BeamController
	maxSteps   int
	onStep     func(StepStats)
}

// SessionOption is a functional option for Session
type SessionOption func(*Session)

// WithMaxSteps caps the number of forward passes; 0 means no cap
func WithMaxSteps(n int) SessionOption {
	return func(s *Session) {
		s.maxSteps = n
	}
}

// WithStepCallback registers a function called after every advanced step
func WithStepCallback(fn func(StepStats)) SessionOption {
	return func(s *Session) {
		s.onStep = fn
	}
}

// NewSession creates a session that owns cache
func NewSession(cache *KVCache, executor Executor, controller BeamController, opts ...SessionOption) *Session {
	s := &Session{
		cache:      cache,
		executor:   executor,
		controller: controller,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Cache returns the session's cache
func (s *Session) Cache() *KVCache {
	return s.cache
}

// Run loops until the controller reports Done, the step cap is hit or ctx is
// cancelled. It returns the number of forward passes executed.
func (s *Session) Run(ctx context.Context) (int, error) {
	steps := 0
	for s.maxSteps == 0 || steps < s.maxSteps {
		if err := ctx.Err(); err != nil {
			return steps, err
		}

		start := time.Now()
		if err := s.executor.Run(ctx, s.cache.Inputs(), s.cache.Outputs()); err != nil {
			return steps, fmt.Errorf("forward pass %d failed: %w", steps, err)
		}
		steps++

		next, err := s.controller.Next(ctx, steps)
		if err != nil {
			return steps, fmt.Errorf("beam selection at step %d failed: %w", steps, err)
		}
		if next.Done {
			slog.Debug("generation finished", "steps", steps)
			return steps, nil
		}

		if err := s.cache.Advance(next.BeamIndices, next.SequenceLength); err != nil {
			return steps, fmt.Errorf("advance kv cache at step %d: %w", steps, err)
		}

		if s.onStep != nil {
			s.onStep(StepStats{
				Step:           steps,
				Reordered:      len(next.BeamIndices) > 0,
				SequenceLength: next.SequenceLength,
				Elapsed:        time.Since(start),
			})
		}
	}

	slog.Debug("generation stopped at step cap", "steps", steps)
	return steps, nil
}

// Close releases the cache
func (s *Session) Close() error {
	return s.cache.Close()
}
