package genai

import (
	"fmt"
	"log/slog"
)

// KVCache owns the past and present key/value tensors of every layer for one
// generation request.
//
// Slots are ordered by layer; in the split layout each layer has a key slot
// followed by a value slot. Past slots hold the state fed to the next forward
// pass, present slots receive the state that pass produces.
type KVCache struct {
	cfg    CacheConfig
	alloc  Allocator
	kind   MemoryKind
	copier Copier
	stream *Stream

	shape     Shape // shape of every present tensor
	pastLen   int
	emptyPast Tensor

	pasts    []Tensor
	presents []Tensor

	inputNames  []string
	outputNames []string

	closed bool
}

// NewKVCache allocates the initial state for a request. Present tensors are
// sized to cfg.SequenceLength; every past slot starts as one shared
// zero-length placeholder.
func NewKVCache(cfg *CacheConfig, alloc Allocator, stream *Stream) (*KVCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	kind := alloc.MemoryKind()
	copier, err := newCopier(kind, stream)
	if err != nil {
		return nil, err
	}

	c := &KVCache{
		cfg:    *cfg,
		alloc:  alloc,
		kind:   kind,
		copier: copier,
		stream: stream,
	}

	c.emptyPast, err = c.allocate(c.shapeFor(0))
	if err != nil {
		return nil, err
	}

	c.shape = c.shapeFor(cfg.SequenceLength)
	c.presents, err = c.allocateAll(c.shape)
	if err != nil {
		c.copier.Release(c.emptyPast)
		return nil, err
	}

	c.pasts = make([]Tensor, len(c.presents))
	for i := range c.pasts {
		c.pasts[i] = c.emptyPast
	}

	c.inputNames, c.outputNames = bindingNames(cfg.Layout, cfg.NumLayers)

	slog.Debug("kv cache created",
		"layout", cfg.Layout,
		"layers", cfg.NumLayers,
		"dtype", cfg.ElementType,
		"memory", kind,
		"shape", c.shape)

	return c, nil
}

// buffersPerLayer is the number of tensors a layer owns in each of past and present
func (c *KVCache) buffersPerLayer() int {
	if c.cfg.Layout == LayoutCombined {
		return 1
	}
	return 2
}

// halves is the number of key/value regions inside one tensor
func (c *KVCache) halves() int {
	if c.cfg.Layout == LayoutCombined {
		return 2
	}
	return 1
}

func (c *KVCache) shapeFor(seqLen int) Shape {
	s := Shape{int64(c.cfg.BeamSlots()), int64(c.cfg.NumHeads), int64(seqLen), int64(c.cfg.HeadDim)}
	if c.cfg.Layout == LayoutCombined {
		s = append(Shape{2}, s...)
	}
	return s
}

func (c *KVCache) seqAxis() int {
	return len(c.shape) - 2
}

func (c *KVCache) allocate(shape Shape) (Tensor, error) {
	t, err := c.alloc.CreateTensor(shape, c.cfg.ElementType)
	if err != nil {
		return nil, fmt.Errorf("%w: shape %v %v: %w", ErrAllocation, shape, c.cfg.ElementType, err)
	}
	return t, nil
}

// allocateAll allocates one tensor per slot, releasing the partial set on failure
func (c *KVCache) allocateAll(shape Shape) ([]Tensor, error) {
	ts := make([]Tensor, 0, c.cfg.NumLayers*c.buffersPerLayer())
	for i := 0; i < cap(ts); i++ {
		t, err := c.allocate(shape)
		if err != nil {
			c.releaseAll(ts)
			return nil, err
		}
		ts = append(ts, t)
	}
	return ts, nil
}

func (c *KVCache) releaseAll(ts []Tensor) {
	for _, t := range ts {
		if t != nil && t != c.emptyPast {
			c.copier.Release(t)
		}
	}
}

func (c *KVCache) checkBeamIndices(beamIndices []int32) error {
	if len(beamIndices) == 0 {
		return nil
	}

	slots := c.cfg.BeamSlots()
	if len(beamIndices) != slots {
		return fmt.Errorf("%w: got %d indices, want %d", ErrInvalidBeamIndices, len(beamIndices), slots)
	}
	for j, b := range beamIndices {
		if b < 0 || int(b) >= slots {
			return fmt.Errorf("%w: index %d at slot %d is outside [0, %d)", ErrInvalidBeamIndices, b, j, slots)
		}
	}
	return nil
}

// Advance moves the cache to the next decoding step.
//
// With no beam indices every past slot takes over its present tensor as is.
// Otherwise past slot j of every buffer becomes a copy of present slot
// beamIndices[j]; indices may repeat or skip slots. Present tensors are then
// replaced by fresh ones with sequenceLength positions.
//
// Either every slot is updated or none is: indices are validated and all new
// tensors are allocated before any slot changes.
func (c *KVCache) Advance(beamIndices []int32, sequenceLength int) error {
	if c.closed {
		return ErrClosed
	}
	if sequenceLength < 0 {
		return fmt.Errorf("%w: sequence length must not be negative, got %d", ErrInvalidConfig, sequenceLength)
	}
	if err := c.checkBeamIndices(beamIndices); err != nil {
		return err
	}

	reorder := len(beamIndices) > 0

	var pasts []Tensor
	if reorder {
		var err error
		if pasts, err = c.allocateAll(c.shape); err != nil {
			return err
		}
	} else {
		pasts = make([]Tensor, len(c.presents))
		copy(pasts, c.presents)
	}

	nextShape := c.shapeFor(sequenceLength)
	presents, err := c.allocateAll(nextShape)
	if err != nil {
		if reorder {
			c.releaseAll(pasts)
		}
		return err
	}

	if reorder {
		for i := range pasts {
			if err := c.pickPastState(pasts[i], c.presents[i], beamIndices); err != nil {
				c.releaseAll(pasts)
				c.releaseAll(presents)
				return fmt.Errorf("reorder slot %d: %w", i, err)
			}
		}
		c.releaseAll(c.presents)
	}
	c.releaseAll(c.pasts)

	c.pastLen = int(c.shape[c.seqAxis()])
	c.pasts = pasts
	c.presents = presents
	c.shape = nextShape

	slog.Debug("kv cache advanced",
		"reorder", reorder,
		"past_sequence_length", c.pastLen,
		"sequence_length", sequenceLength)

	return nil
}

// pickPastState copies present into past, reordered by beam index, one block
// of heads*sequence*head_dim elements per beam slot and key/value region
func (c *KVCache) pickPastState(past, present Tensor, beamIndices []int32) error {
	block := c.cfg.NumHeads * int(c.shape[c.seqAxis()]) * c.cfg.HeadDim
	half := c.cfg.BeamSlots() * block

	for h := 0; h < c.halves(); h++ {
		base := h * half
		for j, b := range beamIndices {
			if err := c.copier.Copy(past, present, c.cfg.ElementType, base+j*block, base+int(b)*block, block); err != nil {
				return err
			}
		}
	}
	return nil
}

// Layout returns the key/value layout
func (c *KVCache) Layout() Layout { return c.cfg.Layout }

// NumLayers returns the number of transformer layers
func (c *KVCache) NumLayers() int { return c.cfg.NumLayers }

// ElementType returns the storage precision
func (c *KVCache) ElementType() ElementType { return c.cfg.ElementType }

// MemoryKind returns where the cache's tensors live
func (c *KVCache) MemoryKind() MemoryKind { return c.kind }

// Len returns the number of past (and present) slots
func (c *KVCache) Len() int { return len(c.presents) }

// Slot returns the slot index of a layer's key (half 0) or value (half 1)
// buffer. In the combined layout half is ignored.
func (c *KVCache) Slot(layer, half int) int {
	if c.cfg.Layout == LayoutCombined {
		return layer
	}
	return layer*2 + half
}

// SequenceLength returns the sequence length of the present tensors
func (c *KVCache) SequenceLength() int { return int(c.shape[c.seqAxis()]) }

// PastSequenceLength returns the sequence length of the past tensors
func (c *KVCache) PastSequenceLength() int { return c.pastLen }

// Past returns the past tensor of slot i
func (c *KVCache) Past(i int) Tensor { return c.pasts[i] }

// Present returns the present tensor of slot i
func (c *KVCache) Present(i int) Tensor { return c.presents[i] }

// Inputs returns the past tensors bound to their model input names
func (c *KVCache) Inputs() []Binding {
	b := make([]Binding, len(c.pasts))
	for i, t := range c.pasts {
		b[i] = Binding{Name: c.inputNames[i], Tensor: t}
	}
	return b
}

// Outputs returns the present tensors bound to their model output names
func (c *KVCache) Outputs() []Binding {
	b := make([]Binding, len(c.presents))
	for i, t := range c.presents {
		b[i] = Binding{Name: c.outputNames[i], Tensor: t}
	}
	return b
}

// Synchronize waits for queued device copies. It is a no-op for host caches.
func (c *KVCache) Synchronize() {
	if c.kind == MemoryDevice {
		c.stream.Synchronize()
	}
}

// Close releases every tensor the cache owns. The stream is not closed.
func (c *KVCache) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	c.releaseAll(c.presents)
	c.releaseAll(c.pasts)
	c.copier.Release(c.emptyPast)
	c.pasts, c.presents = nil, nil
	c.Synchronize()
	return nil
}
