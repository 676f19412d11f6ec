package genai

import "fmt"

// Layout selects how a layer's key and value state is laid out
type Layout int

const (
	// LayoutSplit keeps separate key and value tensors per layer
	LayoutSplit Layout = iota
	// LayoutCombined fuses key and value into one tensor with a leading axis of 2
	LayoutCombined
)

func (l Layout) String() string {
	switch l {
	case LayoutSplit:
		return "split"
	case LayoutCombined:
		return "combined"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// ParseLayout parses "split" or "combined"
func ParseLayout(s string) (Layout, error) {
	switch s {
	case "split":
		return LayoutSplit, nil
	case "combined", "fused":
		return LayoutCombined, nil
	default:
		return 0, fmt.Errorf("unknown kv cache layout %q", s)
	}
}

// CacheConfig holds the fixed dimensions of a KV cache
type CacheConfig struct {
	NumLayers      int
	NumHeads       int
	HeadDim        int
	BatchSize      int
	NumBeams       int
	SequenceLength int
	ElementType    ElementType
	Layout         Layout
}

// CacheOption is a functional option for CacheConfig
type CacheOption func(*CacheConfig)

// NewCacheConfig creates a CacheConfig with default values
func NewCacheConfig(opts ...CacheOption) *CacheConfig {
	c := &CacheConfig{
		NumLayers:      1,
		NumHeads:       1,
		HeadDim:        64,
		BatchSize:      1,
		NumBeams:       1,
		SequenceLength: 0,
		ElementType:    Float32,
		Layout:         LayoutSplit,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Validate checks if the configuration is valid
func (c *CacheConfig) Validate() error {
	if c.NumLayers < 1 {
		return fmt.Errorf("%w: num_layers must be positive, got %d", ErrInvalidConfig, c.NumLayers)
	}

	if c.NumHeads < 1 || c.HeadDim < 1 {
		return fmt.Errorf("%w: num_heads and head_dim must be positive, got %d and %d", ErrInvalidConfig, c.NumHeads, c.HeadDim)
	}

	if c.BatchSize < 1 || c.NumBeams < 1 {
		return fmt.Errorf("%w: batch_size and num_beams must be positive, got %d and %d", ErrInvalidConfig, c.BatchSize, c.NumBeams)
	}

	if c.SequenceLength < 0 {
		return fmt.Errorf("%w: sequence_length must not be negative, got %d", ErrInvalidConfig, c.SequenceLength)
	}

	if !c.ElementType.Valid() {
		return fmt.Errorf("%w: %v", ErrUnsupportedElementType, c.ElementType)
	}

	if c.Layout != LayoutSplit && c.Layout != LayoutCombined {
		return fmt.Errorf("%w: unknown layout %v", ErrInvalidConfig, c.Layout)
	}

	return nil
}

// BeamSlots returns batch size times beam width
func (c *CacheConfig) BeamSlots() int {
	return c.BatchSize * c.NumBeams
}

// WithNumLayers sets the number of transformer layers
func WithNumLayers(n int) CacheOption {
	return func(c *CacheConfig) {
		c.NumLayers = n
	}
}

// WithNumHeads sets the number of attention heads
func WithNumHeads(n int) CacheOption {
	return func(c *CacheConfig) {
		c.NumHeads = n
	}
}

// WithHeadDim sets the per-head dimension
func WithHeadDim(n int) CacheOption {
	return func(c *CacheConfig) {
		c.HeadDim = n
	}
}

// WithBatchSize sets the batch size
func WithBatchSize(n int) CacheOption {
	return func(c *CacheConfig) {
		c.BatchSize = n
	}
}

// WithNumBeams sets the beam width
func WithNumBeams(n int) CacheOption {
	return func(c *CacheConfig) {
		c.NumBeams = n
	}
}

// WithSequenceLength sets the initial sequence length, normally the prompt length
func WithSequenceLength(n int) CacheOption {
	return func(c *CacheConfig) {
		c.SequenceLength = n
	}
}

// WithElementType sets the storage precision
func WithElementType(et ElementType) CacheOption {
	return func(c *CacheConfig) {
		c.ElementType = et
	}
}

// WithLayout sets the key/value layout
func WithLayout(l Layout) CacheOption {
	return func(c *CacheConfig) {
		c.Layout = l
	}
}
