package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/xiaozhiob/onnxruntime-genai/envconfig"
	"github.com/xiaozhiob/onnxruntime-genai/genai"
	"github.com/xiaozhiob/onnxruntime-genai/onnx"
)

type options struct {
	layers    int
	heads     int
	headDim   int
	batch     int
	beams     int
	promptLen int
	steps     int
	dtype     string
	layout    string
	reorder   float64
	seed      int64
	useOrt    bool
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: envconfig.LogLevel()})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := options{}

	defaultDType := envconfig.ElementType()
	if defaultDType == "" {
		defaultDType = "float32"
	}

	cmd := &cobra.Command{
		Use:   "kvbench",
		Short: "Drive a beam search kv cache through synthetic decoding steps",
		Long: `kvbench advances a past/present kv cache through a number of decoding
steps. A synthetic forward pass fills every present tensor and a random beam
controller reorders the beams on a fraction of the steps.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.layers, "layers", 12, "number of transformer layers")
	f.IntVar(&opts.heads, "heads", 12, "attention heads per layer")
	f.IntVar(&opts.headDim, "head-dim", 64, "dimension per attention head")
	f.IntVar(&opts.batch, "batch", 1, "batch size")
	f.IntVar(&opts.beams, "beams", 4, "beam width")
	f.IntVar(&opts.promptLen, "prompt-len", 32, "prompt length in tokens")
	f.IntVar(&opts.steps, "steps", 64, "decoding steps to run")
	f.StringVar(&opts.dtype, "dtype", defaultDType, "element type: float32 or float16")
	f.StringVar(&opts.layout, "layout", "split", "kv layout: split or combined")
	f.Float64Var(&opts.reorder, "reorder", 0.5, "fraction of steps that reorder beams")
	f.Int64Var(&opts.seed, "seed", 1, "random seed for beam selection")
	f.BoolVar(&opts.useOrt, "ort", false, "allocate tensors through onnxruntime")

	return cmd
}

func run(ctx context.Context, opts options) error {
	et, err := genai.ParseElementType(opts.dtype)
	if err != nil {
		return err
	}
	layout, err := genai.ParseLayout(opts.layout)
	if err != nil {
		return err
	}

	var alloc genai.Allocator = genai.NewHostAllocator()
	if opts.useOrt {
		ortAlloc, err := onnx.NewAllocator()
		if err != nil {
			return err
		}
		defer onnx.Shutdown()
		alloc = ortAlloc
	}

	cfg := genai.NewCacheConfig(
		genai.WithNumLayers(opts.layers),
		genai.WithNumHeads(opts.heads),
		genai.WithHeadDim(opts.headDim),
		genai.WithBatchSize(opts.batch),
		genai.WithNumBeams(opts.beams),
		genai.WithSequenceLength(opts.promptLen),
		genai.WithElementType(et),
		genai.WithLayout(layout),
	)

	cache, err := genai.NewKVCache(cfg, alloc, nil)
	if err != nil {
		return err
	}

	fmt.Printf("Configuration:\n")
	fmt.Printf("  Layout: %v, dtype: %v, memory: %v\n", layout, et, cache.MemoryKind())
	fmt.Printf("  Layers: %d, heads: %d, head dim: %d\n", opts.layers, opts.heads, opts.headDim)
	fmt.Printf("  Beam slots: %d, prompt length: %d, steps: %d\n", cfg.BeamSlots(), opts.promptLen, opts.steps)
	fmt.Println()

	var bar *progressbar.ProgressBar
	if !envconfig.NoProgress() {
		bar = progressbar.NewOptions(opts.steps,
			progressbar.OptionSetDescription("Decoding"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}

	reorders := 0
	var stepTime time.Duration
	exec := &syntheticExecutor{}
	if bar != nil {
		// the final pass is not followed by an advance, so count passes
		exec.onPass = func() { bar.Add(1) }
	}
	sess := genai.NewSession(cache,
		exec,
		&randomController{
			rng:       rand.New(rand.NewSource(opts.seed)),
			slots:     cfg.BeamSlots(),
			fraction:  opts.reorder,
			length:    opts.promptLen,
			remaining: opts.steps,
		},
		genai.WithStepCallback(func(s genai.StepStats) {
			if s.Reordered {
				reorders++
			}
			stepTime += s.Elapsed
			if slog.Default().Enabled(ctx, slog.LevelDebug) {
				slog.Debug("step", "step", s.Step, "reordered", s.Reordered,
					"sequence_length", s.SequenceLength, "past_digest", fmt.Sprintf("%016x", genai.Digest(cache.Past(0))))
			}
		}),
	)
	defer sess.Close()

	start := time.Now()
	steps, err := sess.Run(ctx)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Println()
	fmt.Println("Results:")
	fmt.Printf("  Forward passes: %d (%d reordered)\n", steps, reorders)
	fmt.Printf("  Final sequence length: %d\n", cache.SequenceLength())
	fmt.Printf("  Time elapsed: %.3f s (%.2f steps/s)\n", elapsed.Seconds(), float64(steps)/elapsed.Seconds())
	if steps > 1 {
		fmt.Printf("  Mean step time: %v\n", stepTime/time.Duration(steps-1))
	}
	fmt.Printf("  Layer 0 past digest: %016x\n", genai.Digest(cache.Past(0)))
	return nil
}
