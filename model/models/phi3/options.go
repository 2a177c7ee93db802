// Package phi3 implements the Phi-3 decoder-only architecture: a single
// fused QKV projection split into Q/K/V per spec.md §4.6.1, an optional
// QK layer-norm, a partial rotary factor (only a leading fraction of each
// head rotates), and the same gated SiLU MLP and sliding-window cache
// handling as llama.
package phi3

import (
	"github.com/inferno-run/coreinfer/fs"
	"github.com/inferno-run/coreinfer/kvcache"
)

// Options holds the per-model configuration resolved once from the
// checkpoint's metadata, shared by every layer.
type Options struct {
	hiddenSize    int
	numHeads      int
	numKVHeads    int
	headDim       int
	ropeDim       int
	ropeBase      float32
	ropeScale     float32
	eps           float32
	qkLayerNorm   bool
	slidingWindow int // 0 disables sliding-window attention
	windowPolicy  kvcache.WindowPolicy
}

func newOptions(c fs.Config) Options {
	numHeads := int(c.Uint("attention.head_count"))
	headDim := int(c.Uint("attention.key_length"))
	if headDim == 0 {
		headDim = int(c.Uint("embedding_length")) / max(numHeads, 1)
	}
	ropeDim := int(c.Uint("rope.dimension_count", uint32(headDim)))

	o := Options{
		hiddenSize:  int(c.Uint("embedding_length")),
		numHeads:    numHeads,
		numKVHeads:  int(c.Uint("attention.head_count_kv", uint32(numHeads))),
		headDim:     headDim,
		ropeDim:     ropeDim,
		ropeBase:    c.Float("rope.freq_base", 10000),
		ropeScale:   c.Float("rope.scaling.factor", 1),
		eps:         c.Float("attention.layer_norm_rms_epsilon", 1e-5),
		qkLayerNorm: c.Bool("attention.qk_layernorm", false),
		slidingWindow: int(c.Uint("attention.sliding_window", 0)),
	}
	if o.slidingWindow > 0 && c.Bool("attention.sliding_window_2x", false) {
		o.windowPolicy = kvcache.Policy2x
	} else if o.slidingWindow > 0 {
		o.windowPolicy = kvcache.Policy1x
	}
	return o
}
