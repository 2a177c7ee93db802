// Package mixtral implements the Mixtral decoder-only architecture:
// llama-style grouped-query attention (unfused QKV, full rotary) with a
// Mixture-of-Experts feed-forward in place of the dense gated SiLU MLP
// (spec.md §4.7's MoE variant).
package mixtral

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
	numExperts    int
	numExpertsUsed int
	slidingWindow int // 0 disables sliding-window attention
	windowPolicy  kvcache.WindowPolicy
}

func newOptions(c fs.Config) Options {
	numHeads := int(c.Uint("attention.head_count"))
	headDim := int(c.Uint("attention.key_length"))
	if headDim == 0 {
		headDim = int(c.Uint("embedding_length")) / max(numHeads, 1)
	}

	o := Options{
		hiddenSize:     int(c.Uint("embedding_length")),
		numHeads:       numHeads,
		numKVHeads:     int(c.Uint("attention.head_count_kv", uint32(numHeads))),
		headDim:        headDim,
		ropeDim:        int(c.Uint("rope.dimension_count", uint32(headDim))),
		ropeBase:       c.Float("rope.freq_base", 10000),
		ropeScale:      c.Float("rope.scaling.factor", 1),
		eps:            c.Float("attention.layer_norm_rms_epsilon", 1e-5),
		numExperts:     int(c.Uint("expert_count")),
		numExpertsUsed: int(c.Uint("expert_used_count")),
		slidingWindow:  int(c.Uint("attention.sliding_window", 0)),
	}
	if o.slidingWindow > 0 && c.Bool("attention.sliding_window_2x", false) {
		o.windowPolicy = kvcache.Policy2x
	} else if o.slidingWindow > 0 {
		o.windowPolicy = kvcache.Policy1x
	}
	return o
}
