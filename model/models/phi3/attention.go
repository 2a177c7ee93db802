package phi3

import (
	"math"

	"github.com/inferno-run/coreinfer/kvcache"
	"github.com/inferno-run/coreinfer/ml"
	"github.com/inferno-run/coreinfer/ml/nn"
)

// Attention is grouped-query attention behind a single fused QKV
// projection (spec.md §4.6.1) with an optional QK RMSNorm, applied over the
// whole Q and K projection width before the per-head reshape, and a
// partial rotary factor (opts.ropeDim may be less than opts.headDim).
type Attention struct {
	QKV    *nn.Linear  `gguf:"attn_qkv"`
	QNorm  *nn.RMSNorm `gguf:"attn_q_norm"`
	KNorm  *nn.RMSNorm `gguf:"attn_k_norm"`
	Output *nn.Linear  `gguf:"attn_output"`
}

// Forward splits the fused projection's [rows, (heads+2*kvHeads)*headDim]
// output into Q, K and V along the last axis before proceeding exactly as
// llama's unfused attention does.
func (attn Attention) Forward(ctx ml.Context, hiddenStates, positions, cos, sin ml.Tensor, cache kvcache.Cache, opts *Options) (ml.Tensor, error) {
	rows := hiddenStates.Dim(0)
	qWidth := opts.numHeads * opts.headDim
	kvWidth := opts.numKVHeads * opts.headDim

	qkv := attn.QKV.Forward(ctx, hiddenStates)
	q := qkv.Slice(ctx, 1, 0, qWidth)
	k := qkv.Slice(ctx, 1, qWidth, qWidth+kvWidth)
	v := qkv.Slice(ctx, 1, qWidth+kvWidth, qWidth+2*kvWidth)

	if attn.QNorm != nil {
		q = attn.QNorm.Forward(ctx, q, opts.eps)
	}
	if attn.KNorm != nil {
		k = attn.KNorm.Forward(ctx, k, opts.eps)
	}

	query := reshapeHeads(ctx, q, rows, opts.numHeads, opts.headDim)
	query = query.RoPE(ctx, positions, cos, sin, opts.ropeDim)

	key := reshapeHeads(ctx, k, rows, opts.numKVHeads, opts.headDim)
	key = key.RoPE(ctx, positions, cos, sin, opts.ropeDim)

	value := reshapeHeads(ctx, v, rows, opts.numKVHeads, opts.headDim)

	scale := 1.0 / math.Sqrt(float64(opts.headDim))
	attention, err := nn.Attention(ctx, query, key, value, scale, cache)
	if err != nil {
		return nil, err
	}

	attention = attention.Permute(ctx, 1, 0, 2)
	attention = attention.Reshape(ctx, rows, opts.numHeads*opts.headDim)
	return attn.Output.Forward(ctx, attention), nil
}

// reshapeHeads turns a [rows, heads*headDim] slice into [heads, rows,
// headDim].
func reshapeHeads(ctx ml.Context, t ml.Tensor, rows, heads, headDim int) ml.Tensor {
	t = t.Contiguous(ctx).Reshape(ctx, rows, heads, headDim)
	return t.Permute(ctx, 1, 0, 2)
}
