package mixtral

import (
	"math"

	"github.com/inferno-run/coreinfer/kvcache"
	"github.com/inferno-run/coreinfer/ml"
	"github.com/inferno-run/coreinfer/ml/nn"
)

// Attention is plain grouped-query attention, identical to llama's: no
// fused QKV, no QK norm, full rotary dimension.
type Attention struct {
	Query  *nn.Linear `gguf:"attn_q"`
	Key    *nn.Linear `gguf:"attn_k"`
	Value  *nn.Linear `gguf:"attn_v"`
	Output *nn.Linear `gguf:"attn_output"`
}

func (attn Attention) Forward(ctx ml.Context, hiddenStates, positions, cos, sin ml.Tensor, cache kvcache.Cache, opts *Options) (ml.Tensor, error) {
	rows := hiddenStates.Dim(0)

	query := reshapeHeads(ctx, attn.Query.Forward(ctx, hiddenStates), rows, opts.numHeads, opts.headDim)
	query = query.RoPE(ctx, positions, cos, sin, opts.ropeDim)

	key := reshapeHeads(ctx, attn.Key.Forward(ctx, hiddenStates), rows, opts.numKVHeads, opts.headDim)
	key = key.RoPE(ctx, positions, cos, sin, opts.ropeDim)

	value := reshapeHeads(ctx, attn.Value.Forward(ctx, hiddenStates), rows, opts.numKVHeads, opts.headDim)

	scale := 1.0 / math.Sqrt(float64(opts.headDim))
	attention, err := nn.Attention(ctx, query, key, value, scale, cache)
	if err != nil {
		return nil, err
	}

	attention = attention.Permute(ctx, 1, 0, 2)
	attention = attention.Reshape(ctx, rows, opts.numHeads*opts.headDim)
	return attn.Output.Forward(ctx, attention), nil
}

// reshapeHeads turns a Linear projection's [rows, heads*headDim] output
// into [heads, rows, headDim].
func reshapeHeads(ctx ml.Context, t ml.Tensor, rows, heads, headDim int) ml.Tensor {
	t = t.Reshape(ctx, rows, heads, headDim)
	return t.Permute(ctx, 1, 0, 2)
}
