package llama

import (
	"math"

	"github.com/inferno-run/coreinfer/adapter"
	"github.com/inferno-run/coreinfer/kvcache"
	"github.com/inferno-run/coreinfer/ml"
	"github.com/inferno-run/coreinfer/ml/nn"
)

// Attention is grouped-query attention: numHeads query heads, numKVHeads
// key/value heads (numHeads == numKVHeads is plain multi-head attention),
// rotary position encoding on Q and K, and cache append + sliding-window
// trim delegated to kvcache.Cache. Every projection is adapter-wrapped
// (spec.md C9): with no adapters attached, LoraForward is exactly the
// plain linear projection it replaces.
type Attention struct {
	Query  *adapter.Adapted `gguf:"attn_q"`
	Key    *adapter.Adapted `gguf:"attn_k"`
	Value  *adapter.Adapted `gguf:"attn_v"`
	Output *adapter.Adapted `gguf:"attn_output"`
}

// SetLayer records this attention block's decoder layer index on every one
// of its adapter-wrapped projections, so an X-LoRA pass's Scalings can be
// indexed correctly regardless of which projection is being evaluated.
func (attn Attention) SetLayer(layer int) {
	attn.Query.SetLayer(layer)
	attn.Key.SetLayer(layer)
	attn.Value.SetLayer(layer)
	attn.Output.SetLayer(layer)
}

// Forward projects hiddenStates (shape [rows, hiddenSize]) to Q/K/V, reshapes
// each to [heads, rows, headDim] and rotates Q/K, then hands off to
// nn.Attention. scalings, globalWeight and scalingPass are the X-LoRA
// two-pass parameters (spec.md §4.6); scalings is nil outside an X-LoRA
// run, in which case every projection below behaves as a plain linear.
//
// Each Linear projection's output is [rows, heads*headDim] with head the
// slower-changing half of the combined axis (per-head blocks of headDim
// contiguous, the standard GGUF tensor layout), so a single data-preserving
// Reshape can only produce [rows, heads, headDim] — rows isn't the middle
// axis there, so Permute moves it past heads afterward.
func (attn Attention) Forward(ctx ml.Context, hiddenStates, positions, cos, sin ml.Tensor, cache kvcache.Cache, opts *Options, scalings *adapter.Scalings, globalWeight, scalingPass float32) (ml.Tensor, error) {
	rows := hiddenStates.Dim(0)

	query := reshapeHeads(ctx, attn.Query.LoraForward(ctx, hiddenStates, scalings, globalWeight, scalingPass), rows, opts.numHeads, opts.headDim)
	query = query.RoPE(ctx, positions, cos, sin, opts.ropeDim)

	key := reshapeHeads(ctx, attn.Key.LoraForward(ctx, hiddenStates, scalings, globalWeight, scalingPass), rows, opts.numKVHeads, opts.headDim)
	key = key.RoPE(ctx, positions, cos, sin, opts.ropeDim)

	value := reshapeHeads(ctx, attn.Value.LoraForward(ctx, hiddenStates, scalings, globalWeight, scalingPass), rows, opts.numKVHeads, opts.headDim)

	scale := 1.0 / math.Sqrt(float64(opts.headDim))
	attention, err := nn.Attention(ctx, query, key, value, scale, cache)
	if err != nil {
		return nil, err
	}

	// attention is [numHeads, rows, headDim]; undo the permute and flatten
	// the head axes back into a single [rows, numHeads*headDim] projection
	// input.
	attention = attention.Permute(ctx, 1, 0, 2)
	attention = attention.Reshape(ctx, rows, opts.numHeads*opts.headDim)
	return attn.Output.LoraForward(ctx, attention, scalings, globalWeight, scalingPass), nil
}

// reshapeHeads turns a Linear projection's [rows, heads*headDim] output into
// [heads, rows, headDim].
func reshapeHeads(ctx ml.Context, t ml.Tensor, rows, heads, headDim int) ml.Tensor {
	t = t.Reshape(ctx, rows, heads, headDim)
	return t.Permute(ctx, 1, 0, 2)
}
