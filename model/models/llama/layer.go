package llama

import (
	"github.com/inferno-run/coreinfer/adapter"
	"github.com/inferno-run/coreinfer/kvcache"
	"github.com/inferno-run/coreinfer/ml"
	"github.com/inferno-run/coreinfer/ml/nn"
)

// Layer is one decoder block: RMSNorm, attention, residual add, RMSNorm,
// feed-forward, residual add.
type Layer struct {
	AttentionNorm *nn.RMSNorm `gguf:"attn_norm"`
	Attention     *Attention

	FeedForwardNorm *nn.RMSNorm `gguf:"ffn_norm"`
	FeedForward     *nn.FeedForward
}

func (l *Layer) Forward(ctx ml.Context, hiddenStates, positions, cos, sin ml.Tensor, cache kvcache.Cache, opts *Options, scalings *adapter.Scalings, globalWeight, scalingPass float32) (ml.Tensor, error) {
	residual := hiddenStates

	hiddenStates = l.AttentionNorm.Forward(ctx, hiddenStates, opts.eps)
	attnOut, err := l.Attention.Forward(ctx, hiddenStates, positions, cos, sin, cache, opts, scalings, globalWeight, scalingPass)
	if err != nil {
		return nil, err
	}
	hiddenStates = attnOut.Add(ctx, residual)

	residual = hiddenStates
	hiddenStates = l.FeedForwardNorm.Forward(ctx, hiddenStates, opts.eps)
	hiddenStates = l.FeedForward.Forward(ctx, hiddenStates)
	hiddenStates = hiddenStates.Add(ctx, residual)

	return hiddenStates, nil
}
