package nn

import "github.com/inferno-run/coreinfer/ml"

// FeedForward is the gated SiLU MLP every dense layer, and each
// Mixture-of-Experts expert, use: down(silu(gate(x)) * up(x)).
type FeedForward struct {
	Gate *Linear `gguf:"gate"`
	Up   *Linear `gguf:"up"`
	Down *Linear `gguf:"down"`
}

func (m *FeedForward) Forward(ctx ml.Context, t ml.Tensor) ml.Tensor {
	gate := m.Gate.Forward(ctx, t).SILU(ctx)
	up := m.Up.Forward(ctx, t)
	return m.Down.Forward(ctx, gate.Mul(ctx, up))
}
