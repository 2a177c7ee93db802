package nn

import "github.com/inferno-run/coreinfer/ml"

// RMSNorm is root-mean-square layer normalization with a learned per-channel
// scale and no bias, the normalization every architecture this module ships
// uses for its attention and MLP pre-norms.
type RMSNorm struct {
	Weight ml.Tensor `gguf:"weight"`
}

func (m *RMSNorm) Forward(ctx ml.Context, t ml.Tensor, eps float32) ml.Tensor {
	var w ml.Tensor
	if m != nil {
		w = m.Weight
	}
	return t.RMSNorm(ctx, w, eps)
}

// LayerNorm is standard mean/variance layer normalization with a learned
// scale and bias. The architectures in model/models use RMSNorm instead.
type LayerNorm struct {
	Weight ml.Tensor `gguf:"weight"`
	Bias   ml.Tensor `gguf:"bias"`
}

func (m *LayerNorm) Forward(ctx ml.Context, t ml.Tensor, eps float32) ml.Tensor {
	return t.LayerNorm(ctx, m.Weight, m.Bias, eps)
}
