// Package nn provides the small set of weighted layers every architecture
// in model/models composes: Linear, RMSNorm, LayerNorm, Embedding, and the
// Attention and MoE helpers built on top of them. Each layer is a plain
// struct whose fields carry "gguf" tags so model.New's reflection-based
// loader (see model/reflect.go) can populate them straight from the
// checkpoint's tensor names.
package nn

import "github.com/inferno-run/coreinfer/ml"

// Linear is a weight matrix, shape [out, in], and optional bias [out].
// Forward computes y = x @ W^T + b for x shaped [rows, in], returning
// [rows, out] — every tensor in this module keeps its feature axis last, so
// the weight (feature axis also last, as loaded) is transposed to align the
// contraction rather than the activations.
type Linear struct {
	Weight ml.Tensor `gguf:"weight"`
	Bias   ml.Tensor `gguf:"bias"`
}

func (m *Linear) Forward(ctx ml.Context, t ml.Tensor) ml.Tensor {
	wT := m.Weight.Permute(ctx, 1, 0)
	out := t.Mulmat(ctx, wT)
	if m.Bias != nil {
		out = out.Add(ctx, m.Bias)
	}
	return out
}
