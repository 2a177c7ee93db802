package nn

import "github.com/inferno-run/coreinfer/ml"

// Embedding looks up rows of a vocabulary-sized weight matrix by token id.
type Embedding struct {
	Weight ml.Tensor `gguf:"weight"`
}

func (m *Embedding) Forward(ctx ml.Context, ids ml.Tensor) ml.Tensor {
	return m.Weight.Rows(ctx, ids)
}
