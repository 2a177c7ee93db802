package xlora

import (
	"github.com/inferno-run/coreinfer/adapter"
	"github.com/inferno-run/coreinfer/ml"
	"github.com/inferno-run/coreinfer/ml/nn"
)

// Classifier is the small MLP that turns the scaling pass's final hidden
// states into a scalings tensor: two linear layers over the model's hidden
// size, producing one weight per (layer, adapter) pair for every token.
type Classifier struct {
	Inner  *nn.Linear `gguf:"inner"`
	Output *nn.Linear `gguf:"output"`

	numLayers   int
	numAdapters int
}

// NewClassifier wires a loaded Classifier's layer/adapter counts, which its
// Output projection's width must equal (numLayers*numAdapters columns).
func NewClassifier(c *Classifier, numLayers, numAdapters int) *Classifier {
	c.numLayers = numLayers
	c.numAdapters = numAdapters
	return c
}

// Forward runs the classifier over the scaling pass's final hidden states
// (shape [numTokens, hiddenSize]) and returns the resulting Scalings.
func (c *Classifier) Forward(ctx ml.Context, hiddenStates ml.Tensor) *adapter.Scalings {
	h := c.Inner.Forward(ctx, hiddenStates).SILU(ctx)
	logits := c.Output.Forward(ctx, h) // [numTokens, numLayers*numAdapters]

	return &adapter.Scalings{
		Tensor:      logits,
		NumLayers:   c.numLayers,
		NumAdapters: c.numAdapters,
	}
}
