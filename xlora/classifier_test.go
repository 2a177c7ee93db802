package xlora

import (
	"testing"

	"github.com/inferno-run/coreinfer/ml"
	"github.com/inferno-run/coreinfer/ml/backend/cpu"
	"github.com/inferno-run/coreinfer/ml/nn"
)

func newCtx() ml.Context { return &cpu.Context{} }

func TestClassifierForwardShapeAndLayerCount(t *testing.T) {
	ctx := newCtx()

	hiddenSize := 4
	numLayers := 2
	numAdapters := 3
	innerSize := 5

	c := &Classifier{
		Inner:  &nn.Linear{Weight: ctx.FromFloats(make([]float32, innerSize*hiddenSize), innerSize, hiddenSize)},
		Output: &nn.Linear{Weight: ctx.FromFloats(make([]float32, numLayers*numAdapters*innerSize), numLayers*numAdapters, innerSize)},
	}
	NewClassifier(c, numLayers, numAdapters)

	numTokens := 3
	hidden := ctx.FromFloats(make([]float32, numTokens*hiddenSize), numTokens, hiddenSize)

	scalings := c.Forward(ctx, hidden)

	if scalings.NumLayers != numLayers {
		t.Fatalf("NumLayers = %d, want %d", scalings.NumLayers, numLayers)
	}
	if scalings.NumAdapters != numAdapters {
		t.Fatalf("NumAdapters = %d, want %d", scalings.NumAdapters, numAdapters)
	}
	if got, want := scalings.Tensor.Dim(0), numTokens; got != want {
		t.Fatalf("Tensor.Dim(0) = %d, want %d", got, want)
	}
	if got, want := scalings.Tensor.Dim(1), numLayers*numAdapters; got != want {
		t.Fatalf("Tensor.Dim(1) = %d, want %d", got, want)
	}
}
