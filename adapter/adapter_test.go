package adapter

import (
	"testing"

	"github.com/inferno-run/coreinfer/ml"
	"github.com/inferno-run/coreinfer/ml/backend/cpu"
)

// newCtx returns a real pure-Go CPU context. This backend's arithmetic
// needs no loaded model or open checkpoint file, so the zero value is a
// working ml.Context — these tests exercise the actual Mulmat/Add/Scale
// kernels rather than a fake.
func newCtx() ml.Context { return &cpu.Context{} }

func closeEnough(t *testing.T, got, want []float32, tol float32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range got {
		d := got[i] - want[i]
		if d < 0 {
			d = -d
		}
		if d > tol {
			t.Fatalf("index %d: got %v, want %v (tol %v)", i, got[i], want[i], tol)
		}
	}
}

func newAdapted(ctx ml.Context, weight []float32, out, in int) *Adapted {
	return &Adapted{Weight: ctx.FromFloats(weight, out, in)}
}

func TestLoraForwardNoAdaptersIsBaseLinear(t *testing.T) {
	ctx := newCtx()
	// weight: [out=2, in=3]
	a := newAdapted(ctx, []float32{1, 0, 0, 0, 1, 0}, 2, 3)
	x := ctx.FromFloats([]float32{1, 2, 3}, 1, 3)

	got := a.Forward(ctx, x).Floats()
	closeEnough(t, got, []float32{1, 2}, 1e-6)
}

func TestLoraForwardWeightedSumAppliesGlobalAndColumnScaling(t *testing.T) {
	ctx := newCtx()
	a := newAdapted(ctx, []float32{0, 0}, 1, 2) // base(x) = 0

	// rank-1 adapter: A = [1,1] ([rank=1, in=2]), B = [1] ([out=1, rank=1]),
	// alpha=1 so scale = alpha/rank = 1.
	A := ctx.FromFloats([]float32{1, 1}, 1, 2)
	B := ctx.FromFloats([]float32{1}, 1, 1)
	if err := a.AddAdapter("lora0", A, B, 1); err != nil {
		t.Fatalf("AddAdapter: %v", err)
	}

	x := ctx.FromFloats([]float32{1, 1}, 1, 2) // A*x = 2, B*(A*x) = 2

	scalings := &Scalings{
		Tensor:      ctx.FromFloats([]float32{0.5}, 1, 1), // one token, one (layer,adapter) column
		NumLayers:   1,
		NumAdapters: 1,
	}
	a.SetLayer(0)

	got := a.LoraForward(ctx, x, scalings, 2, 0).Floats() // weight = global(2) * column(0.5) = 1
	closeEnough(t, got, []float32{2}, 1e-6)
}

func TestLoraForwardScalingPassUsesScalarWeight(t *testing.T) {
	ctx := newCtx()
	a := newAdapted(ctx, []float32{0, 0}, 1, 2)

	A := ctx.FromFloats([]float32{1, 1}, 1, 2)
	B := ctx.FromFloats([]float32{1}, 1, 1)
	if err := a.AddAdapter("lora0", A, B, 1); err != nil {
		t.Fatalf("AddAdapter: %v", err)
	}

	x := ctx.FromFloats([]float32{1, 1}, 1, 2)

	got := a.LoraForward(ctx, x, nil, 0, 0.25).Floats()
	closeEnough(t, got, []float32{0.5}, 1e-6) // 2 * 0.25
}

// TestMergeWeightsEquivalence grounds spec.md §8's merge-equivalence
// scenario: a LoRA adapter of rank 4 and scaling 2.0, after MergeWeights,
// makes LoraForward(x, nil, ...) numerically equal to the pre-merge result.
func TestMergeWeightsEquivalence(t *testing.T) {
	ctx := newCtx()
	a := newAdapted(ctx, []float32{1, 0, 0, 1}, 2, 2) // identity base

	A := ctx.FromFloats([]float32{1, 0, 0, 1, 1, 1, 0.5, 0.5}, 4, 2) // [rank=4, in=2]
	B := ctx.FromFloats([]float32{1, 0, 1, 0, 0, 1, 0, 1}, 2, 4)     // [out=2, rank=4]
	if err := a.AddAdapter("lora0", A, B, 2*4); err != nil {        // alpha=8 -> scale=2.0
		t.Fatalf("AddAdapter: %v", err)
	}

	x := ctx.FromFloats([]float32{1, 2}, 1, 2)
	before := a.Forward(ctx, x).Floats()

	if err := a.MergeWeights(ctx); err != nil {
		t.Fatalf("MergeWeights: %v", err)
	}
	after := a.LoraForward(ctx, x, nil, 1, 0).Floats()
	closeEnough(t, before, after, 1e-5)

	// Idempotent: merging again is a no-op and leaves the result unchanged.
	weightBefore := a.Weight.Floats()
	if err := a.MergeWeights(ctx); err != nil {
		t.Fatalf("second MergeWeights: %v", err)
	}
	closeEnough(t, a.Weight.Floats(), weightBefore, 0)

	if err := a.AddAdapter("lora1", A, B, 1); err == nil {
		t.Fatalf("AddAdapter after merge should be rejected")
	}
}
