// Package adapter implements the LoRA/X-LoRA adapter layer (spec.md C9): a
// tagged-union projection that is either a plain base linear or a base
// linear plus an ordered list of low-rank corrections, so callers write one
// forward contract regardless of whether adapters are attached — the
// "dynamic dispatch over adapter-wrapped vs plain projections" design note
// resolved as a single Adapted type whose adapter list may be empty, rather
// than a Plain/Adapted interface hierarchy.
package adapter

import "github.com/inferno-run/coreinfer/ml"

// lora is one attached low-rank correction: (x·A^T)·B^T scaled by
// alpha/rank.
type lora struct {
	name  string
	a, b  ml.Tensor // a: [rank, in], b: [out, rank]
	rank  float32
	alpha float32
}

func (l *lora) scale() float32 { return l.alpha / l.rank }

// Scalings carries the X-LoRA classifier's per-token, per-layer, per-adapter
// weight tensor (shape [numTokens, numLayers*numAdapters], this module's
// flattened-batch row convention) plus which layer and adapter slot a
// particular LoraForward call should read.
type Scalings struct {
	Tensor      ml.Tensor
	NumLayers   int
	NumAdapters int
}

// columnFor extracts the per-token weight column for (layer, adapterIdx),
// one value per row of the batch this step is running.
func (s *Scalings) columnFor(layer, adapterIdx int) []float32 {
	numTokens := s.Tensor.Dim(0)
	width := s.NumLayers * s.NumAdapters
	col := layer*s.NumAdapters + adapterIdx
	vals := s.Tensor.Floats()

	out := make([]float32, numTokens)
	for tok := 0; tok < numTokens; tok++ {
		out[tok] = vals[tok*width+col]
	}
	return out
}

// Adapted is a base projection (weight plus optional bias) with zero or
// more attached LoRA adapters. A freshly-loaded projection with no adapters
// behaves exactly like a plain linear.
type Adapted struct {
	Weight ml.Tensor `gguf:"weight"`
	Bias   ml.Tensor `gguf:"bias"`

	layer    int
	adapters []*lora
	merged   bool
}

// SetLayer records which decoder layer this projection belongs to, used to
// index Scalings during the X-LoRA pass.
func (a *Adapted) SetLayer(layer int) { a.layer = layer }

// AddAdapter attaches a new LoRA correction. Adapters are applied in the
// order added, and adding one after MergeWeights has run is a programmer
// error (the merged base already reflects every adapter known at merge
// time).
func (a *Adapted) AddAdapter(name string, A, B ml.Tensor, alpha float32) error {
	if a.merged {
		return errMergedAdapterList
	}
	a.adapters = append(a.adapters, &lora{name: name, a: A, b: B, rank: float32(A.Dim(0)), alpha: alpha})
	return nil
}

// Forward is LoraForward with no scaling tensor: every attached adapter
// contributes at weight 1 (global_weight defaults to 1, no X-LoRA pass).
func (a *Adapted) Forward(ctx ml.Context, x ml.Tensor) ml.Tensor {
	return a.LoraForward(ctx, x, nil, 1, 0)
}

// LoraForward implements spec.md §4.9: base(x) plus, for every attached
// adapter i, weight_i * scale_i * (B_i · (A_i · x)), where weight_i is
// global_weight * scalings[:, layer, i] during the full pass, or the scalar
// scalingPass during the X-LoRA short scaling-estimation pass (scalings ==
// nil and scalingPass != 0). With no scalings and no scalingPass, weight_i
// is 1 — a plain multi-adapter sum, the non-X-LoRA case.
func (a *Adapted) LoraForward(ctx ml.Context, x ml.Tensor, scalings *Scalings, globalWeight float32, scalingPass float32) ml.Tensor {
	out := x.Mulmat(ctx, a.Weight.Permute(ctx, 1, 0))
	if a.Bias != nil {
		out = out.Add(ctx, a.Bias)
	}
	if len(a.adapters) == 0 {
		return out
	}

	for i, ad := range a.adapters {
		down := x.Mulmat(ctx, ad.a.Permute(ctx, 1, 0))         // [rows, rank]
		contribution := down.Mulmat(ctx, ad.b.Permute(ctx, 1, 0)) // [rows, out]
		contribution = contribution.Scale(ctx, float64(ad.scale()))

		switch {
		case scalings != nil:
			contribution = scaleRows(ctx, contribution, scalings.columnFor(a.layer, i), globalWeight)
		case scalingPass != 0:
			contribution = contribution.Scale(ctx, float64(scalingPass))
		}

		out = out.Add(ctx, contribution)
	}
	return out
}

// MergeWeights folds every attached adapter into the base weight —
// base + Σ scale_i * B_i·A_i — and empties the adapter list. After merging,
// Forward/LoraForward(x, nil, ...) is numerically the premerge result, and
// the call is idempotent: merging an already-merged projection is a no-op.
func (a *Adapted) MergeWeights(ctx ml.Context) error {
	if a.merged {
		return nil
	}
	for _, ad := range a.adapters {
		delta := ad.b.Mulmat(ctx, ad.a).Scale(ctx, float64(ad.scale()))
		a.Weight = a.Weight.Add(ctx, delta)
	}
	a.adapters = nil
	a.merged = true
	return nil
}

// scaleRows multiplies each row (token) of a [numTokens, D] tensor by
// weight[tok]*global, the per-token X-LoRA scaling application.
func scaleRows(ctx ml.Context, t ml.Tensor, weight []float32, global float32) ml.Tensor {
	n := t.Dim(0)
	d := t.Dim(1)
	src := t.Floats()
	out := make([]float32, len(src))
	for tok := 0; tok < n; tok++ {
		w := float64(weight[tok] * global)
		lo := tok * d
		for i := 0; i < d; i++ {
			out[lo+i] = src[lo+i] * float32(w)
		}
	}
	return ctx.FromFloats(out, n, d)
}
