// Package input holds the batch types that engine's marshaller fills from a
// scheduler's per-sequence token streams: the flat tensors a Model.Forward
// call expects, with one token axis,
// one position axis, and a sequence-id axis all the same length, plus an
// Outputs index saying which rows of that axis the caller wants logits for.
package input

import (
	"github.com/inferno-run/coreinfer/adapter"
	"github.com/inferno-run/coreinfer/ml"
)

// Multimodal is an embedding produced by a MultimodalProcessor, opaque to
// everything outside the model package that created it.
type Multimodal struct {
	Tensor ml.Tensor
}

// MultimodalIndex pairs a Multimodal with the position in a Batch's Inputs
// axis it belongs at.
type MultimodalIndex struct {
	Index      int
	Multimodal []Multimodal
}

// Input is one token of one sequence's pending work: either a plain token id
// or, for multimodal sequences, an embedding plus how many trailing tokens
// of the same sequence must be scheduled in the same batch as this one.
type Input struct {
	Token int32

	Multimodal []Multimodal

	// SameBatch is the number of following Inputs that cannot be split into
	// a different batch than this one (a multimodal embedding's tokens).
	SameBatch int
}

// Batch is the flattened view of a forward pass's work: Inputs, Positions
// and Sequences all have the same length, one entry per scheduled token,
// packing possibly many sequences' prefill or decode work into one pass.
type Batch struct {
	// Inputs holds token ids, DTypeI32, shape [n].
	Inputs ml.Tensor

	// Multimodal holds any embeddings that replace a plain token lookup at
	// the named Inputs index.
	Multimodal []MultimodalIndex

	// Positions holds each token's position within its own sequence.
	Positions []int32

	// Sequences holds, for each token, the id of the sequence it belongs to.
	Sequences []int

	// Outputs names which rows of the model's final hidden state the caller
	// wants logits extracted for (generation only needs the last token of
	// each sequence, not every prefilled position).
	Outputs ml.Tensor

	// Scalings, GlobalWeight and ScalingPass carry the X-LoRA two-pass
	// protocol (spec.md §4.6/§4.9) into every adapter-wrapped projection a
	// model's Forward reaches. Scalings is nil outside an X-LoRA run, in
	// which case every Adapted projection falls back to plain LoRA
	// behavior; during the short scaling-estimation pass Scalings is also
	// nil but ScalingPass carries the scalar weight adapters use instead.
	Scalings     *adapter.Scalings
	GlobalWeight float32
	ScalingPass  float32
}
