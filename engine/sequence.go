// Package engine is the step orchestrator (spec.md C11): it marshals a
// group of sequences' pending tokens into one model.Forward call, moves
// cache state in and out of the model's store around that call, and
// advances each sequence's state machine. It is intentionally the only
// place in this module that calls model.Forward directly — every other
// package only ever builds the pieces a step composes.
package engine

import (
	"github.com/google/uuid"

	"github.com/inferno-run/coreinfer/kvcache"
)

// State is a sequence's position in the new → prefilled → decoded →
// finished lifecycle (spec.md §4.11). A sequence may return to new by a
// caller-issued reset+prefill pair, e.g. after a prefix-cache hit picks a
// different shared prefix.
type State int

const (
	StateNew State = iota
	StatePrefilled
	StateDecoded
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StatePrefilled:
		return "prefilled"
	case StateDecoded:
		return "decoded"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Sequence is one generation request's scheduling state: the token history
// the orchestrator marshals from, which store batch index it currently
// occupies, its own copy of the per-layer cache contents, and its
// lifecycle state.
type Sequence struct {
	ID         uuid.UUID
	BatchIndex int
	Tokens     []int32
	Shadow     *kvcache.ShadowSet
	State      State
}

// NewSequence returns a fresh sequence with the given prompt tokens,
// ready for a prefill step once assigned a batch index.
func NewSequence(id uuid.UUID, prompt []int32, shadow *kvcache.ShadowSet) *Sequence {
	return &Sequence{ID: id, Tokens: append([]int32(nil), prompt...), Shadow: shadow, State: StateNew}
}

// Append records a newly generated token, the caller's job after sampling
// a decode step's logits.
func (s *Sequence) Append(token int32) { s.Tokens = append(s.Tokens, token) }

// PreOp selects what a step does to the cache store before calling
// Model.Forward.
type PreOp int

const (
	PreNoOp PreOp = iota
	// PreCloneIn copies every sequence's shadow cache state into the
	// store at its batch index.
	PreCloneIn
	// PreReset clears the entire primary slot set first.
	PreReset
)

// PostOp selects what a step does to the cache store after Model.Forward
// returns.
type PostOp int

const (
	PostNoOp PostOp = iota
	// PostCloneOut copies the store's state at each sequence's batch
	// index back into that sequence's shadow set.
	PostCloneOut
	PostReset
)
