// Package kvcache implements the per-layer, per-sequence attention cache:
// a store of key/value slots addressed by (layer, batch index), with
// clone-in/clone-out semantics that let a sequence's cache state travel
// with it as the scheduler moves sequences in and out of batches, and a
// second "snapshot" slot set used by the X-LoRA two-pass protocol so the
// classifier's short pass never disturbs the primary cache.
//
// This is a from-scratch per-sequence slot design; it replaces the
// teacher's shared paged cell-table cache (one big context per layer,
// addressed by absolute cell index) because the owning semantics here are
// different: cache state here belongs to the sequence, not to a position
// in a shared table. The teacher's idioms — a mutex guarding in-flight
// mutation, lazy tensor allocation on first write, one entry per layer —
// carry over; the addressing scheme does not.
package kvcache

import (
	"errors"
	"fmt"

	"github.com/inferno-run/coreinfer/ml"
)

// ErrKvCacheFull names the condition of a sequence's cache slot having
// reached max_seq_len. No code in this package returns it: Causal.Put grows
// a slot without a length limit.
var ErrKvCacheFull = errors.New("kvcache: cache slot is full")

// ErrNotSupported names an operation an architecture's cache configuration
// does not support. No code in this package returns it.
var ErrNotSupported = errors.New("kvcache: operation not supported")

// WindowPolicy selects how a sliding-window layer trims its cache slot
// when a new token is appended.
type WindowPolicy int

const (
	// NoWindow caches every token (full causal attention).
	NoWindow WindowPolicy = iota
	// Policy1x evicts as soon as cached_len would exceed the window,
	// always keeping exactly the most recent W entries.
	Policy1x
	// Policy2x is the historical Llama behavior: the slot is allowed to
	// grow to 2W before eviction fires, which then drops back to W.
	Policy2x
)

// LayerConfig describes one layer's cache behavior.
type LayerConfig struct {
	Window int // 0 means NoWindow regardless of Policy
	Policy WindowPolicy
}

func (c LayerConfig) sliding() bool { return c.Window > 0 && c.Policy != NoWindow }

// Slot is one (layer, sequence) cache entry: K and V of shape
// [numKVHeads, cachedLen, headDim], or both nil when empty. cachedLen is
// the middle axis so the head axis stays first (for repeat-KV broadcast)
// and headDim stays last (the axis RMSNorm, Softmax and RoPE operate over).
type Slot struct {
	K, V ml.Tensor
}

func (s Slot) empty() bool { return s.K == nil }

func (s Slot) cachedLen() int {
	if s.empty() {
		return 0
	}
	return s.K.Dim(1)
}

// checkSlot validates that K and V agree on cached length, the invariant
// whose violation spec.md calls a fatal programmer error.
func checkSlot(s Slot) error {
	if s.empty() {
		return nil
	}
	if s.V == nil {
		return fmt.Errorf("kvcache: slot has K but no V")
	}
	if s.K.Dim(1) != s.V.Dim(1) {
		return fmt.Errorf("kvcache: slot K/V length mismatch: %d vs %d", s.K.Dim(1), s.V.Dim(1))
	}
	return nil
}
