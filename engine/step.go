package engine

import (
	"fmt"

	"github.com/inferno-run/coreinfer/adapter"
	"github.com/inferno-run/coreinfer/kvcache"
	"github.com/inferno-run/coreinfer/ml"
	"github.com/inferno-run/coreinfer/model"
	"github.com/inferno-run/coreinfer/model/input"
)

// storeHolder is implemented by kvcache.Causal; the orchestrator needs
// direct access to the store's clone-in/out/reset primitives, which sit
// below the per-layer Cache interface every architecture's Forward call
// uses.
type storeHolder interface {
	Store() *kvcache.Store
}

// Step runs one forward pass over seqs per spec.md §4.11: marshal inputs,
// apply preOp, call the model, apply postOp, and advance every sequence's
// lifecycle state. The returned tensor is the model's raw logits, one row
// per batch.Outputs entry (one per sequence for both prefill and decode,
// in sequence order) — sampling is the caller's job.
//
// preOp and postOp run while the store's primary lock is held, so the
// whole clone-in → forward → clone-out sequence for one step is
// serialized against any other step on the same model, matching the
// "uncontended by construction" concurrency model.
func Step(ctx ml.Context, m model.Model, seqs []*Sequence, isPrompt bool, preOp PreOp, postOp PostOp) (ml.Tensor, error) {
	return stepWithScalings(ctx, m, seqs, isPrompt, preOp, postOp, nil, 0, 0)
}

// stepWithScalings is Step generalized with the X-LoRA two-pass
// parameters, so both the plain path and StepXLoRA's main pass share one
// marshal → preOp → forward → postOp sequence.
func stepWithScalings(ctx ml.Context, m model.Model, seqs []*Sequence, isPrompt bool, preOp PreOp, postOp PostOp, scalings *adapter.Scalings, globalWeight, scalingPass float32) (ml.Tensor, error) {
	if len(seqs) == 0 {
		return nil, &Error{Kind: KindState, Op: "Step", Err: fmt.Errorf("no sequences")}
	}

	store, err := cacheStore(m, "Step")
	if err != nil {
		return nil, err
	}

	unlock := store.LockPrimary()
	defer unlock()

	batch, err := marshalBatch(ctx, seqs, isPrompt)
	if err != nil {
		return nil, err
	}
	batch.Scalings = scalings
	batch.GlobalWeight = globalWeight
	batch.ScalingPass = scalingPass

	if err := applyPreOp(store, seqs, preOp); err != nil {
		return nil, err
	}

	logits, err := model.Forward(ctx, m, batch)
	if err != nil {
		return nil, &Error{Kind: KindKernel, Op: "Forward", Err: err}
	}
	ctx.Compute(logits)

	if err := applyPostOp(store, seqs, postOp); err != nil {
		return nil, err
	}

	for _, s := range seqs {
		if s.State == StateNew {
			s.State = StatePrefilled
		} else {
			s.State = StateDecoded
		}
	}

	return logits, nil
}

// cacheStore resolves the kvcache.Store behind m's Cache, the lookup every
// cache-touching orchestrator entry point needs before it can take a lock.
func cacheStore(m model.Model, op string) (*kvcache.Store, error) {
	cache := m.Config().Cache
	holder, ok := cache.(storeHolder)
	if !ok {
		return nil, &Error{Kind: KindState, Op: op, Err: fmt.Errorf("cache does not expose a store")}
	}
	return holder.Store(), nil
}

func marshalBatch(ctx ml.Context, seqs []*Sequence, isPrompt bool) (input.Batch, error) {
	if isPrompt {
		return marshalPrefill(ctx, seqs)
	}
	return marshalDecode(ctx, seqs)
}

func applyPreOp(store *kvcache.Store, seqs []*Sequence, op PreOp) error {
	switch op {
	case PreNoOp:
		return nil
	case PreReset:
		store.Reset(false)
		return nil
	case PreCloneIn:
		indices, shadows := collect(seqs)
		if err := store.CloneIn(indices, shadows, false); err != nil {
			return &Error{Kind: KindState, Op: "CloneIn", Err: err}
		}
		return nil
	default:
		return &Error{Kind: KindState, Op: "applyPreOp", Err: fmt.Errorf("unknown PreOp %d", op)}
	}
}

func applyPostOp(store *kvcache.Store, seqs []*Sequence, op PostOp) error {
	switch op {
	case PostNoOp:
		return nil
	case PostReset:
		store.Reset(false)
		return nil
	case PostCloneOut:
		indices, shadows := collect(seqs)
		if err := store.CloneOut(indices, shadows, false); err != nil {
			return &Error{Kind: KindState, Op: "CloneOut", Err: err}
		}
		return nil
	default:
		return &Error{Kind: KindState, Op: "applyPostOp", Err: fmt.Errorf("unknown PostOp %d", op)}
	}
}

func collect(seqs []*Sequence) ([]int, []*kvcache.ShadowSet) {
	indices := make([]int, len(seqs))
	shadows := make([]*kvcache.ShadowSet, len(seqs))
	for i, s := range seqs {
		indices[i] = s.BatchIndex
		shadows[i] = s.Shadow
	}
	return indices, shadows
}
