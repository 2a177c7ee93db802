package engine

import (
	"fmt"

	"github.com/inferno-run/coreinfer/adapter"
	"github.com/inferno-run/coreinfer/kvcache"
	"github.com/inferno-run/coreinfer/ml"
	"github.com/inferno-run/coreinfer/model"
	"github.com/inferno-run/coreinfer/xlora"
)

// StepXLoRA runs spec.md's X-LoRA two-pass protocol (§1(e), §4.9, §4.11,
// and the "two-pass X-LoRA control flow" design note): a short scaling
// pass over every sequence's full pending prompt, using the cache store's
// snapshot slots so the primary slots a plain Step would continue from are
// left undisturbed, whose final hidden states the classifier turns into
// per-token, per-layer, per-adapter scalings — then the main pass, an
// ordinary prefill Step with those scalings applied to every
// adapter-wrapped projection.
//
// seqs must be starting a prefill: the scaling pass always runs over each
// sequence's complete pending token list, since the classifier estimates
// its weights from the whole context, not a single decode token.
func StepXLoRA(ctx ml.Context, m model.Model, seqs []*Sequence, classifier *xlora.Classifier, globalWeight float32) (ml.Tensor, error) {
	if len(seqs) == 0 {
		return nil, &Error{Kind: KindState, Op: "StepXLoRA", Err: fmt.Errorf("no sequences")}
	}

	store, err := cacheStore(m, "StepXLoRA")
	if err != nil {
		return nil, err
	}

	scalings, err := runScalingPass(ctx, m, seqs, store, classifier)
	if err != nil {
		return nil, err
	}

	return stepWithScalings(ctx, m, seqs, true, PreCloneIn, PostCloneOut, scalings, globalWeight, 0)
}

// runScalingPass is the X-LoRA classifier's short forward: clone every
// sequence's shadow state into the snapshot slots, run the model once over
// the full prompt with a scalar per-adapter weight, read the resulting
// hidden states back through model.HiddenStater, and clear the snapshot
// slots again so the pass leaves nothing for the main pass to trip over.
func runScalingPass(ctx ml.Context, m model.Model, seqs []*Sequence, store *kvcache.Store, classifier *xlora.Classifier) (*adapter.Scalings, error) {
	hs, ok := m.(model.HiddenStater)
	if !ok {
		return nil, &Error{Kind: KindState, Op: "StepXLoRA", Err: fmt.Errorf("model does not expose hidden states for the X-LoRA scaling pass")}
	}

	unlock := store.LockSnapshot()
	defer unlock()

	batch, err := marshalPrefill(ctx, seqs)
	if err != nil {
		return nil, err
	}
	batch.ScalingPass = 1

	indices, shadows := collect(seqs)
	if err := store.CloneIn(indices, shadows, true); err != nil {
		return nil, &Error{Kind: KindState, Op: "StepXLoRA.CloneIn", Err: err}
	}

	logits, err := model.Forward(ctx, m, batch)
	if err != nil {
		return nil, &Error{Kind: KindKernel, Op: "StepXLoRA.Forward", Err: err}
	}
	ctx.Compute(logits)

	scalings := classifier.Forward(ctx, hs.Hidden())

	store.Reset(true)

	return scalings, nil
}
