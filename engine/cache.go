package engine

import "github.com/inferno-run/coreinfer/model"

// SetNoneCache implements spec.md §6's set_none_cache(reset_secondary,
// modify_draft_cache), the scheduler's recovery operation after a failed
// step: it clears the primary cache slots before a batch index is handed
// to a new sequence, per §7's "the scheduler is expected to ... invoke
// set_none_cache before reusing slots". resetSecondary additionally clears
// the snapshot slots the X-LoRA scaling pass uses. This module has no
// draft/speculative-decoding model, so modifyDraftCache exists only for
// parity with spec.md's external step interface and is otherwise unused.
func SetNoneCache(m model.Model, resetSecondary, modifyDraftCache bool) error {
	store, err := cacheStore(m, "SetNoneCache")
	if err != nil {
		return err
	}

	func() {
		unlock := store.LockPrimary()
		defer unlock()
		store.Reset(false)
	}()

	if resetSecondary {
		unlock := store.LockSnapshot()
		defer unlock()
		store.Reset(true)
	}

	_ = modifyDraftCache

	return nil
}
