package kvcache

import (
	"fmt"
	"sync"
)

// Store is the C3 cache store: primary[layer][batchIndex] holds the slots
// the current step's forward pass reads and writes; snapshot[layer][batchIndex]
// holds a second set used only during the X-LoRA classifier's scaling pass.
// Both lists are owned by the store; sequences hold only opaque shadow
// copies (see ShadowSet) and ask the store to CloneIn before a step and
// CloneOut after, per spec.md's "cyclic references" design note.
type Store struct {
	mu sync.Mutex

	numLayers int
	batchSize int
	layers    []LayerConfig

	primary  [][]Slot
	snapshot [][]Slot
}

// NewStore allocates a store for numLayers layers and a batch of at most
// batchSize concurrent sequences. layers must have length numLayers.
func NewStore(numLayers, batchSize int, layers []LayerConfig) (*Store, error) {
	if len(layers) != numLayers {
		return nil, fmt.Errorf("kvcache: NewStore: got %d layer configs, want %d", len(layers), numLayers)
	}

	s := &Store{
		numLayers: numLayers,
		batchSize: batchSize,
		layers:    append([]LayerConfig(nil), layers...),
		primary:   make([][]Slot, numLayers),
		snapshot:  make([][]Slot, numLayers),
	}
	for l := 0; l < numLayers; l++ {
		s.primary[l] = make([]Slot, batchSize)
		s.snapshot[l] = make([]Slot, batchSize)
	}
	return s, nil
}

func (s *Store) NumLayers() int        { return s.numLayers }
func (s *Store) LayerConfig(l int) LayerConfig { return s.layers[l] }

// LockPrimary acquires the store's mutex for the duration of one step and
// returns the unlock function; spec.md requires this to be uncontended by
// construction (one step at a time per model), so callers should hold it
// across the whole clone-in → forward → clone-out sequence.
func (s *Store) LockPrimary() func() {
	s.mu.Lock()
	return s.mu.Unlock
}

// LockSnapshot is LockPrimary for the snapshot slot set, used around the
// X-LoRA classifier's scaling pass.
func (s *Store) LockSnapshot() func() {
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) slots(useSnapshot bool) [][]Slot {
	if useSnapshot {
		return s.snapshot
	}
	return s.primary
}

// ShadowSet is a sequence's owned copy of its per-layer cache state,
// carried across batches as the scheduler moves it in and out.
type ShadowSet struct {
	Slots []Slot // one per layer
}

// NewShadowSet returns an empty shadow set sized for this store's layer
// count, the state a brand-new sequence starts with.
func (s *Store) NewShadowSet() *ShadowSet {
	return &ShadowSet{Slots: make([]Slot, s.numLayers)}
}

// CloneIn copies each sequence's shadow slots into the store at its batch
// index, for every layer. Call this once per step, before forward, while
// holding the appropriate lock.
func (s *Store) CloneIn(batchIndices []int, shadows []*ShadowSet, useSnapshot bool) error {
	if len(batchIndices) != len(shadows) {
		return fmt.Errorf("kvcache: CloneIn: %d batch indices, %d shadow sets", len(batchIndices), len(shadows))
	}
	target := s.slots(useSnapshot)
	for i, b := range batchIndices {
		if b < 0 || b >= s.batchSize {
			return fmt.Errorf("kvcache: CloneIn: batch index %d out of range [0,%d)", b, s.batchSize)
		}
		for l := 0; l < s.numLayers; l++ {
			if err := checkSlot(shadows[i].Slots[l]); err != nil {
				return fmt.Errorf("kvcache: CloneIn: layer %d: %w", l, err)
			}
			target[l][b] = shadows[i].Slots[l]
		}
	}
	return nil
}

// CloneOut is CloneIn's reverse: it copies the store's current slots at
// each sequence's batch index back into that sequence's shadow set.
func (s *Store) CloneOut(batchIndices []int, shadows []*ShadowSet, useSnapshot bool) error {
	if len(batchIndices) != len(shadows) {
		return fmt.Errorf("kvcache: CloneOut: %d batch indices, %d shadow sets", len(batchIndices), len(shadows))
	}
	source := s.slots(useSnapshot)
	for i, b := range batchIndices {
		if b < 0 || b >= s.batchSize {
			return fmt.Errorf("kvcache: CloneOut: batch index %d out of range [0,%d)", b, s.batchSize)
		}
		for l := 0; l < s.numLayers; l++ {
			shadows[i].Slots[l] = source[l][b]
		}
	}
	return nil
}

// Reset clears every slot in the named slot set.
func (s *Store) Reset(useSnapshot bool) {
	target := s.slots(useSnapshot)
	for l := range target {
		for b := range target[l] {
			target[l][b] = Slot{}
		}
	}
}

// Get returns the current slot at (layer, batchIndex) from the named slot
// set.
func (s *Store) Get(layer, batchIndex int, useSnapshot bool) Slot {
	return s.slots(useSnapshot)[layer][batchIndex]
}

// Set overwrites the slot at (layer, batchIndex).
func (s *Store) Set(layer, batchIndex int, slot Slot, useSnapshot bool) {
	s.slots(useSnapshot)[layer][batchIndex] = slot
}

// CachedLen reports the current cached length at (layer, batchIndex).
func (s *Store) CachedLen(layer, batchIndex int, useSnapshot bool) int {
	return s.Get(layer, batchIndex, useSnapshot).cachedLen()
}
