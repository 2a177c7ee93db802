package kvcache

import (
	"fmt"

	"github.com/inferno-run/coreinfer/ml"
	"github.com/inferno-run/coreinfer/model/input"
)

// Cache is the model-facing interface model.Base.Config().Cache exposes.
// A Causal cache wraps a Store and, across one forward pass, answers the
// per-layer "append these new keys/values, give me back everything this
// layer's attention should see" question every decoder layer asks.
type Cache interface {
	StartForward(ctx ml.Context, batch input.Batch, reserve bool) error
	SetLayer(layer int)

	// Put appends newK/newV (batched in row order, one contiguous run of
	// rows per sequence) to the current layer's slots and returns one
	// Chunk per sequence run, each carrying that sequence's full K/V
	// (after any sliding-window trim) and the mask its rows should use.
	Put(ctx ml.Context, newK, newV ml.Tensor) ([]Chunk, error)

	CopyPrefix(ctx ml.Context, srcSeq, dstSeq int, shared int32) error
	Remove(ctx ml.Context, seq int, beginIndex, endIndex int32) error
	Close()
}

// Chunk is one contiguous run of batch rows belonging to the same
// sequence, together with that sequence's cache contents after Put.
type Chunk struct {
	BatchIndex int
	RowOffset  int
	QLen       int
	K, V       ml.Tensor
	Mask       ml.Tensor
}

// Causal is the Cache implementation every architecture in this module
// uses. Sequence lifetime (shadow sets, clone-in/out around a step) is the
// step orchestrator's job; Causal itself only ever touches the store's
// primary slot set, which the orchestrator has already cloned the right
// sequences into before calling Model.Forward.
type Causal struct {
	store    *Store
	curLayer int
	batch    input.Batch
	// rowToBatchIndex[i] is the store batch index backing row i of the
	// current batch.
	rowToBatchIndex []int
}

// NewCausalCache returns a Cache backed by a fresh Store with the given
// per-layer sliding-window configuration.
func NewCausalCache(numLayers, batchSize int, layers []LayerConfig) (*Causal, error) {
	store, err := NewStore(numLayers, batchSize, layers)
	if err != nil {
		return nil, err
	}
	return &Causal{store: store}, nil
}

// Store exposes the underlying store so the step orchestrator can call
// LockPrimary/CloneIn/CloneOut/Reset around a step.
func (c *Causal) Store() *Store { return c.store }

// StartForward records the batch's sequence-to-row layout the rest of the
// step's Put calls use to figure out, for each row, which store slot it
// writes to and where one sequence's rows in the batch begin and end.
// batch.Sequences names the store batch index backing each row directly —
// the step orchestrator is responsible for assigning sequences to store
// slots before building the batch.
func (c *Causal) StartForward(ctx ml.Context, batch input.Batch, reserve bool) error {
	if len(batch.Sequences) == 0 {
		return fmt.Errorf("kvcache: StartForward: empty batch")
	}
	c.batch = batch
	c.curLayer = 0
	c.rowToBatchIndex = batch.Sequences
	return nil
}

func (c *Causal) SetLayer(layer int) { c.curLayer = layer }

// Put appends newK/newV for the current layer, one contiguous run of rows
// per sequence, trimming each sequence's slot per its layer's sliding
// window policy, and returns the per-sequence chunks the attention op
// should run against.
func (c *Causal) Put(ctx ml.Context, newK, newV ml.Tensor) ([]Chunk, error) {
	cfg := c.store.layers[c.curLayer]
	runs := groupRuns(c.rowToBatchIndex)

	chunks := make([]Chunk, 0, len(runs))
	for _, r := range runs {
		k := newK.Slice(ctx, 1, r.offset, r.offset+r.length)
		v := newV.Slice(ctx, 1, r.offset, r.offset+r.length)

		slot := c.store.Get(c.curLayer, r.batchIndex, false)
		fullK, fullV, offset, err := appendSlot(ctx, slot, k, v, cfg)
		if err != nil {
			return nil, fmt.Errorf("kvcache: Put: layer %d seq %d: %w", c.curLayer, r.batchIndex, err)
		}
		c.store.Set(c.curLayer, r.batchIndex, Slot{K: fullK, V: fullV}, false)

		kLen := fullK.Dim(1)
		var mask ml.Tensor
		if cfg.sliding() {
			mask = MakeCausalWithSliding(ctx, r.length, kLen, offset, cfg.Window, ml.DTypeF32)
		} else {
			mask = MakeCausal(ctx, r.length, kLen, offset, ml.DTypeF32)
		}

		chunks = append(chunks, Chunk{
			BatchIndex: r.batchIndex,
			RowOffset:  r.offset,
			QLen:       r.length,
			K:          fullK,
			V:          fullV,
			Mask:       mask,
		})
	}

	return chunks, nil
}

// appendSlot concatenates newK/newV onto slot along axis 1 (the time axis —
// axis 0 is the head axis, axis 2 is headDim, the axis RMSNorm/Softmax/RoPE
// operate over), applying the layer's sliding-window trim, and returns the
// resulting K, V and the query offset (the position of the first new token
// relative to the start of the resulting K/V) for mask construction.
func appendSlot(ctx ml.Context, slot Slot, newK, newV ml.Tensor, cfg LayerConfig) (ml.Tensor, ml.Tensor, int, error) {
	if err := checkSlot(slot); err != nil {
		return nil, nil, 0, err
	}

	var k, v ml.Tensor
	offset := 0
	if slot.empty() {
		k, v = newK, newV
	} else {
		offset = slot.cachedLen()
		k = slot.K.Concat(ctx, newK, 1)
		v = slot.V.Concat(ctx, newV, 1)
	}

	if !cfg.sliding() {
		return k, v, offset, nil
	}

	total := k.Dim(1)
	threshold := cfg.Window
	if cfg.Policy == Policy2x {
		threshold = 2 * cfg.Window
	}

	if total <= threshold {
		return k, v, offset, nil
	}

	keep := cfg.Window
	low := total - keep
	trimmedK := k.Slice(ctx, 1, low, total)
	trimmedV := v.Slice(ctx, 1, low, total)
	return trimmedK, trimmedV, offset - low, nil
}

type run struct {
	batchIndex int
	offset     int
	length     int
}

// groupRuns splits rowToBatchIndex into contiguous runs of equal value. It
// assumes a batch never interleaves two sequences' rows: each sequence's
// rows form one contiguous run, which is how marshalPrefill and
// marshalDecode lay out a batch (several multi-token prefill runs, or one
// row per decoding sequence).
func groupRuns(rowToBatchIndex []int) []run {
	var runs []run
	for i, b := range rowToBatchIndex {
		if len(runs) > 0 && runs[len(runs)-1].batchIndex == b {
			runs[len(runs)-1].length++
			continue
		}
		runs = append(runs, run{batchIndex: b, offset: i, length: 1})
	}
	return runs
}

func (c *Causal) Close() {}
