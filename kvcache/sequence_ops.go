package kvcache

import (
	"fmt"
	"math"

	"github.com/inferno-run/coreinfer/ml"
)

// CopyPrefix copies the first `shared` cached tokens of srcSeq's slot into
// dstSeq's slot, for every layer, the operation a scheduler uses when two
// sequences fork from a common prompt prefix instead of re-running prefill.
func (c *Causal) CopyPrefix(ctx ml.Context, srcSeq, dstSeq int, shared int32) error {
	for l := 0; l < c.store.NumLayers(); l++ {
		src := c.store.Get(l, srcSeq, false)
		if err := checkSlot(src); err != nil {
			return fmt.Errorf("kvcache: CopyPrefix: layer %d: %w", l, err)
		}

		if src.empty() {
			if shared != 0 {
				return fmt.Errorf("kvcache: CopyPrefix: layer %d: src seq %d has no cache to share", l, srcSeq)
			}
			c.store.Set(l, dstSeq, Slot{}, false)
			continue
		}

		cached := int32(src.cachedLen())
		if shared < 0 || shared > cached {
			return fmt.Errorf("kvcache: CopyPrefix: layer %d: shared=%d out of range [0,%d]", l, shared, cached)
		}

		k := src.K.Slice(ctx, 1, 0, int(shared))
		v := src.V.Slice(ctx, 1, 0, int(shared))
		c.store.Set(l, dstSeq, Slot{K: k, V: v}, false)
	}
	return nil
}

// Remove deletes the cached tokens in [beginIndex, endIndex) from seq's
// slot, for every layer, shifting anything cached after endIndex down to
// close the gap. endIndex == math.MaxInt32 means "to the end", i.e. a plain
// truncation with no shift.
//
// Unlike the teacher's shared cell table, a slot here holds exactly one
// sequence's contiguous cache, so removing a middle range is a plain
// slice-and-concat; there is no cross-sequence sharing to protect and so no
// need for the teacher's RoPE position-shift pass over surviving cells.
func (c *Causal) Remove(ctx ml.Context, seq int, beginIndex, endIndex int32) error {
	if beginIndex < 0 || endIndex < beginIndex {
		return fmt.Errorf("kvcache: Remove: invalid range [%d,%d)", beginIndex, endIndex)
	}

	for l := 0; l < c.store.NumLayers(); l++ {
		slot := c.store.Get(l, seq, false)
		if slot.empty() {
			continue
		}

		cached := int32(slot.cachedLen())
		begin := beginIndex
		if begin > cached {
			begin = cached
		}
		end := endIndex
		if end == math.MaxInt32 || end > cached {
			end = cached
		}
		if begin >= end {
			continue
		}

		var k, v ml.Tensor
		if begin == 0 {
			k, v = nil, nil
		} else {
			k = slot.K.Slice(ctx, 1, 0, int(begin))
			v = slot.V.Slice(ctx, 1, 0, int(begin))
		}

		if end < cached {
			tailK := slot.K.Slice(ctx, 1, int(end), int(cached))
			tailV := slot.V.Slice(ctx, 1, int(end), int(cached))
			if k == nil {
				k, v = tailK, tailV
			} else {
				k = k.Concat(ctx, tailK, 1)
				v = v.Concat(ctx, tailV, 1)
			}
		}

		c.store.Set(l, seq, Slot{K: k, V: v}, false)
	}

	return nil
}
