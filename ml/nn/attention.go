package nn

import (
	"github.com/inferno-run/coreinfer/kvcache"
	"github.com/inferno-run/coreinfer/ml"
)

// Attention runs scaled dot-product attention for one layer. query, key and
// value are [numHeads|numKVHeads, rows, headDim] — headDim last so RoPE,
// Softmax and RMSNorm's last-axis convention applies to it, rows (time) in
// the middle so kvcache can grow a sequence's slot along axis 1 without
// disturbing the head or headDim axes. If cache is non-nil it appends
// key/value to this layer's per-sequence slots and returns, per sequence run
// in the batch, that sequence's full (possibly window-trimmed) key/value
// history and the causal mask its rows should attend under. The per-chunk
// outputs are reassembled into one [numHeads, rows, headDim] tensor in the
// same row order as query.
func Attention(ctx ml.Context, query, key, value ml.Tensor, scale float64, cache kvcache.Cache) (ml.Tensor, error) {
	numHeads := query.Dim(0)

	var chunks []kvcache.Chunk
	if cache != nil {
		var err error
		chunks, err = cache.Put(ctx, key, value)
		if err != nil {
			return nil, err
		}
	} else {
		chunks = []kvcache.Chunk{{RowOffset: 0, QLen: query.Dim(1), K: key, V: value}}
	}

	var out ml.Tensor
	for _, c := range chunks {
		q := query.Slice(ctx, 1, c.RowOffset, c.RowOffset+c.QLen)

		k := repeatKV(ctx, c.K, numHeads)
		v := repeatKV(ctx, c.V, numHeads)

		// scores = q @ k^T: q is [numHeads, qLen, headDim], k^T (via Permute
		// swapping the last two axes) is [numHeads, headDim, kLen] — Mulmat
		// contracts headDim, leaving [numHeads, qLen, kLen].
		kt := k.Permute(ctx, 0, 2, 1)
		scores := q.MulmatFullPrec(ctx, kt)
		scores = scores.Scale(ctx, scale)
		if c.Mask != nil {
			scores = scores.Add(ctx, c.Mask)
		}
		probs := scores.Softmax(ctx)

		// attn = probs @ v: [numHeads, qLen, kLen] @ [numHeads, kLen, headDim]
		// -> [numHeads, qLen, headDim].
		attn := probs.Mulmat(ctx, v)
		if out == nil {
			out = attn
		} else {
			out = out.Concat(ctx, attn, 1)
		}
	}

	return out, nil
}

// repeatKV expands a [numKVHeads, seqLen, headDim] key or value tensor to
// [numHeads, seqLen, headDim] for grouped-query attention: query heads split
// into numKVHeads contiguous groups of numHeads/numKVHeads, each group
// attending to one shared KV head.
func repeatKV(ctx ml.Context, t ml.Tensor, numHeads int) ml.Tensor {
	numKVHeads := t.Dim(0)
	if numKVHeads == numHeads {
		return t
	}

	groupSize := numHeads / numKVHeads
	seqLen := t.Dim(1)
	headDim := t.Dim(2)
	rowWidth := seqLen * headDim

	src := t.Floats()
	out := make([]float32, numHeads*rowWidth)
	for h := 0; h < numHeads; h++ {
		kvh := h / groupSize
		copy(out[h*rowWidth:(h+1)*rowWidth], src[kvh*rowWidth:(kvh+1)*rowWidth])
	}

	return ctx.FromFloats(out, numHeads, seqLen, headDim)
}
