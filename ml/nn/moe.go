package nn

import (
	"math"
	"sort"
	"sync"

	"github.com/inferno-run/coreinfer/ml"
	"golang.org/x/sync/errgroup"
)

func expf32(x float32) float32 { return float32(math.Exp(float64(x))) }

// MoE is the Mixture-of-Experts feed-forward variant: a router produces a
// softmax distribution over all experts for every token, the top-k of that
// distribution is renormalized to sum to one, and each expert's dense MLP
// runs only against the rows routed to it — a bucket-sort scatter instead
// of a one-hot expansion that would cost O(tokens * experts) regardless of
// how sparse the routing is.
type MoE struct {
	Router  *Linear        `gguf:"gate_inp"`
	Experts []*FeedForward `gguf:"exps"`
	TopK    int
}

// Forward runs the MoE block over t, shaped [numTokens, hiddenSize].
func (m *MoE) Forward(ctx ml.Context, t ml.Tensor) ml.Tensor {
	numTokens := t.Dim(0)
	hiddenSize := t.Dim(1)
	numExperts := len(m.Experts)

	logits := m.Router.Forward(ctx, t).Floats() // [numTokens, numExperts], token-major
	probs := softmaxOverExperts(logits, numTokens, numExperts)

	buckets := make([][]int, numExperts)
	weights := make([][]float32, numExperts)
	for tok := 0; tok < numTokens; tok++ {
		top := topKExperts(probs, tok, numExperts, m.TopK)

		var sum float32
		for _, e := range top {
			sum += probs[tok*numExperts+e]
		}
		for _, e := range top {
			w := probs[tok*numExperts+e] / sum
			buckets[e] = append(buckets[e], tok)
			weights[e] = append(weights[e], w)
		}
	}

	src := t.Floats()
	acc := make([]float32, numTokens*hiddenSize)
	var mu sync.Mutex

	var g errgroup.Group
	for e := 0; e < numExperts; e++ {
		idx := buckets[e]
		if len(idx) == 0 {
			// No token routed here this step; this expert's contribution to
			// the accumulator stays zero.
			continue
		}
		w := weights[e]
		expert := m.Experts[e]

		g.Go(func() error {
			gathered := make([]float32, len(idx)*hiddenSize)
			for i, tok := range idx {
				copy(gathered[i*hiddenSize:(i+1)*hiddenSize], src[tok*hiddenSize:(tok+1)*hiddenSize])
			}

			out := expert.Forward(ctx, ctx.FromFloats(gathered, len(idx), hiddenSize))
			outFlat := out.Floats()

			mu.Lock()
			for i, tok := range idx {
				for d := 0; d < hiddenSize; d++ {
					acc[tok*hiddenSize+d] += w[i] * outFlat[i*hiddenSize+d]
				}
			}
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return ctx.FromFloats(acc, numTokens, hiddenSize)
}

// softmaxOverExperts normalizes logits (token-major, [numTokens,
// numExperts]) over the expert axis, independently per token row.
func softmaxOverExperts(logits []float32, numTokens, numExperts int) []float32 {
	out := make([]float32, len(logits))
	for tok := 0; tok < numTokens; tok++ {
		lo := tok * numExperts
		max := logits[lo]
		for e := 1; e < numExperts; e++ {
			if v := logits[lo+e]; v > max {
				max = v
			}
		}
		var sum float32
		for e := 0; e < numExperts; e++ {
			v := expf32(logits[lo+e] - max)
			out[lo+e] = v
			sum += v
		}
		for e := 0; e < numExperts; e++ {
			out[lo+e] /= sum
		}
	}
	return out
}

// topKExperts returns the indices of the k experts with the highest
// probability for token tok, ties broken toward the lower expert index.
func topKExperts(probs []float32, tok, numExperts, k int) []int {
	lo := tok * numExperts
	idx := make([]int, numExperts)
	for e := range idx {
		idx[e] = e
	}
	sort.SliceStable(idx, func(i, j int) bool {
		a, b := idx[i], idx[j]
		pa, pb := probs[lo+a], probs[lo+b]
		if pa != pb {
			return pa > pb
		}
		return a < b
	})
	if k > numExperts {
		k = numExperts
	}
	return idx[:k]
}
