// Package rope builds the cos/sin lookup tables ml.Tensor.RoPE consumes to
// apply rotary positional encoding, keeping the table-construction math in
// one place shared by every architecture in model/models.
package rope

import (
	"math"

	"github.com/inferno-run/coreinfer/ml"
)

// Options configures rotary encoding for one attention layer.
type Options struct {
	// Dim is the rotary dimension: the leading Dim elements of each head are
	// rotated, the remaining headDim-Dim elements pass through unchanged
	// (phi3's partial rotary factor; Dim == headDim for llama and mixtral).
	Dim int
	// Base is the theta base of the frequency geometric series, 10000 if
	// zero.
	Base float32
	// Scale divides position before computing angles, implementing a
	// YaRN-style linear position scale; 1 (no scaling) if zero.
	Scale float32
}

// Tables precomputes the [maxPos, Dim/2] cos and sin tensors for every
// absolute position in [0, maxPos), the shape ml.Tensor.RoPE indexes by
// integer position. Each architecture's Forward calls it on every step with
// maxPos one past the batch's largest position; the tables are not kept
// between steps.
func Tables(ctx ml.Context, opts Options, maxPos int) (cos, sin ml.Tensor) {
	base := opts.Base
	if base == 0 {
		base = 10000
	}
	scale := opts.Scale
	if scale == 0 {
		scale = 1
	}
	half := opts.Dim / 2

	cosVals := make([]float32, maxPos*half)
	sinVals := make([]float32, maxPos*half)
	for p := 0; p < maxPos; p++ {
		position := float64(p) / float64(scale)
		for i := 0; i < half; i++ {
			freq := 1.0 / math.Pow(float64(base), float64(2*i)/float64(opts.Dim))
			angle := position * freq
			cosVals[p*half+i] = float32(math.Cos(angle))
			sinVals[p*half+i] = float32(math.Sin(angle))
		}
	}

	cos = ctx.FromFloats(cosVals, maxPos, half)
	sin = ctx.FromFloats(sinVals, maxPos, half)
	return cos, sin
}
