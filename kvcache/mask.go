package kvcache

import (
	"math"

	"github.com/inferno-run/coreinfer/ml"
)

var negInf = float32(math.Inf(-1))

// MakeCausal builds a [qLen, kLen] mask with 0 at positions j <= i+offset
// and -Inf elsewhere, or returns nil if qLen == 1 and offset == 0 (a fresh
// single-token prefill against an empty cache attends everywhere it's
// allowed to anyway, so spec.md treats that case as no mask).
func MakeCausal(ctx ml.Context, qLen, kLen, offset int, dtype ml.DType) ml.Tensor {
	if qLen == 1 && offset == 0 {
		return nil
	}

	vals := make([]float32, qLen*kLen)
	for i := 0; i < qLen; i++ {
		for j := 0; j < kLen; j++ {
			if j > i+offset {
				vals[i*kLen+j] = negInf
			}
		}
	}

	t := ctx.FromFloats(vals, qLen, kLen)
	if dtype != ml.DTypeF32 {
		t = t.Cast(ctx, dtype)
	}
	return t
}

// MakeCausalWithSliding is MakeCausal, additionally masking any position k
// where i+offset-k >= window.
func MakeCausalWithSliding(ctx ml.Context, qLen, kLen, offset, window int, dtype ml.DType) ml.Tensor {
	vals := make([]float32, qLen*kLen)
	for i := 0; i < qLen; i++ {
		for j := 0; j < kLen; j++ {
			if j > i+offset || i+offset-j >= window {
				vals[i*kLen+j] = negInf
			}
		}
	}

	t := ctx.FromFloats(vals, qLen, kLen)
	if dtype != ml.DTypeF32 {
		t = t.Cast(ctx, dtype)
	}
	return t
}
