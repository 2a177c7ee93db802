package cpu

import (
	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/inferno-run/coreinfer/ml"
)

// quantBuffer is a block-quantized buffer: n values split into blocks of
// ml.DType.BlockSize() elements, each block sharing one float32 scale. This
// is a symmetric linear quantizer, not bit-for-bit compatible with GGUF's
// Q4_0/Q8_0 layout (which additionally packs 4-bit codes two to a byte and
// keeps the scale in float16) — the backend only needs the abstraction
// (lossy storage, promote-to-f32-to-compute) to hold, not the exact byte
// layout, since a quantized tensor loaded from a GGUF file is dequantized
// from its on-disk layout and requantized into this format once, at load
// time (see Backend.Get).
type quantBuffer struct {
	dtype  ml.DType
	n      int
	scales []float32
	codes  []int8
}

func quantRange(dtype ml.DType) int8 {
	if dtype == ml.DTypeQ4_0 {
		return 7
	}
	return 127
}

func quantize(v []float32, dtype ml.DType) *quantBuffer {
	blockSize := dtype.BlockSize()
	numBlocks := (len(v) + blockSize - 1) / blockSize
	qb := &quantBuffer{dtype: dtype, n: len(v), scales: make([]float32, numBlocks), codes: make([]int8, len(v))}
	maxCode := quantRange(dtype)

	for blk := 0; blk < numBlocks; blk++ {
		lo := blk * blockSize
		hi := lo + blockSize
		if hi > len(v) {
			hi = len(v)
		}

		var maxAbs float32
		for _, x := range v[lo:hi] {
			if a := absf32(x); a > maxAbs {
				maxAbs = a
			}
		}

		scale := maxAbs / float32(maxCode)
		if scale == 0 {
			scale = 1
		}
		qb.scales[blk] = scale

		for i := lo; i < hi; i++ {
			code := int32(v[i]/scale + signf32(v[i])*0.5)
			if code > int32(maxCode) {
				code = int32(maxCode)
			}
			if code < -int32(maxCode) {
				code = -int32(maxCode)
			}
			qb.codes[i] = int8(code)
		}
	}

	return qb
}

func (qb *quantBuffer) dequantize() []float32 {
	blockSize := qb.dtype.BlockSize()
	out := make([]float32, qb.n)
	for i := 0; i < qb.n; i++ {
		scale := qb.scales[i/blockSize]
		out[i] = float32(qb.codes[i]) * scale
	}
	return out
}

func absf32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

func signf32(x float32) float32 {
	if x < 0 {
		return -1
	}
	return 1
}

// roundTripF16 rounds every value to its nearest float16 representation and
// back, used by Cast(DTypeF16) so that data carried as "f16" actually loses
// the precision a real f16 tensor would.
func roundTripF16(v []float32) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float16.Fromfloat32(x).Float32()
	}
	return out
}

// roundTripBF16 is roundTripF16 for bfloat16, via go-bfloat16's encode/decode
// pair so the truncation matches a real bf16 buffer's mantissa loss.
func roundTripBF16(v []float32) []float32 {
	return bfloat16.Decode(bfloat16.Encode(v))
}
