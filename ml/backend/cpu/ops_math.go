package cpu

import (
	"fmt"
	"math"
	"sort"

	"github.com/inferno-run/coreinfer/ml"
)

func shapesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// broadcastShape computes the numpy-style broadcast of two shapes, aligning
// from the trailing axis.
func broadcastShape(a, b []int) []int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		da, db := 1, 1
		if i < len(a) {
			da = a[len(a)-1-i]
		}
		if i < len(b) {
			db = b[len(b)-1-i]
		}
		switch {
		case da == db:
			out[n-1-i] = da
		case da == 1:
			out[n-1-i] = db
		case db == 1:
			out[n-1-i] = da
		default:
			panic(fmt.Sprintf("cpu: shapes %v and %v are not broadcastable", a, b))
		}
	}
	return out
}

func broadcastElementwise(a, b []float32, ashape, bshape []int, op func(x, y float32) float32) ([]float32, []int) {
	out := broadcastShape(ashape, bshape)
	strideA := broadcastStrides(ashape, out)
	strideB := broadcastStrides(bshape, out)
	outStrides := rowMajorStrides(out)

	result := make([]float32, numElements(out))
	idx := make([]int, len(out))
	for flat := range result {
		rem := flat
		for d := range out {
			idx[d] = rem / outStrides[d]
			rem %= outStrides[d]
		}
		var oa, ob int
		for d := range out {
			oa += idx[d] * strideA[d]
			ob += idx[d] * strideB[d]
		}
		result[flat] = op(a[oa], b[ob])
	}
	return result, out
}

// broadcastStrides returns, for a shape broadcast up to out's rank, the
// element stride to use along each axis of out (0 where shape's axis is 1
// and out's isn't).
func broadcastStrides(shape, out []int) []int {
	strides := rowMajorStrides(shape)
	padded := make([]int, len(out))
	offset := len(out) - len(shape)
	for i := range out {
		si := i - offset
		if si < 0 || shape[si] == 1 {
			padded[i] = 0
		} else {
			padded[i] = strides[si]
		}
	}
	return padded
}

func (t *tensor) binOp(ctx ml.Context, t2 ml.Tensor, dense func(a, b []float32, shape []int) ([]float32, error), scalar func(x, y float32) float32) ml.Tensor {
	o := t2.(*tensor)
	a, b := t.floats(), o.floats()
	c := ctx.(*Context)

	if shapesEqual(t.shape, o.shape) {
		if r, err := dense(a, b, t.shape); err == nil {
			out := c.newF32(t.shape, r)
			out.dtype = t.dtype
			return out
		}
	}

	r, shape := broadcastElementwise(a, b, t.shape, o.shape, scalar)
	out := c.newF32(shape, r)
	out.dtype = t.dtype
	return out
}

func (t *tensor) Add(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	return t.binOp(ctx, t2, denseAdd, func(x, y float32) float32 { return x + y })
}

func (t *tensor) Sub(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	return t.binOp(ctx, t2, denseSub, func(x, y float32) float32 { return x - y })
}

func (t *tensor) Mul(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	return t.binOp(ctx, t2, denseMul, func(x, y float32) float32 { return x * y })
}

func (t *tensor) Scale(ctx ml.Context, s float64) ml.Tensor {
	v := t.floats()
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * float32(s)
	}
	c := ctx.(*Context)
	r := c.newF32(t.shape, out)
	r.dtype = t.dtype
	return r
}

// mulmat implements t @ t2 over the last two axes, broadcasting any leading
// batch axes, always accumulating in float32. Both operands are dequantized
// first if block-quantized.
func mulmat(ctx ml.Context, t, t2 *tensor) ml.Tensor {
	rank := len(t.shape)
	m, k := t.shape[rank-2], t.shape[rank-1]
	k2, n := t2.shape[len(t2.shape)-2], t2.shape[len(t2.shape)-1]
	if k != k2 {
		panic(fmt.Sprintf("cpu: Mulmat: inner dims %d and %d don't match", k, k2))
	}

	batchA := numElements(t.shape[:rank-2])
	batchB := numElements(t2.shape[:len(t2.shape)-2])
	batch := batchA
	if batchB > batch {
		batch = batchB
	}

	a := t.floats()
	b := t2.floats()
	if batchA == 1 && batch > 1 {
		a = repeatBatch(a, m*k, batch)
	}
	if batchB == 1 && batch > 1 {
		b = repeatBatch(b, k*n, batch)
	}

	out, err := batchedMatmul(a, b, batch, m, k, n)
	if err != nil {
		panic(err)
	}

	outShape := append(append([]int(nil), t.shape[:rank-2]...), m, n)
	if batchA == 1 {
		outShape = append(append([]int(nil), t2.shape[:len(t2.shape)-2]...), m, n)
	}

	c := ctx.(*Context)
	return c.newF32(outShape, out)
}

func repeatBatch(v []float32, size, times int) []float32 {
	out := make([]float32, size*times)
	for i := 0; i < times; i++ {
		copy(out[i*size:(i+1)*size], v[:size])
	}
	return out
}

func (t *tensor) Mulmat(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	out := mulmat(ctx, t, t2.(*tensor))
	if t.dtype.IsQuantized() {
		return out.(*tensor).Cast(ctx, t.dtype)
	}
	return out
}

// MulmatFullPrec is identical to Mulmat on this backend: every value here is
// already stored or dequantized to float32 before BLAS ever sees it.
func (t *tensor) MulmatFullPrec(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	return mulmat(ctx, t, t2.(*tensor))
}

func (t *tensor) Softmax(ctx ml.Context) ml.Tensor {
	v := t.floats()
	rank := len(t.shape)
	width := t.shape[rank-1]
	out := make([]float32, len(v))

	for row := 0; row < len(v)/width; row++ {
		lo, hi := row*width, (row+1)*width
		max := float32(math.Inf(-1))
		for _, x := range v[lo:hi] {
			if x > max {
				max = x
			}
		}
		var sum float32
		for i := lo; i < hi; i++ {
			e := float32(math.Exp(float64(v[i] - max)))
			out[i] = e
			sum += e
		}
		for i := lo; i < hi; i++ {
			out[i] /= sum
		}
	}

	c := ctx.(*Context)
	return c.newF32(t.shape, out)
}

func (t *tensor) RMSNorm(ctx ml.Context, weight ml.Tensor, eps float32) ml.Tensor {
	v := t.floats()
	w := weight.(*tensor).floats()
	width := t.shape[len(t.shape)-1]
	out := make([]float32, len(v))

	for row := 0; row < len(v)/width; row++ {
		lo := row * width
		var ss float32
		for i := 0; i < width; i++ {
			ss += v[lo+i] * v[lo+i]
		}
		scale := float32(1.0 / math.Sqrt(float64(ss/float32(width)+eps)))
		for i := 0; i < width; i++ {
			out[lo+i] = v[lo+i] * scale * w[i]
		}
	}

	c := ctx.(*Context)
	return c.newF32(t.shape, out)
}

func (t *tensor) LayerNorm(ctx ml.Context, weight, bias ml.Tensor, eps float32) ml.Tensor {
	v := t.floats()
	w := weight.(*tensor).floats()
	var b []float32
	if bias != nil {
		b = bias.(*tensor).floats()
	}
	width := t.shape[len(t.shape)-1]
	out := make([]float32, len(v))

	for row := 0; row < len(v)/width; row++ {
		lo := row * width
		var mean float32
		for i := 0; i < width; i++ {
			mean += v[lo+i]
		}
		mean /= float32(width)

		var variance float32
		for i := 0; i < width; i++ {
			d := v[lo+i] - mean
			variance += d * d
		}
		variance /= float32(width)

		denom := float32(1.0 / math.Sqrt(float64(variance+eps)))
		for i := 0; i < width; i++ {
			norm := (v[lo+i] - mean) * denom * w[i]
			if b != nil {
				norm += b[i]
			}
			out[lo+i] = norm
		}
	}

	c := ctx.(*Context)
	return c.newF32(t.shape, out)
}

func (t *tensor) SILU(ctx ml.Context) ml.Tensor {
	v := t.floats()
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / (1 + float32(math.Exp(float64(-x))))
	}
	c := ctx.(*Context)
	return c.newF32(t.shape, out)
}

func (t *tensor) GELU(ctx ml.Context) ml.Tensor {
	v := t.floats()
	out := make([]float32, len(v))
	const k = 0.7978845608028654 // sqrt(2/pi)
	for i, x := range v {
		x64 := float64(x)
		out[i] = float32(0.5 * x64 * (1 + math.Tanh(k*(x64+0.044715*x64*x64*x64))))
	}
	c := ctx.(*Context)
	return c.newF32(t.shape, out)
}

// TopK returns, per row of the last axis, the indices of the k largest
// values in descending order, breaking ties toward the lower index.
func (t *tensor) TopK(ctx ml.Context, k int) ml.Tensor {
	v := t.floats()
	width := t.shape[len(t.shape)-1]
	rows := len(v) / width

	out := make([]float32, rows*k)
	type scored struct {
		idx int
		val float32
	}

	for row := 0; row < rows; row++ {
		lo := row * width
		cand := make([]scored, width)
		for i := 0; i < width; i++ {
			cand[i] = scored{i, v[lo+i]}
		}
		sort.SliceStable(cand, func(i, j int) bool {
			if cand[i].val != cand[j].val {
				return cand[i].val > cand[j].val
			}
			return cand[i].idx < cand[j].idx
		})
		for i := 0; i < k; i++ {
			out[row*k+i] = float32(cand[i].idx)
		}
	}

	outShape := append(append([]int(nil), t.shape[:len(t.shape)-1]...), k)
	c := ctx.(*Context)
	r := c.newF32(outShape, out)
	r.dtype = ml.DTypeI32
	return r
}

// RoPE applies rotary position embedding to the first ropeDim elements of
// the last axis, pairing element i with element i+ropeDim/2 the way Llama's
// "half-split" rotary layout does (as opposed to interleaved pairs).
// positions is an int32 tensor with one entry per row of the flattened
// leading axes; cos/sin are precomputed [ropeDim/2] tables, one row per
// distinct position, looked up by position value.
func (t *tensor) RoPE(ctx ml.Context, positions ml.Tensor, cos, sin ml.Tensor, ropeDim int) ml.Tensor {
	v := t.floats()
	width := t.shape[len(t.shape)-1]
	rows := len(v) / width
	half := ropeDim / 2

	pos := positions.(*tensor).floats()
	cosT := cos.(*tensor)
	sinT := sin.(*tensor)
	cosTable := cosT.floats()
	sinTable := sinT.floats()
	tableWidth := cosT.shape[len(cosT.shape)-1]

	out := make([]float32, len(v))
	copy(out, v)

	seqLen := len(pos)
	for row := 0; row < rows; row++ {
		p := int(pos[row%seqLen])
		lo := row * width
		tlo := p * tableWidth
		for i := 0; i < half; i++ {
			c := cosTable[tlo+i]
			s := sinTable[tlo+i]
			x0 := v[lo+i]
			x1 := v[lo+i+half]
			out[lo+i] = x0*c - x1*s
			out[lo+i+half] = x1*c + x0*s
		}
	}

	ctxC := ctx.(*Context)
	r := ctxC.newF32(t.shape, out)
	r.dtype = t.dtype
	return r
}

func (t *tensor) Quantize(ctx ml.Context, dtype ml.DType) ml.Tensor {
	return &tensor{b: t.b, dtype: dtype, shape: t.shape, device: t.device, blocks: quantize(t.floats(), dtype)}
}

func (t *tensor) Dequantize(ctx ml.Context) ml.Tensor {
	c := ctx.(*Context)
	return c.newF32(t.shape, t.floats())
}
