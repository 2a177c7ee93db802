package cpu

import (
	"fmt"

	"github.com/inferno-run/coreinfer/ml"
)

// Every op in this file materializes a fresh contiguous tensor; the cpu
// backend never carries a strided, non-contiguous view (unlike ggml's
// in-place permute/view), so Contiguous is always a no-op copy.

func (t *tensor) Contiguous(ctx ml.Context) ml.Tensor {
	c := ctx.(*Context)
	return c.newF32(t.shape, t.floats())
}

func (t *tensor) Reshape(ctx ml.Context, shape ...int) ml.Tensor {
	if numElements(shape) != numElements(t.shape) {
		panic(fmt.Sprintf("cpu: Reshape: %v has %d elements, want shape %v (%d)", t.shape, numElements(t.shape), shape, numElements(shape)))
	}
	c := ctx.(*Context)
	out := c.newF32(shape, t.floats())
	out.dtype = t.dtype
	return out
}

// View returns the shape-sized tensor starting at flat element offset,
// reading from t's row-major layout.
func (t *tensor) View(ctx ml.Context, offset int, shape ...int) ml.Tensor {
	n := numElements(shape)
	v := t.floats()
	if offset+n > len(v) {
		panic(fmt.Sprintf("cpu: View: offset %d + %d exceeds %d elements", offset, n, len(v)))
	}
	c := ctx.(*Context)
	return c.newF32(shape, append([]float32(nil), v[offset:offset+n]...))
}

// Permute reorders axes: Permute(ctx, 0, 2, 1, 3) moves axis 2 into position
// 1 and vice versa, matching ggml's permute semantics (perm[i] names which
// new axis the i'th old axis moves to).
func (t *tensor) Permute(ctx ml.Context, perm ...int) ml.Tensor {
	if len(perm) != len(t.shape) {
		panic("cpu: Permute: axis count mismatch")
	}

	newShape := make([]int, len(t.shape))
	for old, nw := range perm {
		newShape[nw] = t.shape[old]
	}

	oldStrides := rowMajorStrides(t.shape)
	newStrides := make([]int, len(t.shape))
	for old, nw := range perm {
		newStrides[nw] = oldStrides[old]
	}

	src := t.floats()
	out := make([]float32, len(src))
	outStrides := rowMajorStrides(newShape)

	idx := make([]int, len(newShape))
	for flat := 0; flat < len(out); flat++ {
		rem := flat
		for d := range newShape {
			idx[d] = rem / outStrides[d]
			rem %= outStrides[d]
		}
		srcOff := 0
		for d := range newShape {
			srcOff += idx[d] * newStrides[d]
		}
		out[flat] = src[srcOff]
	}

	c := ctx.(*Context)
	return c.newF32(newShape, out)
}

func (t *tensor) Slice(ctx ml.Context, dim, low, high int) ml.Tensor {
	if dim < 0 {
		dim += len(t.shape)
	}
	strides := rowMajorStrides(t.shape)
	outShape := append([]int(nil), t.shape...)
	outShape[dim] = high - low

	src := t.floats()
	out := make([]float32, numElements(outShape))
	outStrides := rowMajorStrides(outShape)

	idx := make([]int, len(outShape))
	for flat := 0; flat < len(out); flat++ {
		rem := flat
		for d := range outShape {
			idx[d] = rem / outStrides[d]
			rem %= outStrides[d]
		}
		srcOff := 0
		for d := range outShape {
			v := idx[d]
			if d == dim {
				v += low
			}
			srcOff += v * strides[d]
		}
		out[flat] = src[srcOff]
	}

	c := ctx.(*Context)
	r := c.newF32(outShape, out)
	r.dtype = t.dtype
	return r
}

func (t *tensor) Chunk(ctx ml.Context, dim int, size int) []ml.Tensor {
	if dim < 0 {
		dim += len(t.shape)
	}
	n := t.shape[dim]
	if n%size != 0 {
		panic(fmt.Sprintf("cpu: Chunk: dim %d has size %d, not divisible by %d", dim, n, size))
	}
	chunks := make([]ml.Tensor, n/size)
	for i := range chunks {
		chunks[i] = t.Slice(ctx, dim, i*size, (i+1)*size)
	}
	return chunks
}

func (t *tensor) Concat(ctx ml.Context, t2 ml.Tensor, dim int) ml.Tensor {
	o := t2.(*tensor)
	if dim < 0 {
		dim += len(t.shape)
	}

	outShape := append([]int(nil), t.shape...)
	outShape[dim] += o.shape[dim]

	a := t.floats()
	b := o.floats()
	out := make([]float32, numElements(outShape))

	outerA, innerA := splitAt(t.shape, dim)
	outerB, innerB := splitAt(o.shape, dim)
	_ = outerB
	rowsA := numElements(outerA)
	widthA := innerA
	widthB := innerB
	widthOut := widthA + widthB

	for r := 0; r < rowsA; r++ {
		copy(out[r*widthOut:r*widthOut+widthA], a[r*widthA:(r+1)*widthA])
		copy(out[r*widthOut+widthA:r*widthOut+widthOut], b[r*widthB:(r+1)*widthB])
	}

	c := ctx.(*Context)
	r := c.newF32(outShape, out)
	r.dtype = t.dtype
	return r
}

// splitAt returns the product of the axes before dim (outer, the number of
// "rows" when dim and everything after it is flattened) and the product of
// dim and everything after it (inner, the row width).
func splitAt(shape []int, dim int) (outer []int, inner int) {
	if dim < 0 {
		dim += len(shape)
	}
	outer = shape[:dim]
	inner = 1
	for _, s := range shape[dim:] {
		inner *= s
	}
	return outer, inner
}

func (t *tensor) Repeat(ctx ml.Context, dim, n int) ml.Tensor {
	if dim < 0 {
		dim += len(t.shape)
	}
	out := ml.Tensor(t)
	for i := 1; i < n; i++ {
		out = out.Concat(ctx, t, dim)
	}
	return out
}

// Rows gathers rows (axis 0) of t at the positions named by idxs, an int32
// rank-1 tensor. Used for embedding lookups and the MoE expert gather.
func (t *tensor) Rows(ctx ml.Context, idxs ml.Tensor) ml.Tensor {
	idx := idxs.(*tensor)
	ids := idx.floats()

	_, rowWidth := splitAt(t.shape, 1)
	src := t.floats()

	out := make([]float32, len(ids)*rowWidth)
	for i, id := range ids {
		row := int(id)
		copy(out[i*rowWidth:(i+1)*rowWidth], src[row*rowWidth:(row+1)*rowWidth])
	}

	outShape := append([]int{len(ids)}, t.shape[1:]...)
	c := ctx.(*Context)
	return c.newF32(outShape, out)
}

// IndexAdd scatter-adds the rows of t2 into a copy of t at the row positions
// named by idxs.
func (t *tensor) IndexAdd(ctx ml.Context, idxs ml.Tensor, t2 ml.Tensor) ml.Tensor {
	idx := idxs.(*tensor)
	add := t2.(*tensor)
	ids := idx.floats()

	_, rowWidth := splitAt(t.shape, 1)
	out := t.floats()
	addVals := add.floats()

	for i, id := range ids {
		row := int(id)
		for j := 0; j < rowWidth; j++ {
			out[row*rowWidth+j] += addVals[i*rowWidth+j]
		}
	}

	c := ctx.(*Context)
	r := c.newF32(t.shape, out)
	r.dtype = t.dtype
	return r
}

func (t *tensor) Copy(ctx ml.Context, dst ml.Tensor) ml.Tensor {
	d := dst.(*tensor)
	d.dtype = t.dtype
	if t.dtype.IsQuantized() {
		d.blocks = quantize(t.floats(), t.dtype)
		d.data = nil
	} else {
		d.data = t.floats()
	}
	d.shape = append([]int(nil), t.shape...)
	return d
}
