// Package cpu is a pure-Go ml.Backend. It has no accelerator and no cgo
// dependency: every Tensor is a contiguous []float32 (or, for the two
// quantized dtypes, a quantBuffer of per-block float32 scales and one int8
// code per element) and every op materializes a new
// result rather than building a lazy graph over a C library, the way the
// teacher's cgo ggml backend does. It exists so the rest of this module can
// run end to end without a GPU or a vendored C library.
package cpu

import (
	"fmt"

	"github.com/inferno-run/coreinfer/ml"
)

// tensor is the concrete ml.Tensor this backend hands out. Ops return new
// tensors rather than mutating in place (IndexAdd's scatter works on a
// copy); the in-place writes are FromFloats, FromInts and Copy, which
// overwrites its dst argument.
type tensor struct {
	b      *Backend
	dtype  ml.DType
	shape  []int
	device ml.Device

	// data holds the tensor's values as float32, row-major, contiguous.
	// For quantized dtypes this is nil; values live in blocks instead.
	data []float32

	// blocks holds block-quantized storage: one scale per BlockSize
	// contiguous elements of the flattened tensor, with codes in [-127,127]
	// for Q8_0 and [-7,7] for Q4_0. Populated only when dtype.IsQuantized().
	blocks *quantBuffer
}

func newTensor(b *Backend, dtype ml.DType, shape []int, data []float32) *tensor {
	return &tensor{b: b, dtype: dtype, shape: append([]int(nil), shape...), data: data, device: b.device}
}

func numElements(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// rowMajorStrides returns the element strides of a contiguous row-major
// tensor of the given shape.
func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}
	return strides
}

func (t *tensor) Shape() []int  { return append([]int(nil), t.shape...) }
func (t *tensor) DType() ml.DType { return t.dtype }
func (t *tensor) Device() ml.Device { return t.device }

func (t *tensor) Dim(n int) int {
	if n < 0 {
		n += len(t.shape)
	}
	if n < 0 || n >= len(t.shape) {
		return 1
	}
	return t.shape[n]
}

func (t *tensor) Stride(n int) int {
	strides := rowMajorStrides(t.shape)
	if n < 0 {
		n += len(strides)
	}
	if n < 0 || n >= len(strides) {
		return 0
	}
	return strides[n]
}

// floats returns the tensor's values as float32, dequantizing first if
// necessary. The returned slice is always a fresh copy safe to mutate.
func (t *tensor) floats() []float32 {
	if t.dtype.IsQuantized() {
		return t.blocks.dequantize()
	}
	out := make([]float32, len(t.data))
	copy(out, t.data)
	return out
}

func (t *tensor) Floats() []float32 { return t.floats() }

func (t *tensor) FromFloats(v []float32) {
	n := numElements(t.shape)
	if len(v) != n {
		panic(fmt.Sprintf("cpu: FromFloats: got %d values, tensor has %d elements", len(v), n))
	}
	if t.dtype.IsQuantized() {
		t.blocks = quantize(v, t.dtype)
		t.data = nil
		return
	}
	t.data = append([]float32(nil), v...)
}

func (t *tensor) FromInts(v []int32) {
	f := make([]float32, len(v))
	for i, x := range v {
		f[i] = float32(x)
	}
	t.FromFloats(f)
}

func (t *tensor) ToDevice(ctx ml.Context, d ml.Device) ml.Tensor {
	if t.device == d {
		return t
	}
	out := &tensor{b: t.b, dtype: t.dtype, shape: t.shape, device: d, blocks: t.blocks}
	if t.data != nil {
		out.data = append([]float32(nil), t.data...)
	}
	return out
}

func (t *tensor) Cast(ctx ml.Context, dtype ml.DType) ml.Tensor {
	if dtype == t.dtype {
		return t
	}
	c := ctx.(*Context)
	switch {
	case dtype.IsQuantized():
		return &tensor{b: t.b, dtype: dtype, shape: t.shape, device: t.device, blocks: quantize(t.floats(), dtype)}
	case dtype == ml.DTypeF16:
		return c.newF32(t.shape, roundTripF16(t.floats()))
	case dtype == ml.DTypeBF16:
		return c.newF32(t.shape, roundTripBF16(t.floats()))
	default:
		return c.newF32(t.shape, t.floats())
	}
}
