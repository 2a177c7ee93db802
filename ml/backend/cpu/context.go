package cpu

import (
	"github.com/inferno-run/coreinfer/ml"
)

// Context is the cpu backend's ml.Context. Every op in this backend runs
// eagerly, so there is no graph to build: Forward/Compute exist only to
// satisfy the interface and keep call sites written the same way they would
// be against a graph-building backend.
type Context struct {
	b      *Backend
	device ml.Device
}

func (c *Context) newF32(shape []int, data []float32) *tensor {
	return &tensor{b: c.b, dtype: ml.DTypeF32, shape: append([]int(nil), shape...), device: c.device, data: data}
}

func (c *Context) Empty(dtype ml.DType, shape ...int) ml.Tensor {
	return c.Zeros(dtype, shape...)
}

func (c *Context) Zeros(dtype ml.DType, shape ...int) ml.Tensor {
	n := numElements(shape)
	t := &tensor{b: c.b, dtype: dtype, shape: append([]int(nil), shape...), device: c.device}
	if dtype.IsQuantized() {
		t.blocks = quantize(make([]float32, n), dtype)
	} else {
		t.data = make([]float32, n)
	}
	return t
}

func (c *Context) FromFloats(s []float32, shape ...int) ml.Tensor {
	if len(shape) == 0 {
		shape = []int{len(s)}
	}
	return c.newF32(shape, append([]float32(nil), s...))
}

func (c *Context) FromInts(s []int32, shape ...int) ml.Tensor {
	f := make([]float32, len(s))
	for i, x := range s {
		f[i] = float32(x)
	}
	return c.FromFloats(f, shape...)
}

// Forward is a no-op: every op below already ran by the time it's called.
func (c *Context) Forward(...ml.Tensor) ml.Context { return c }

// Compute is a no-op for the same reason.
func (c *Context) Compute(...ml.Tensor) {}

func (c *Context) Close() {}

func (c *Context) Input() ml.Context { return c }

func (c *Context) Layer(n int) ml.Context { return c }
