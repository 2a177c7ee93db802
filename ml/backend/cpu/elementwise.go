package cpu

import (
	gotensor "github.com/pdevine/tensor"
)

// denseAdd and denseSub run the equal-shape elementwise fast path through
// pdevine/tensor's Dense arithmetic, the same pure-Go tensor library the
// historical CPU-only ollama backend was built on, rather than a hand
// rolled loop.
func denseAdd(a, b []float32, shape []int) ([]float32, error) {
	return denseBinOp(a, b, shape, func(x, y *gotensor.Dense) (gotensor.Tensor, error) {
		return x.Add(y)
	})
}

func denseSub(a, b []float32, shape []int) ([]float32, error) {
	return denseBinOp(a, b, shape, func(x, y *gotensor.Dense) (gotensor.Tensor, error) {
		return x.Sub(y)
	})
}

func denseMul(a, b []float32, shape []int) ([]float32, error) {
	return denseBinOp(a, b, shape, func(x, y *gotensor.Dense) (gotensor.Tensor, error) {
		return x.Mul(y)
	})
}

func denseBinOp(a, b []float32, shape []int, op func(x, y *gotensor.Dense) (gotensor.Tensor, error)) ([]float32, error) {
	x := gotensor.New(gotensor.WithShape(shape...), gotensor.WithBacking(append([]float32(nil), a...)))
	y := gotensor.New(gotensor.WithShape(shape...), gotensor.WithBacking(append([]float32(nil), b...)))

	r, err := op(x, y)
	if err != nil {
		return nil, err
	}

	dense, ok := r.(*gotensor.Dense)
	if !ok {
		return nil, err
	}

	return dense.Data().([]float32), nil
}
