package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// matmul2D computes a (m x k) @ b (k x n) -> (m x n) using gonum's BLAS-32
// Sgemm, the same accumulation kernel a real CPU inference backend leans on
// for the bulk of its FLOPs.
func matmul2D(a []float32, b []float32, m, k, n int) []float32 {
	out := make([]float32, m*n)

	ga := blas32.General{Rows: m, Cols: k, Stride: k, Data: a}
	gb := blas32.General{Rows: k, Cols: n, Stride: n, Data: b}
	gc := blas32.General{Rows: m, Cols: n, Stride: n, Data: out}

	blas32.Implementation().Sgemm(blas.NoTrans, blas.NoTrans, m, n, k, 1, ga.Data, ga.Stride, gb.Data, gb.Stride, 0, gc.Data, gc.Stride)

	return out
}

// batchedMatmul applies matmul2D across every leading "batch" slice of a and
// b. The two operands' batch shapes must already be broadcast-compatible;
// mulmat in ops_math.go handles expanding a batch of 1 before calling this.
func batchedMatmul(a, b []float32, batch, m, k, n int) ([]float32, error) {
	if len(a) != batch*m*k {
		return nil, fmt.Errorf("cpu: matmul: operand a has %d elements, want %d", len(a), batch*m*k)
	}
	if len(b) != batch*k*n {
		return nil, fmt.Errorf("cpu: matmul: operand b has %d elements, want %d", len(b), batch*k*n)
	}

	out := make([]float32, batch*m*n)
	for i := 0; i < batch; i++ {
		r := matmul2D(a[i*m*k:(i+1)*m*k], b[i*k*n:(i+1)*k*n], m, k, n)
		copy(out[i*m*n:(i+1)*m*n], r)
	}
	return out, nil
}
