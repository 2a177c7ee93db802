// context.go - Context und Tensor Interfaces fuer ML-Operationen
// Dieses Modul definiert die Schnittstellen fuer Tensor-Operationen und Compute-Kontexte.
package ml

// Context represents an execution context for tensor operations.
type Context interface {
	Empty(dtype DType, shape ...int) Tensor
	Zeros(dtype DType, shape ...int) Tensor
	FromFloats(s []float32, shape ...int) Tensor
	FromInts(s []int32, shape ...int) Tensor

	// Forward registers tensors as outputs of the graph built in this
	// context.
	Forward(...Tensor) Context

	// Compute evaluates everything the given tensors (or, if none are
	// given, everything registered via Forward) depend on.
	Compute(...Tensor)

	Close()

	// Input returns a context appropriate for creating tensors that are
	// inputs to the model (which includes things like position ids and
	// masks).
	Input() Context

	// Layer returns a context appropriate for creating intermediate tensors
	Layer(int) Context
}

// Tensor represents a multi-dimensional array with various operations.
type Tensor interface {
	Dim(n int) int
	Stride(n int) int

	Shape() []int
	DType() DType
	Device() Device
	Cast(ctx Context, dtype DType) Tensor
	// ToDevice returns a copy of t resident on d, or t itself if it is
	// already there.
	ToDevice(ctx Context, d Device) Tensor

	Floats() []float32
	FromFloats([]float32)
	FromInts([]int32)

	Add(ctx Context, t2 Tensor) Tensor
	Sub(ctx Context, t2 Tensor) Tensor
	Mul(ctx Context, t2 Tensor) Tensor

	// Mulmat computes t @ t2. If either operand is block-quantized, the
	// backend promotes both operands to DTypeF32 for the accumulation and
	// demotes the result back to t's dtype.
	Mulmat(ctx Context, t2 Tensor) Tensor
	// MulmatFullPrec is Mulmat with the accumulation always done in
	// DTypeF32, regardless of the operand dtype. Used for the attention
	// score matmul, which spec.md requires to run in single precision.
	MulmatFullPrec(ctx Context, t2 Tensor) Tensor

	Softmax(ctx Context) Tensor
	RMSNorm(ctx Context, weight Tensor, eps float32) Tensor
	LayerNorm(ctx Context, weight, bias Tensor, eps float32) Tensor
	Scale(ctx Context, s float64) Tensor

	SILU(ctx Context) Tensor
	GELU(ctx Context) Tensor

	Reshape(ctx Context, shape ...int) Tensor
	View(ctx Context, offset int, shape ...int) Tensor
	Permute(ctx Context, shape ...int) Tensor
	Contiguous(ctx Context) Tensor

	Repeat(ctx Context, dim, n int) Tensor
	Concat(ctx Context, t2 Tensor, dim int) Tensor
	Rows(ctx Context, idxs Tensor) Tensor
	// IndexAdd scatter-adds the rows of t2 into a copy of t at the row
	// positions named by idxs (int32, rank 1), used by the
	// Mixture-of-Experts weighted scatter.
	IndexAdd(ctx Context, idxs Tensor, t2 Tensor) Tensor
	Copy(ctx Context, dst Tensor) Tensor

	Slice(ctx Context, dim, low, high int) Tensor
	Chunk(ctx Context, dim int, size int) []Tensor

	// TopK returns the indices of the k largest elements of the last axis
	// of t, per row, in descending order. Ties break toward the lower
	// index (spec.md's "deterministic descending total-order comparison").
	TopK(ctx Context, k int) Tensor

	RoPE(ctx Context, positions Tensor, cos, sin Tensor, ropeDim int) Tensor

	Quantize(ctx Context, dtype DType) Tensor
	Dequantize(ctx Context) Tensor
}

// ScaledDotProductAttention implements a fused attention operation
// equivalent to:
//
//	kq := key.MulmatFullPrec(ctx, query)
//	kq = kq.Scale(ctx, scale)
//	if mask != nil { kq = kq.Add(ctx, mask) }
//	kq = kq.Softmax(ctx)
//	return value.Mulmat(ctx, kq)
//
// No backend in this module implements it, and nn.Attention does not check
// for it: attention always runs the manual sequence, whatever
// BackendParams.FlashAttention says.
type ScaledDotProductAttention interface {
	ScaledDotProductAttention(ctx Context, query, key, value, mask Tensor, scale float64) Tensor
}
