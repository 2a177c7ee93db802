package cpu

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/x448/float16"

	"github.com/inferno-run/coreinfer/fs/ggml"
	"github.com/inferno-run/coreinfer/ml"
)

// readTensorFloats reads one tensor's raw bytes out of the checkpoint and
// decodes them to float32, handling the handful of GGUF tensor types this
// backend actually runs: F32, F16, BF16, Q4_0 and Q8_0. Anything else (the
// various K-quants, IQ-quants) is rejected rather than silently
// misinterpreted.
func readTensorFloats(rs io.ReadSeeker, dataStart uint64, t *ggml.Tensor) ([]float32, error) {
	if _, err := rs.Seek(int64(dataStart+t.Offset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("cpu: seeking to tensor %q: %w", t.Name, err)
	}

	buf := make([]byte, t.Size())
	if _, err := io.ReadFull(rs, buf); err != nil {
		return nil, fmt.Errorf("cpu: reading tensor %q: %w", t.Name, err)
	}

	switch ggml.TensorType(t.Kind) {
	case ggml.TensorTypeF32:
		return decodeF32(buf), nil
	case ggml.TensorTypeF16:
		return decodeF16(buf), nil
	case ggml.TensorTypeBF16:
		return decodeBF16(buf), nil
	case ggml.TensorTypeQ4_0:
		return decodeQ4_0(buf, t.Elements()), nil
	case ggml.TensorTypeQ8_0:
		return decodeQ8_0(buf, t.Elements()), nil
	default:
		return nil, fmt.Errorf("cpu: tensor %q has unsupported type %s", t.Name, t.Type())
	}
}

func tensorDType(t *ggml.Tensor) ml.DType {
	switch ggml.TensorType(t.Kind) {
	case ggml.TensorTypeF16:
		return ml.DTypeF16
	case ggml.TensorTypeBF16:
		return ml.DTypeBF16
	case ggml.TensorTypeQ4_0:
		return ml.DTypeQ4_0
	case ggml.TensorTypeQ8_0:
		return ml.DTypeQ8_0
	default:
		return ml.DTypeF32
	}
}

func decodeF32(buf []byte) []float32 {
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}

func decodeF16(buf []byte) []float32 {
	out := make([]float32, len(buf)/2)
	for i := range out {
		out[i] = float16.Frombits(binary.LittleEndian.Uint16(buf[i*2:])).Float32()
	}
	return out
}

func decodeBF16(buf []byte) []float32 {
	n := len(buf) / 2
	padded := make([]byte, n*4)
	for i := 0; i < n; i++ {
		// bfloat16 is the top 16 bits of an IEEE-754 float32.
		padded[i*4+2] = buf[i*2]
		padded[i*4+3] = buf[i*2+1]
	}
	return decodeF32(padded)
}

// decodeQ4_0 decodes llama.cpp's Q4_0 block layout: an f16 scale followed by
// 16 bytes holding 32 signed 4-bit codes (offset by -8), two per byte,
// low nibble first.
func decodeQ4_0(buf []byte, n uint64) []float32 {
	const blockBytes = 18
	const blockSize = 32

	out := make([]float32, n)
	numBlocks := len(buf) / blockBytes
	for blk := 0; blk < numBlocks; blk++ {
		base := blk * blockBytes
		scale := float16.Frombits(binary.LittleEndian.Uint16(buf[base:])).Float32()
		qs := buf[base+2 : base+blockBytes]

		for i := 0; i < blockSize/2; i++ {
			lo := int32(qs[i]&0x0F) - 8
			hi := int32(qs[i]>>4) - 8
			idx := blk*blockSize + i
			if idx < len(out) {
				out[idx] = float32(lo) * scale
			}
			idx2 := blk*blockSize + i + blockSize/2
			if idx2 < len(out) {
				out[idx2] = float32(hi) * scale
			}
		}
	}
	return out
}

// decodeQ8_0 decodes Q8_0: an f16 scale followed by 32 signed 8-bit codes.
func decodeQ8_0(buf []byte, n uint64) []float32 {
	const blockBytes = 34
	const blockSize = 32

	out := make([]float32, n)
	numBlocks := len(buf) / blockBytes
	for blk := 0; blk < numBlocks; blk++ {
		base := blk * blockBytes
		scale := float16.Frombits(binary.LittleEndian.Uint16(buf[base:])).Float32()
		qs := buf[base+2 : base+blockBytes]

		for i := 0; i < blockSize; i++ {
			idx := blk*blockSize + i
			if idx < len(out) {
				out[idx] = float32(int8(qs[i])) * scale
			}
		}
	}
	return out
}
