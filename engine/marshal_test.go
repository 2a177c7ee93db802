package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferno-run/coreinfer/kvcache"
	"github.com/inferno-run/coreinfer/ml"
)

// fakeIntTensor carries exactly the ints a fakeContext was asked to build,
// enough for marshal_test.go to inspect what marshalPrefill/marshalDecode
// fed to ctx.FromInts without needing a real backend.
type fakeIntTensor struct {
	ml.Tensor
	ints []int32
}

type fakeContext struct {
	ml.Context
}

func (f *fakeContext) FromInts(s []int32, shape ...int) ml.Tensor {
	return &fakeIntTensor{ints: append([]int32(nil), s...)}
}

func ints(t ml.Tensor) []int32 {
	return t.(*fakeIntTensor).ints
}

func seqAt(batchIndex int, tokens ...int32) *Sequence {
	s := NewSequence(uuid.New(), tokens, &kvcache.ShadowSet{})
	s.BatchIndex = batchIndex
	return s
}

func TestMarshalPrefillPacksRows(t *testing.T) {
	ctx := &fakeContext{}
	seqs := []*Sequence{
		seqAt(0, 1, 2, 3),
		seqAt(1, 9, 8),
	}

	batch, err := marshalPrefill(ctx, seqs)
	require.NoError(t, err)

	assert.Equal(t, []int32{1, 2, 3, 9, 8}, ints(batch.Inputs))
	assert.Equal(t, []int32{0, 1, 2, 0, 1}, batch.Positions)
	assert.Equal(t, []int{0, 0, 0, 1, 1}, batch.Sequences)
	// Outputs names each sequence's last row: row 2 for seq 0, row 4 for seq 1.
	assert.Equal(t, []int32{2, 4}, ints(batch.Outputs))
}

func TestMarshalPrefillRejectsEmptySequence(t *testing.T) {
	ctx := &fakeContext{}
	_, err := marshalPrefill(ctx, []*Sequence{seqAt(0)})

	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, KindState, engErr.Kind)
}

func TestMarshalDecodeTakesLastToken(t *testing.T) {
	ctx := &fakeContext{}
	seqs := []*Sequence{
		seqAt(0, 1, 2, 3),
		seqAt(1, 9, 8),
	}

	batch, err := marshalDecode(ctx, seqs)
	require.NoError(t, err)

	assert.Equal(t, []int32{3, 8}, ints(batch.Inputs))
	assert.Equal(t, []int32{2, 1}, batch.Positions)
	assert.Equal(t, []int{0, 1}, batch.Sequences)
	assert.Equal(t, []int32{0, 1}, ints(batch.Outputs))
}

func TestMarshalDecodeRejectsEmptySequence(t *testing.T) {
	ctx := &fakeContext{}
	_, err := marshalDecode(ctx, []*Sequence{seqAt(0)})

	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, KindState, engErr.Kind)
}
