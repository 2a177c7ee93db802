package engine

import (
	"github.com/inferno-run/coreinfer/ml"
	"github.com/inferno-run/coreinfer/model/input"
)

// marshalPrefill builds a batch carrying every pending sequence's full
// token list: one flat row per token across all sequences (this module's
// packed-batch convention, not the padded-matrix form spec.md describes —
// kvcache.Causal.Put already expects contiguous per-sequence row runs
// addressed by batch.Sequences, so padding would only add dead rows).
// Outputs names each sequence's last row, since prefill only needs the
// final token's logits.
func marshalPrefill(ctx ml.Context, seqs []*Sequence) (input.Batch, error) {
	var total int
	for _, s := range seqs {
		if len(s.Tokens) == 0 {
			return input.Batch{}, &Error{Kind: KindState, Op: "marshalPrefill", Err: errEmptySequence(s.ID)}
		}
		total += len(s.Tokens)
	}

	tokens := make([]int32, 0, total)
	positions := make([]int32, 0, total)
	sequences := make([]int, 0, total)
	outputs := make([]int32, 0, len(seqs))

	row := 0
	for _, s := range seqs {
		tokens = append(tokens, s.Tokens...)
		for p := range s.Tokens {
			positions = append(positions, int32(p))
			sequences = append(sequences, s.BatchIndex)
		}
		row += len(s.Tokens)
		outputs = append(outputs, int32(row-1))
	}

	return input.Batch{
		Inputs:    ctx.FromInts(tokens, len(tokens)),
		Positions: positions,
		Sequences: sequences,
		Outputs:   ctx.FromInts(outputs, len(outputs)),
	}, nil
}

// marshalDecode builds a batch carrying exactly one token per sequence —
// the last one appended — at that sequence's current length-1 offset.
// Outputs is every row, since a decode step wants every sequence's logits.
func marshalDecode(ctx ml.Context, seqs []*Sequence) (input.Batch, error) {
	tokens := make([]int32, len(seqs))
	positions := make([]int32, len(seqs))
	sequences := make([]int, len(seqs))
	outputs := make([]int32, len(seqs))

	for i, s := range seqs {
		if len(s.Tokens) == 0 {
			return input.Batch{}, &Error{Kind: KindState, Op: "marshalDecode", Err: errEmptySequence(s.ID)}
		}
		tokens[i] = s.Tokens[len(s.Tokens)-1]
		positions[i] = int32(len(s.Tokens) - 1)
		sequences[i] = s.BatchIndex
		outputs[i] = int32(i)
	}

	return input.Batch{
		Inputs:    ctx.FromInts(tokens, len(tokens)),
		Positions: positions,
		Sequences: sequences,
		Outputs:   ctx.FromInts(outputs, len(outputs)),
	}, nil
}
