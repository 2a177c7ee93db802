package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/inferno-run/coreinfer/kvcache"
)

func TestNewSequenceCopiesPrompt(t *testing.T) {
	id := uuid.New()
	prompt := []int32{1, 2, 3}
	seq := NewSequence(id, prompt, &kvcache.ShadowSet{})

	assert.Equal(t, id, seq.ID)
	assert.Equal(t, StateNew, seq.State)
	assert.Equal(t, prompt, seq.Tokens)

	prompt[0] = 99
	assert.Equal(t, int32(1), seq.Tokens[0], "NewSequence must copy the prompt, not alias it")
}

func TestSequenceAppend(t *testing.T) {
	seq := NewSequence(uuid.New(), []int32{1}, &kvcache.ShadowSet{})
	seq.Append(2)
	seq.Append(3)
	assert.Equal(t, []int32{1, 2, 3}, seq.Tokens)
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateNew:       "new",
		StatePrefilled: "prefilled",
		StateDecoded:   "decoded",
		StateFinished:  "finished",
		State(99):      "unknown",
	}
	for state, want := range cases {
		assert.Equal(t, want, state.String())
	}
}
