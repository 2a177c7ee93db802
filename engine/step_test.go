package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepRejectsEmptySequenceList(t *testing.T) {
	// nil model is safe here: Step must reject an empty sequence list
	// before it ever touches m.
	_, err := Step(nil, nil, nil, true, PreNoOp, PostNoOp)

	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, KindState, engErr.Kind)
}
