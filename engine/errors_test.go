package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &Error{Kind: KindKernel, Op: "Forward", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "kernel")
	assert.Contains(t, err.Error(), "boom")
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindConfig: "config",
		KindShape:  "shape",
		KindDevice: "device",
		KindKernel: "kernel",
		KindIO:     "io",
		KindState:  "state",
		Kind(99):   "unknown",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}
