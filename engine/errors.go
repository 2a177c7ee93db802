package engine

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind classifies an *Error using the module-wide error taxonomy (spec.md
// §7). Config, Device and IO errors originate outside this package (GGUF
// metadata parsing, backend device moves, weight-tensor IO) and surface
// there as plain errors. The step orchestrator itself produces only
// KindKernel and KindState; KindShape is defined but no engine code
// returns it.
type Kind int

const (
	// KindConfig means missing or malformed metadata, inconsistent
	// X-LoRA ordering, or an unknown architecture tag.
	KindConfig Kind = iota
	// KindShape means a projection/head/kv_head divisibility violation,
	// or a tensor rank or dimension mismatch.
	KindShape
	// KindDevice means a failure to allocate or move between devices.
	KindDevice
	// KindKernel means a tensor-library-reported compute failure,
	// including the model's Forward call returning an error.
	KindKernel
	// KindIO means a failure to read a weight tensor by name.
	KindIO
	// KindState means a cache-slot mismatch, an attempt to merge an
	// already-merged adapter, a double quantize, or an illegal pre/post
	// op combination in the orchestrator — including a sequence with no
	// pending tokens and a cache clone-in/out/reset failure.
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindShape:
		return "shape"
	case KindDevice:
		return "device"
	case KindKernel:
		return "kernel"
	case KindIO:
		return "io"
	case KindState:
		return "state"
	default:
		return "unknown"
	}
}

// Error is the error type every engine operation returns, carrying which
// phase of the step protocol failed. Per spec.md's cancellation model, a
// step that fails this way leaves the cache store untouched for sequences
// whose clone-in had not yet run; the caller decides whether to retry or
// reset.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("engine: %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func errEmptySequence(id uuid.UUID) error {
	return fmt.Errorf("sequence %s has no pending tokens", id)
}
