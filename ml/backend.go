// backend.go - Backend-Interface und Registrierung fuer ML-Modelle
// Dieses Modul definiert das Backend-Interface und die Backend-Factory-Funktionen.
package ml

import (
	"fmt"

	"github.com/inferno-run/coreinfer/fs"
)

// Backend represents a model execution backend. This module registers one,
// "cpu" (see ml/backend/cpu), but components are written against this
// interface so a future accelerator backend is a registration away.
type Backend interface {
	Close()

	Config() fs.Config
	Get(name string) Tensor
	NewContext() Context
	NewContextSize(size int) Context

	// Devices enumerates the devices this backend instance exposes.
	Devices() []Device
}

// FlashAttentionType records whether a fused flash-attention kernel is
// requested. The cpu backend accepts the setting and ignores it; see
// ScaledDotProductAttention.
type FlashAttentionType int

const (
	FlashAttentionAuto FlashAttentionType = iota
	FlashAttentionEnabled
	FlashAttentionDisabled
)

// BackendParams controls how the backend loads and executes models.
type BackendParams struct {
	// NumThreads sets the number of threads to use for CPU compute.
	NumThreads int

	// FlashAttention requests a fused flash attention kernel; see
	// FlashAttentionType.
	FlashAttention FlashAttentionType
}

var backends = make(map[string]func(string, BackendParams) (Backend, error))

// RegisterBackend registers a backend factory function.
func RegisterBackend(name string, f func(string, BackendParams) (Backend, error)) {
	if _, ok := backends[name]; ok {
		panic("backend: backend already registered")
	}

	backends[name] = f
}

// NewBackend creates a new backend instance for the given model path using
// the named backend ("cpu" is the only one this module ships).
func NewBackend(name, modelPath string, params BackendParams) (Backend, error) {
	if backend, ok := backends[name]; ok {
		return backend(modelPath, params)
	}

	return nil, fmt.Errorf("unsupported backend %q", name)
}
