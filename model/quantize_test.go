package model

import (
	"testing"

	"github.com/inferno-run/coreinfer/adapter"
	"github.com/inferno-run/coreinfer/fs"
	"github.com/inferno-run/coreinfer/ml"
	"github.com/inferno-run/coreinfer/ml/backend/cpu"
	"github.com/inferno-run/coreinfer/ml/nn"
	"github.com/inferno-run/coreinfer/model/input"
)

type fakeBackend struct{}

func (fakeBackend) Close()                        {}
func (fakeBackend) Config() fs.Config             { return nil }
func (fakeBackend) Get(string) ml.Tensor          { return nil }
func (fakeBackend) NewContext() ml.Context        { return &cpu.Context{} }
func (fakeBackend) NewContextSize(int) ml.Context { return &cpu.Context{} }
func (fakeBackend) Devices() []ml.Device          { return nil }

// fakeModel exercises ReQuantize's reflect walk with one plain linear and
// one adapter-wrapped linear, the two projection types it rewrites.
type fakeModel struct {
	Base

	Plain   *nn.Linear
	Adapted *adapter.Adapted
}

func (m *fakeModel) Forward(ml.Context, input.Batch) (ml.Tensor, error) { return nil, nil }

func newFakeModel(ctx ml.Context) *fakeModel {
	return &fakeModel{
		Base:    Base{b: fakeBackend{}},
		Plain:   &nn.Linear{Weight: ctx.FromFloats([]float32{1, 2, 3, 4}, 2, 2)},
		Adapted: &adapter.Adapted{Weight: ctx.FromFloats([]float32{5, 6, 7, 8}, 2, 2)},
	}
}

func TestReQuantizeRewritesEveryLinearWeight(t *testing.T) {
	ctx := &cpu.Context{}
	m := newFakeModel(ctx)

	if err := ReQuantize(m, ml.DTypeQ8_0); err != nil {
		t.Fatalf("ReQuantize: %v", err)
	}
	if !m.Config().Quantized {
		t.Fatalf("Config().Quantized = false after ReQuantize")
	}
	if got := m.Plain.Weight.DType(); got != ml.DTypeQ8_0 {
		t.Fatalf("Plain.Weight.DType() = %v, want %v", got, ml.DTypeQ8_0)
	}
	if got := m.Adapted.Weight.DType(); got != ml.DTypeQ8_0 {
		t.Fatalf("Adapted.Weight.DType() = %v, want %v", got, ml.DTypeQ8_0)
	}
}

// TestReQuantizeIsIdempotent grounds spec.md §8: running re_quantize(dtype)
// twice is a no-op the second time, via the Quantized short-circuit.
func TestReQuantizeIsIdempotent(t *testing.T) {
	ctx := &cpu.Context{}
	m := newFakeModel(ctx)

	if err := ReQuantize(m, ml.DTypeQ8_0); err != nil {
		t.Fatalf("first ReQuantize: %v", err)
	}
	before := m.Plain.Weight

	if err := ReQuantize(m, ml.DTypeQ8_0); err != nil {
		t.Fatalf("second ReQuantize: %v", err)
	}
	if m.Plain.Weight != before {
		t.Fatalf("second ReQuantize replaced an already-quantized weight tensor")
	}
}

func TestReQuantizeSkipsModelAlreadyMarkedQuantized(t *testing.T) {
	ctx := &cpu.Context{}
	m := newFakeModel(ctx)
	m.SetQuantized(true)

	originalWeight := m.Plain.Weight
	if err := ReQuantize(m, ml.DTypeQ8_0); err != nil {
		t.Fatalf("ReQuantize: %v", err)
	}
	if m.Plain.Weight != originalWeight {
		t.Fatalf("ReQuantize touched weights on a model already marked Quantized")
	}
}
