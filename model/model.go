// Package model - Model-Interface und Initialisierung
//
// Dieses Paket definiert das Model-Interface und stellt Funktionen
// zur Initialisierung und Verwaltung von ML-Modellen bereit.
//
// Hauptkomponenten:
// - Model: Interface für alle Modell-Architekturen
// - Base: Basis-Implementierung für gemeinsame Funktionalität
// - New: Erstellt neue Model-Instanzen
// - Register: Registriert Modell-Konstruktoren
// - Forward: Führt Vorwärts-Pass durch

package model

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/inferno-run/coreinfer/fs"
	"github.com/inferno-run/coreinfer/kvcache"
	"github.com/inferno-run/coreinfer/ml"
	_ "github.com/inferno-run/coreinfer/ml/backend/cpu"
	"github.com/inferno-run/coreinfer/model/input"
)

// Fehler-Definitionen
var (
	ErrUnsupportedModel = errors.New("model not supported")
)

// Model definiert das Interface für spezifische Modell-Architekturen
type Model interface {
	Forward(ml.Context, input.Batch) (ml.Tensor, error)

	Backend() ml.Backend
	Config() config
}

// Validator ist ein optionales Interface für Post-Load-Validierung
type Validator interface {
	Validate() error
}

// HiddenStater is implemented by an architecture that keeps its most
// recent Forward call's final-norm activation around for readback. The
// X-LoRA scaling pass's classifier (spec.md §4.9/§6) needs hidden-size
// width input, not the LM head's vocabulary logits, so engine.StepXLoRA
// type-asserts for this rather than growing the Model interface itself.
type HiddenStater interface {
	Hidden() ml.Tensor
}

// Base implementiert gemeinsame Felder und Methoden für alle Modelle
type Base struct {
	b ml.Backend
	config
}

// config enthält die Modell-Konfiguration
type config struct {
	Cache kvcache.Cache

	// Quantized is true once ReQuantize has rewritten this model's
	// projections in place, or the checkpoint loaded already
	// block-quantized. See ReQuantize for why this alone is enough to
	// make re_quantize idempotent.
	Quantized bool
}

// Backend gibt das Backend zurück, das das Modell ausführt
func (m *Base) Backend() ml.Backend {
	return m.b
}

// Config gibt die Modell-Konfiguration zurück
func (m *Base) Config() config {
	return m.config
}

// SetQuantized records that m's weights are now block-quantized. Config()
// returns config by value, so this exists as the write-path every
// architecture's embedded *Base promotes: ReQuantize and New both reach it
// through a type assertion on the Model interface value, never by
// reflecting into the unexported config field directly.
func (m *Base) SetQuantized(q bool) {
	m.config.Quantized = q
}

// models speichert registrierte Modell-Konstruktoren
var models = make(map[string]func(fs.Config) (Model, error))

// Register registriert einen Modell-Konstruktor für eine Architektur
func Register(name string, f func(fs.Config) (Model, error)) {
	if _, ok := models[name]; ok {
		panic("model: model already registered")
	}

	models[name] = f
}

// New initialisiert eine neue Model-Instanz basierend auf den Metadaten
func New(backendName, modelPath string, params ml.BackendParams) (Model, error) {
	b, err := ml.NewBackend(backendName, modelPath, params)
	if err != nil {
		return nil, err
	}

	m, err := modelForArch(b.Config())
	if err != nil {
		return nil, err
	}

	base := Base{b: b, config: m.Config()}
	v := reflect.ValueOf(m)
	v.Elem().Set(populateFields(base, v.Elem()))

	if validator, ok := m.(Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, err
		}
	}

	if setter, ok := m.(interface{ SetQuantized(bool) }); ok && anyQuantized(quantizableWeights(v.Elem())) {
		setter.SetQuantized(true)
	}

	return m, nil
}

// modelForArch erstellt ein Model basierend auf der Architektur
func modelForArch(c fs.Config) (Model, error) {
	arch := c.Architecture()

	f, ok := models[arch]
	if !ok {
		return nil, ErrUnsupportedModel
	}

	return f(c)
}

// Forward führt einen Vorwärts-Pass durch das Modell aus
func Forward(ctx ml.Context, m Model, batch input.Batch) (ml.Tensor, error) {
	if len(batch.Positions) != len(batch.Sequences) {
		return nil, fmt.Errorf("length of positions (%v) must match length of seqs (%v)", len(batch.Positions), len(batch.Sequences))
	}

	if len(batch.Positions) < 1 {
		return nil, errors.New("batch size cannot be less than 1")
	}

	cache := m.Config().Cache
	if cache != nil {
		err := cache.StartForward(ctx, batch, false)
		if err != nil {
			return nil, err
		}
	}

	t, err := m.Forward(ctx, batch)
	if err != nil {
		return nil, err
	}

	ctx.Forward(t)

	return t, nil
}
