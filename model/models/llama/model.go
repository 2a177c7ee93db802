package llama

import (
	"github.com/inferno-run/coreinfer/envconfig"
	"github.com/inferno-run/coreinfer/fs"
	"github.com/inferno-run/coreinfer/kvcache"
	"github.com/inferno-run/coreinfer/ml"
	"github.com/inferno-run/coreinfer/ml/nn"
	"github.com/inferno-run/coreinfer/ml/nn/rope"
	"github.com/inferno-run/coreinfer/model"
	"github.com/inferno-run/coreinfer/model/input"
)

// Model is the dense Llama/Mistral text model: token embedding, a stack of
// decoder layers, a final norm and the LM head.
type Model struct {
	model.Base

	TokenEmbedding *nn.Embedding `gguf:"token_embd"`
	Layers         []Layer       `gguf:"blk"`
	OutputNorm     *nn.RMSNorm   `gguf:"output_norm"`
	Output         *nn.Linear    `gguf:"output,alt:token_embd"`

	Options

	// lastHidden is the final-norm output from the most recent Forward
	// call, before the LM head projects it to vocabulary logits. The
	// X-LoRA scaling pass (engine.StepXLoRA) reads it back through
	// Hidden(), since the classifier needs hidden-size-width input, not
	// logits.
	lastHidden ml.Tensor
}

func init() {
	model.Register("llama", New)
	model.Register("mistral", New)
}

// New builds a Model from a checkpoint's metadata. Every layer shares the
// same sliding-window configuration read from the checkpoint: unlike
// Gemma's interleaved local/global pattern, Llama and Mistral apply a single
// window (if any) uniformly across layers.
func New(c fs.Config) (model.Model, error) {
	opts := newOptions(c)
	numLayers := int(c.Uint("block_count"))

	layerCfg := kvcache.LayerConfig{Window: opts.slidingWindow, Policy: opts.windowPolicy}
	layers := make([]kvcache.LayerConfig, numLayers)
	for i := range layers {
		layers[i] = layerCfg
	}

	cache, err := kvcache.NewCausalCache(numLayers, envconfig.NumParallel(), layers)
	if err != nil {
		return nil, err
	}

	m := &Model{Options: opts}
	m.Cache = cache
	return m, nil
}

// Validate assigns every layer's decoder index to its attention block's
// adapter-wrapped projections, run once after the checkpoint's tensors are
// loaded (model.New calls it through the Validator interface).
func (m *Model) Validate() error {
	for i := range m.Layers {
		m.Layers[i].Attention.SetLayer(i)
	}
	return nil
}

// Hidden returns the final-norm activation from the most recent Forward
// call, satisfying model.HiddenStater for the X-LoRA scaling
// pass.
func (m *Model) Hidden() ml.Tensor {
	return m.lastHidden
}

// Forward embeds the batch's tokens, builds the rotary tables for the
// positions present, and runs every decoder layer in sequence before the
// final norm and LM head projection.
func (m *Model) Forward(ctx ml.Context, batch input.Batch) (ml.Tensor, error) {
	positions := ctx.Input().FromInts(batch.Positions, len(batch.Positions))

	maxPos := 0
	for _, p := range batch.Positions {
		if int(p) >= maxPos {
			maxPos = int(p) + 1
		}
	}
	cos, sin := rope.Tables(ctx.Input(), rope.Options{Dim: m.ropeDim, Base: m.ropeBase, Scale: m.ropeScale}, maxPos)

	hiddenStates := m.TokenEmbedding.Forward(ctx, batch.Inputs) // [rows, hiddenSize]

	for i := range m.Layers {
		m.Cache.SetLayer(i)
		var err error
		hiddenStates, err = m.Layers[i].Forward(ctx, hiddenStates, positions, cos, sin, m.Cache, &m.Options, batch.Scalings, batch.GlobalWeight, batch.ScalingPass)
		if err != nil {
			return nil, err
		}
	}

	if batch.Outputs != nil {
		hiddenStates = hiddenStates.Rows(ctx, batch.Outputs)
	}

	hiddenStates = m.OutputNorm.Forward(ctx, hiddenStates, m.eps)
	m.lastHidden = hiddenStates
	return m.Output.Forward(ctx, hiddenStates), nil
}
