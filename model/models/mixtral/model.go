package mixtral

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

// Model is the Mixtral text model: token embedding, a stack of
// Mixture-of-Experts decoder layers, a final norm and the LM head.
type Model struct {
	model.Base

	TokenEmbedding *nn.Embedding `gguf:"token_embd"`
	Layers         []Layer       `gguf:"blk"`
	OutputNorm     *nn.RMSNorm   `gguf:"output_norm"`
	Output         *nn.Linear    `gguf:"output,alt:token_embd"`

	Options
}

func init() {
	model.Register("mixtral", New)
}

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

// Validate wires each loaded layer's router top-k, a plain int field the
// gguf-tag loader never touches since the checkpoint carries it as
// metadata rather than a named tensor.
func (m *Model) Validate() error {
	for i := range m.Layers {
		if m.Layers[i].FeedForward != nil {
			m.Layers[i].FeedForward.TopK = m.numExpertsUsed
		}
	}
	return nil
}

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
		hiddenStates, err = m.Layers[i].Forward(ctx, hiddenStates, positions, cos, sin, m.Cache, &m.Options)
		if err != nil {
			return nil, err
		}
	}

	if batch.Outputs != nil {
		hiddenStates = hiddenStates.Rows(ctx, batch.Outputs)
	}

	hiddenStates = m.OutputNorm.Forward(ctx, hiddenStates, m.eps)
	return m.Output.Forward(ctx, hiddenStates), nil
}
