package mixtral

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferno-run/coreinfer/ml/nn"
)

type fakeConfig map[string]any

func (f fakeConfig) Architecture() string { return "mixtral" }

func (f fakeConfig) String(key string, def ...string) string {
	if v, ok := f[key]; ok {
		return v.(string)
	}
	if len(def) > 0 {
		return def[0]
	}
	return ""
}

func (f fakeConfig) Uint(key string, def ...uint32) uint32 {
	if v, ok := f[key]; ok {
		return v.(uint32)
	}
	if len(def) > 0 {
		return def[0]
	}
	return 0
}

func (f fakeConfig) Float(key string, def ...float32) float32 {
	if v, ok := f[key]; ok {
		return v.(float32)
	}
	if len(def) > 0 {
		return def[0]
	}
	return 0
}

func (f fakeConfig) Bool(key string, def ...bool) bool {
	if v, ok := f[key]; ok {
		return v.(bool)
	}
	if len(def) > 0 {
		return def[0]
	}
	return false
}

func (f fakeConfig) Strings(key string, def ...[]string) []string {
	if len(def) > 0 {
		return def[0]
	}
	return nil
}

func (f fakeConfig) Ints(key string, def ...[]int32) []int32 {
	if len(def) > 0 {
		return def[0]
	}
	return nil
}

func (f fakeConfig) Uints(key string, def ...[]uint32) []uint32 {
	if len(def) > 0 {
		return def[0]
	}
	return nil
}

func (f fakeConfig) Floats(key string, def ...[]float32) []float32 {
	if len(def) > 0 {
		return def[0]
	}
	return nil
}

func TestNewOptionsReadsExpertCounts(t *testing.T) {
	c := fakeConfig{
		"embedding_length":     uint32(4096),
		"attention.head_count": uint32(32),
		"expert_count":         uint32(8),
		"expert_used_count":    uint32(2),
	}
	o := newOptions(c)

	assert.Equal(t, 8, o.numExperts)
	assert.Equal(t, 2, o.numExpertsUsed)
	assert.Equal(t, 128, o.headDim)
}

func TestValidateWiresRouterTopK(t *testing.T) {
	m := &Model{
		Options: Options{numExpertsUsed: 2},
		Layers: []Layer{
			{FeedForward: &nn.MoE{}},
			{FeedForward: nil},
		},
	}

	require.NoError(t, m.Validate())
	assert.Equal(t, 2, m.Layers[0].FeedForward.TopK)
}
