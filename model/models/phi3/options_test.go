package phi3

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/inferno-run/coreinfer/kvcache"
)

// fakeConfig is a minimal fs.Config backed by a plain map, enough to drive
// newOptions without decoding a real GGUF file.
type fakeConfig map[string]any

func (f fakeConfig) Architecture() string { return "phi3" }

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

func TestNewOptionsDerivesHeadDimFromEmbedding(t *testing.T) {
	c := fakeConfig{
		"embedding_length":      uint32(3072),
		"attention.head_count":  uint32(32),
	}
	o := newOptions(c)

	assert.Equal(t, 96, o.headDim)
	assert.Equal(t, 96, o.ropeDim, "ropeDim defaults to the full head dimension")
	assert.Equal(t, 32, o.numKVHeads, "numKVHeads defaults to numHeads when absent")
	assert.False(t, o.qkLayerNorm)
	assert.Equal(t, kvcache.NoWindow, o.windowPolicy)
}

func TestNewOptionsPartialRotaryAndQKNorm(t *testing.T) {
	c := fakeConfig{
		"embedding_length":          uint32(3072),
		"attention.head_count":      uint32(32),
		"attention.head_count_kv":   uint32(8),
		"rope.dimension_count":      uint32(32),
		"attention.qk_layernorm":    true,
		"attention.sliding_window":  uint32(2048),
		"attention.sliding_window_2x": true,
	}
	o := newOptions(c)

	assert.Equal(t, 96, o.headDim)
	assert.Equal(t, 32, o.ropeDim, "a partial rotary factor must not default to headDim")
	assert.Equal(t, 8, o.numKVHeads)
	assert.True(t, o.qkLayerNorm)
	assert.Equal(t, 2048, o.slidingWindow)
	assert.Equal(t, kvcache.Policy2x, o.windowPolicy)
}
