// Package fs defines the metadata surface the model loader consumes from a
// checkpoint container, independent of whether that container is a
// safetensors-derived tensor map or a GGUF/GGML file. Decoding the
// container itself lives in fs/ggml; this interface is what ml.Backend and
// model.New are written against.
package fs

// Config exposes the typed key/value metadata carried by a checkpoint.
// Implementations (fs/ggml.KV, or a caller-built map for safetensors
// checkpoints) resolve architecture-prefixed keys, e.g. Uint("attention.head_count")
// looks up "llama.attention.head_count" for an architecture of "llama".
type Config interface {
	Architecture() string
	String(key string, defaultValue ...string) string
	Uint(key string, defaultValue ...uint32) uint32
	Float(key string, defaultValue ...float32) float32
	Bool(key string, defaultValue ...bool) bool
	Strings(key string, defaultValue ...[]string) []string
	Ints(key string, defaultValue ...[]int32) []int32
	Uints(key string, defaultValue ...[]uint32) []uint32
	Floats(key string, defaultValue ...[]float32) []float32
}
