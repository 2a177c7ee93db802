package cpu

import (
	"fmt"
	"os"
	"sync"

	"github.com/inferno-run/coreinfer/fs"
	"github.com/inferno-run/coreinfer/fs/ggml"
	"github.com/inferno-run/coreinfer/ml"
)

func init() {
	ml.RegisterBackend("cpu", New)
}

// Backend is the pure-Go ml.Backend. It keeps the checkpoint file open for
// the process lifetime and decodes tensors from it lazily, on first Get,
// caching the result; GGUF metadata (KV) is decoded eagerly at New time,
// since the rest of model.New needs it immediately to size every layer.
type Backend struct {
	params  ml.BackendParams
	device  ml.Device
	devices []ml.Device

	file *os.File
	ggml *ggml.GGML

	mu      sync.Mutex
	cache   map[string]*tensor
	byName  map[string]*ggml.Tensor
}

// New opens modelPath, decodes its GGUF container, and returns a Backend
// ready to serve Config and Get. modelPath must be a GGUF file; this
// backend has no safetensors reader of its own, matching spec.md's
// "GGUF/GGML checkpoint" data model.
func New(modelPath string, params ml.BackendParams) (ml.Backend, error) {
	f, err := os.Open(modelPath)
	if err != nil {
		return nil, fmt.Errorf("cpu: opening %s: %w", modelPath, err)
	}

	g, err := ggml.Decode(f, -1)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("cpu: decoding %s: %w", modelPath, err)
	}

	numThreads := params.NumThreads
	if numThreads <= 0 {
		numThreads = 1
	}

	device := ml.Device{ID: "cpu:0"}
	devices := make([]ml.Device, numThreads)
	for i := range devices {
		devices[i] = ml.Device{ID: fmt.Sprintf("cpu:%d", i)}
	}
	if len(devices) == 0 {
		devices = []ml.Device{device}
	}

	byName := make(map[string]*ggml.Tensor)
	for _, t := range g.Tensors().Items() {
		byName[t.Name] = t
	}

	return &Backend{
		params:  params,
		device:  device,
		devices: devices,
		file:    f,
		ggml:    g,
		cache:   make(map[string]*tensor),
		byName:  byName,
	}, nil
}

func (b *Backend) Close() {
	b.file.Close()
}

func (b *Backend) Config() fs.Config {
	kv := b.ggml.KV()
	return kv
}

func (b *Backend) Devices() []ml.Device {
	return b.devices
}

// Get returns the named tensor, decoding and caching it on first access.
// It returns nil if the checkpoint has no tensor by that name, the same
// contract model.populateFields relies on to detect optional weights.
func (b *Backend) Get(name string) ml.Tensor {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.cache[name]; ok {
		return t
	}

	meta, ok := b.byName[name]
	if !ok {
		return nil
	}

	vals, err := readTensorFloats(b.file, b.ggml.Tensors().Offset, meta)
	if err != nil {
		panic(fmt.Sprintf("cpu: Get(%q): %v", name, err))
	}

	// GGUF stores ne[0] as the fastest-varying axis; this backend's tensor
	// shape is row-major with the LAST axis fastest, so the on-disk axis
	// order is reversed here rather than copied straight across. A [out,in]
	// weight matrix is written with ne = [in, out] (in fastest); reversed,
	// shape becomes [out, in], matching every nn package convention that
	// expects a feature axis last.
	shape := make([]int, len(meta.Shape))
	for i, s := range meta.Shape {
		shape[len(shape)-1-i] = int(s)
	}

	dtype := tensorDType(meta)
	t := &tensor{b: b, dtype: dtype, shape: shape, device: b.device}
	if dtype.IsQuantized() {
		t.blocks = quantize(vals, dtype)
	} else {
		t.data = vals
	}

	b.cache[name] = t
	return t
}

func (b *Backend) NewContext() ml.Context {
	return &Context{b: b, device: b.device}
}

func (b *Backend) NewContextSize(size int) ml.Context {
	return b.NewContext()
}

func (b *Backend) CacheConfig() ml.CacheConfig {
	return ml.CacheConfig{MaskDType: ml.DTypeF32}
}
