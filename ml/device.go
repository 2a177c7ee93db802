// device.go - device identity and per-backend cache tuning.
//
// A real accelerator backend would back Device with a handle into a
// driver's device list; the one backend this module registers (cpu) uses
// it purely as a label, but every component above ml addresses devices
// through this type so that a future accelerator backend is a backend-only
// change.
package ml

// Device identifies one execution device. Backends assign Devices to the
// Tensors they create; the device map (see package devicemap) decides
// which Device each decoder layer runs on.
type Device struct {
	// ID is the backend-assigned identity of the device, e.g. "cpu:0".
	ID string
}

func (d Device) String() string { return d.ID }

// CacheConfig describes backend-specific transforms for the K/V tensors a
// cache store returns. kvcache does not read it: Causal stores V
// unpermuted and builds every mask as DTypeF32.
type CacheConfig struct {
	// PermutedV requests that V be stored and returned already permuted
	// for the backend's attention kernel, avoiding a Contiguous call.
	PermutedV bool

	// MaskDType is the dtype the attention mask is cast to before being
	// added to attention scores. Defaults to DTypeF32.
	MaskDType DType
}

// BackendCacheConfig is implemented by backends that report a CacheConfig.
type BackendCacheConfig interface {
	CacheConfig() CacheConfig
}
