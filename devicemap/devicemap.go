// Package devicemap assigns decoder layers to devices and moves
// activations across device boundaries between layers.
//
// Ported from the teacher's ml.GPULayers/GPULayersList (ml/device_layers.go),
// which assigns contiguous layer ranges to GPUs for offload accounting.
// Here the same "ordered list of (device, first, last) ranges" shape is
// generalized from "GPU offload" to "arbitrary pipeline-parallel device
// assignment" per spec.md §4.2: Map resolves which device owns a layer
// (or its adapter) and moves an activation tensor across that boundary at
// most once per layer.
package devicemap

import (
	"fmt"
	"sort"

	"github.com/inferno-run/coreinfer/ml"
)

// Range assigns layers [First, Last] (inclusive) to Device.
type Range struct {
	Device     ml.Device
	First, Last int
}

func (r Range) contains(layer int) bool { return layer >= r.First && layer <= r.Last }

// Map is an ordered list of layer ranges covering every layer of a model.
type Map struct {
	ranges []Range
	// adapterDevice, when set, is where LoRA/X-LoRA adapter tensors live
	// regardless of which device owns the base projection's layer. A nil
	// map entry means adapters live alongside their layer.
	adapterDevice map[int]ml.Device
}

// New builds a Map from an ordered, non-overlapping list of ranges that
// together cover layers [0, numLayers). A single range spanning all layers
// places the whole model on one device.
func New(numLayers int, ranges []Range) (*Map, error) {
	sorted := append([]Range(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].First < sorted[j].First })

	covered := 0
	for _, r := range sorted {
		if r.First != covered {
			return nil, fmt.Errorf("devicemap: gap or overlap before layer %d", r.First)
		}
		if r.Last < r.First {
			return nil, fmt.Errorf("devicemap: invalid range %+v", r)
		}
		covered = r.Last + 1
	}
	if covered != numLayers {
		return nil, fmt.Errorf("devicemap: ranges cover %d layers, want %d", covered, numLayers)
	}

	return &Map{ranges: sorted}, nil
}

// Single places every layer of a numLayers-layer model on one device.
func Single(numLayers int, device ml.Device) *Map {
	m, err := New(numLayers, []Range{{Device: device, First: 0, Last: numLayers - 1}})
	if err != nil {
		panic(err) // unreachable: a single full-width range always validates
	}
	return m
}

// DeviceFor returns the device that owns layer idx.
func (m *Map) DeviceFor(layer int) (ml.Device, error) {
	for _, r := range m.ranges {
		if r.contains(layer) {
			return r.Device, nil
		}
	}
	return ml.Device{}, fmt.Errorf("devicemap: layer %d out of range", layer)
}

// AdapterDeviceFor is DeviceFor, except adapter tensors can be pinned to a
// different device than their base layer via SetAdapterDevice.
func (m *Map) AdapterDeviceFor(layer int) (ml.Device, error) {
	if d, ok := m.adapterDevice[layer]; ok {
		return d, nil
	}
	return m.DeviceFor(layer)
}

// SetAdapterDevice pins the adapter tensors of layer to device, independent
// of the base projection's device.
func (m *Map) SetAdapterDevice(layer int, device ml.Device) {
	if m.adapterDevice == nil {
		m.adapterDevice = make(map[int]ml.Device)
	}
	m.adapterDevice[layer] = device
}

// Assign returns x unchanged if it already resides on the device owning
// layer, else moves it there. Call this, not a raw device transfer, so
// that "activations cross a device boundary at most once per layer" stays
// a property of the call site rather than of the tensor type.
func (m *Map) Assign(ctx ml.Context, layer int, isAdapter bool, x ml.Tensor) (ml.Tensor, error) {
	var (
		device ml.Device
		err    error
	)
	if isAdapter {
		device, err = m.AdapterDeviceFor(layer)
	} else {
		device, err = m.DeviceFor(layer)
	}
	if err != nil {
		return nil, err
	}

	if x.Device() == device {
		return x, nil
	}
	return x.ToDevice(ctx, device), nil
}

// MoveActivation moves an activation tensor to the device that owns
// nextLayer, to be called once between consecutive decoder layers.
func (m *Map) MoveActivation(ctx ml.Context, x ml.Tensor, nextLayer int) (ml.Tensor, error) {
	return m.Assign(ctx, nextLayer, false, x)
}

// NumLayers reports how many layers this map covers.
func (m *Map) NumLayers() int {
	if len(m.ranges) == 0 {
		return 0
	}
	return m.ranges[len(m.ranges)-1].Last + 1
}
