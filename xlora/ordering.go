// Package xlora implements the X-LoRA two-pass scheme's load-time pieces:
// the ordering file that names which adapters a classifier was trained
// against, and the small classifier MLP that turns a scaling-pass forward
// into the per-token, per-layer, per-adapter weight tensor the adapter
// package's LoraForward consumes.
package xlora

import (
	"encoding/json"
	"fmt"
	"io"
)

// Ordering is the X-LoRA ordering file: which adapters, in which order,
// a classifier was trained against, and the base model it assumes.
type Ordering struct {
	BaseModelID string   `json:"base_model_id"`
	Adapters    []string `json:"adapters"`
}

// DecodeOrdering reads an ordering file.
func DecodeOrdering(r io.Reader) (Ordering, error) {
	var o Ordering
	if err := json.NewDecoder(r).Decode(&o); err != nil {
		return Ordering{}, fmt.Errorf("xlora: decode ordering file: %w", err)
	}
	return o, nil
}

// Validate rejects a run where the ordering file's base model id, the
// classifier config's base model id, and the actual loaded base model
// disagree — spec.md §6's X-LoRA ordering file consistency check.
func (o Ordering) Validate(classifierBaseModelID, actualBaseModelID string) error {
	if o.BaseModelID != classifierBaseModelID {
		return fmt.Errorf("xlora: ordering base_model_id %q disagrees with classifier config %q", o.BaseModelID, classifierBaseModelID)
	}
	if o.BaseModelID != actualBaseModelID {
		return fmt.Errorf("xlora: ordering base_model_id %q disagrees with loaded model %q", o.BaseModelID, actualBaseModelID)
	}
	if len(o.Adapters) == 0 {
		return fmt.Errorf("xlora: ordering file names no adapters")
	}
	return nil
}
