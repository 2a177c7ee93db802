// Package models blank-imports every architecture package under
// model/models so their init() functions run model.Register before
// model.New looks up an architecture by name. Importing this package
// (rather than an individual architecture) is the normal way to link a
// binary against the full set of supported architectures.
package models

import (
	_ "github.com/inferno-run/coreinfer/model/models/llama"
	_ "github.com/inferno-run/coreinfer/model/models/mixtral"
	_ "github.com/inferno-run/coreinfer/model/models/phi3"
)
