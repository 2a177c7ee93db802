package adapter

import "errors"

// errMergedAdapterList is returned by AddAdapter once MergeWeights has run:
// spec.md's State error kind (double quantize, merge-then-mutate) applied
// to adapters.
var errMergedAdapterList = errors.New("adapter: cannot add an adapter after merge_weights")
