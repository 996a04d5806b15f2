package model

import (
	"github.com/pkg/errors"
)

// Sentinel errors forming the failure taxonomy. Callers classify with
// errors.Is; adapters attach context with errors.Wrapf.
var (
	// ErrMissingDependency means a required inference runtime is not
	// installed. Distinct from ErrNotFound: installing software fixes one,
	// supplying a file fixes the other.
	ErrMissingDependency = errors.New("inference runtime not available")

	// ErrNotFound means a local model artifact path does not exist.
	ErrNotFound = errors.New("model artifact not found")

	// ErrNotLoaded means Predict was called before a successful Load.
	ErrNotLoaded = errors.New("model not loaded")

	// ErrBadInput means the image or a required parameter was malformed or
	// missing. Fatal to the single call only.
	ErrBadInput = errors.New("bad input")

	// ErrUnsupportedModel means the requested family is not registered.
	ErrUnsupportedModel = errors.New("unsupported model")

	// ErrConfiguration means an operation was invoked with an unusable
	// configuration, e.g. a local-artifact family loaded without a source.
	ErrConfiguration = errors.New("invalid configuration")
)
