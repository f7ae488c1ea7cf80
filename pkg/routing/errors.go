package routing

import (
	"errors"
	"fmt"
)

// ErrNoProvider is returned when no adapter can serve a model. It can
// be checked with errors.Is().
var ErrNoProvider = errors.New("no provider available")

// NoProviderError is returned when routing finds no adapter for the
// requested model.
type NoProviderError struct {
	// Model is the requested model.
	Model string

	// Type is the provider type the fallback table resolved to.
	Type string
}

// Error implements the error interface.
func (e *NoProviderError) Error() string {
	return fmt.Sprintf("no provider available for model %q (type %s)", e.Model, e.Type)
}

// Is implements error matching for errors.Is().
func (e *NoProviderError) Is(target error) bool {
	return target == ErrNoProvider
}
