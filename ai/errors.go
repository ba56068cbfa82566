package ai

import "errors"

var (
	// ErrEmptyResponse is returned when a provider answers without content.
	ErrEmptyResponse = errors.New("provider returned an empty response")

	// ErrDimensionMismatch is returned when a vector's length differs from
	// the configured Dimensions.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrUnknownProvider is returned for an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown AI provider")
)
