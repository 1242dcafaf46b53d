package pollster

import "errors"

var (
	// ErrNilResource is returned by [Registry.Get] when the resource is nil.
	ErrNilResource = errors.New("resource cannot be nil")

	// ErrUnhashableResource is returned when a resource has no usable identity:
	// it does not implement [Identifier] and its dynamic type is not comparable.
	ErrUnhashableResource = errors.New("resource identity is not comparable")

	// ErrInvalidDelay is returned for a zero or negative delay.
	ErrInvalidDelay = errors.New("delay must be positive")

	// ErrEmptyAction is returned for an empty action name.
	ErrEmptyAction = errors.New("action cannot be empty")

	// ErrInvalidBufferSize is returned for a subscriber buffer smaller than one.
	ErrInvalidBufferSize = errors.New("buffer size must be at least 1")
)
