package mediapool

import "errors"

var (
	// ErrNotAllocated is returned when freeing a consumer that holds no slot.
	ErrNotAllocated = errors.New("consumer holds no slot")

	// ErrPoolClosed is returned when a binding lays out against a closed pool.
	ErrPoolClosed = errors.New("pool is closed")

	// ErrInvalidState is returned for lifecycle transitions that are not
	// allowed from the binding's current state.
	ErrInvalidState = errors.New("invalid lifecycle state")

	// ErrNotBuilt is returned when laying out a binding before Build.
	ErrNotBuilt = errors.New("binding is not built")

	// ErrDestroyed is returned by operations on a destroyed binding and
	// completes any readiness still pending at destruction.
	ErrDestroyed = errors.New("binding is destroyed")

	// ErrNotAllowed is returned by elements that refuse unmuted playback
	// before a user gesture has unlocked them.
	ErrNotAllowed = errors.New("playback not allowed without user gesture")

	// ErrNotSupported is returned by elements without playback capability.
	ErrNotSupported = errors.New("playback not supported")

	// ErrNoSupportedSource is reported when an element is loaded without any
	// usable source.
	ErrNoSupportedSource = errors.New("no supported source")

	// ErrContainerNotFound is returned for unknown container ids.
	ErrContainerNotFound = errors.New("container not found")

	// ErrPlayerNotFound is returned for unknown player ids.
	ErrPlayerNotFound = errors.New("player not found")

	// ErrPlayerExists is returned when registering a player id twice in one
	// container.
	ErrPlayerExists = errors.New("player already exists")
)
