package core

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the renderer. Factory and resolve operations wrap
// one of these sentinels so callers can tell a bad configuration apart from
// the GPU running out of memory.
var (
	// ErrConfiguration marks an invalid combination of user-provided state,
	// such as a shader that does not match a render pass. Never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrExhausted marks the GPU backend failing to allocate a pool, buffer,
	// image or pipeline. Fatal at the allocation call site.
	ErrExhausted = errors.New("resource exhausted")

	// ErrTimeout marks a bounded host wait on a fence that did not signal
	// in time.
	ErrTimeout = errors.New("wait timed out")

	// ErrDeviceLost marks the device becoming unusable mid-operation.
	ErrDeviceLost = errors.New("device lost")
)

// ConfigurationError returns a fatal configuration error. errors.Is on the
// result reports true for ErrConfiguration.
func ConfigurationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// ExhaustionError returns a fatal resource exhaustion error.
func ExhaustionError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrExhausted, fmt.Sprintf(format, args...))
}

// TimeoutError returns an error for a bounded wait that expired.
func TimeoutError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrTimeout, fmt.Sprintf(format, args...))
}
