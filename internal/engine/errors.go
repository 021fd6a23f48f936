package engine

import (
	"errors"
	"fmt"
)

// HandlerPanicError reports a handler that panicked while processing an
// event. The engine recovers it and keeps running.
type HandlerPanicError struct {
	Value any
}

// Error implements the error interface.
func (e *HandlerPanicError) Error() string {
	return fmt.Sprintf("handler panicked: %v", e.Value)
}

// IsHandlerPanic returns true if the error is a recovered handler panic.
// Uses errors.As to handle wrapped errors.
func IsHandlerPanic(err error) bool {
	var pe *HandlerPanicError
	return errors.As(err, &pe)
}
