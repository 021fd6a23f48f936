package reconcile

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidJSON is returned when the request body is not JSON at all.
var ErrInvalidJSON = errors.New("invalid JSON in request body")

// ValidationError rejects an entire batch. Details holds one message per
// offending item, in body order.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Details, "; "))
}

// IsValidation returns true if err rejects a batch on validation grounds.
// Uses errors.As to handle wrapped errors.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
