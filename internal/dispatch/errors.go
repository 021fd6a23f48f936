package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrTimeout classifies a call that hit its deadline or was cancelled.
var ErrTimeout = errors.New("dispatch timed out")

// StatusError reports a non-2xx response from the remote renderer.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("remote returned status %d: %s", e.StatusCode, e.Body)
}

// IsStatusError returns true if err carries a non-2xx response.
// Uses errors.As to handle wrapped errors.
func IsStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

// IsTimeout reports whether err is a deadline, a cancellation, or a
// network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Outcome labels used in logs, metrics and notices.
const (
	OutcomeOK             = "ok"
	OutcomeSkipped        = "skipped"
	OutcomeTimeout        = "timeout"
	OutcomeHTTPError      = "http_error"
	OutcomeTransportError = "transport_error"
)

func classify(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case IsStatusError(err):
		return OutcomeHTTPError
	case IsTimeout(err):
		return OutcomeTimeout
	default:
		return OutcomeTransportError
	}
}
