package worker

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// transientMarkers are lowercase message fragments matched when the
// error chain carries no typed cause, as with errors that crossed a
// driver boundary as plain strings.
var transientMarkers = []string{
	"timeout",
	"connection lost",
	"connection refused",
	"connection reset",
	"broken pipe",
}

// IsTransient reports whether the error looks like a temporary
// infrastructure failure. Transient failures park the job on the dead
// list for redelivery instead of being swallowed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
