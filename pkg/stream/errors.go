package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/tabuladb/tabula/pkg/common/sequence"
)

var (
	// ErrUpstream matches every error reported by a row source
	ErrUpstream = errors.New("upstream row source failed")

	// ErrClosed is returned by reads on an adapter closed before its source finished
	ErrClosed = errors.New("stream closed")
)

// UpstreamError wraps the error a row source passed to OnError.
// errors.Is matches both ErrUpstream and the original cause.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", ErrUpstream.Error(), e.Err)
}

// Unwrap returns the original cause
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrUpstream
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// errorType classifies err for stats and metric attributes
func errorType(err error) string {
	switch {
	case errors.Is(err, ErrUpstream):
		return "upstream"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, sequence.ErrProtocolViolation):
		return "protocol_violation"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "context"
	default:
		return "other"
	}
}
