package llm

import (
	"context"
	"errors"
	"net"
)

// TransientError marks failures worth retrying: rate limits, provider 5xx,
// unreachable endpoints. Auth and validation errors must not implement it.
type TransientError interface {
	error
	Transient() bool
}

// IsTransient reports whether err is a retryable external failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te TransientError
	if errors.As(err, &te) {
		return te.Transient()
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
