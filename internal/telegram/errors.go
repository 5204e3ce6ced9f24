package telegram

import (
	"fmt"
	"time"
)

// APIError is a Bot API failure (ok=false envelope or non-2xx status).
type APIError struct {
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram error: code=%d retry_after=%s description=%s", e.Code, e.RetryAfter, e.Description)
	}
	return fmt.Sprintf("telegram error: code=%d description=%s", e.Code, e.Description)
}

// Transient reports whether the failure is flood control or a server-side
// problem worth retrying.
func (e *APIError) Transient() bool {
	return e.Code == 429 || e.Code >= 500
}

// UnreachableError indicates the Bot API could not be reached at all.
type UnreachableError struct{ Err error }

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("telegram unreachable: %v", e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

func (e *UnreachableError) Transient() bool { return true }
