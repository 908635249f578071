package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConflict is returned for HTTP 409: a fault with that id already exists.
	ErrConflict = errors.New("fault already exists")

	// ErrServer matches any StatusError with a 5xx code.
	ErrServer = errors.New("data service error")
)

// StatusError is a non-success HTTP response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s %s returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s returned status %d", e.Method, e.Path, e.StatusCode)
}

// Is maps 409 to ErrConflict and 5xx to ErrServer.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	case ErrServer:
		return e.StatusCode >= 500
	}
	return false
}

// NetworkError is a transport failure that was not caused by cancellation.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsAborted reports whether err came from a cancelled or superseded request.
// Aborted requests are never surfaced to operators.
func IsAborted(err error) bool {
	return errors.Is(err, context.Canceled)
}

// IsNetwork reports whether err is a NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// wrapTransport classifies an error from http.Client.Do.
func wrapTransport(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.Canceled) {
		return fmt.Errorf("%s aborted: %w", op, context.Canceled)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s aborted: %w", op, err)
	}
	return &NetworkError{Op: op, Err: err}
}
