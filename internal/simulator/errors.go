package simulator

import (
	"errors"
	"fmt"

	"github.com/cablewatch/cablemap/internal/api"
)

// ErrCalculation is returned when the fault position cannot be derived from
// the segment's route, typically because the route has not loaded yet.
var ErrCalculation = errors.New("unable to calculate fault location")

// Kind classifies a failed submission.
type Kind int

const (
	// Duplicate means the data service already holds a fault with this id.
	Duplicate Kind = iota + 1
	// Server means the data service answered with a 5xx status.
	Server
	// Connectivity means the request never received a response.
	Connectivity
	// Aborted means the caller cancelled the request.
	Aborted
	// Rejected covers any other non-success status.
	Rejected
)

func (k Kind) String() string {
	switch k {
	case Duplicate:
		return "duplicate"
	case Server:
		return "server"
	case Connectivity:
		return "connectivity"
	case Aborted:
		return "aborted"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// SubmitError is returned when the data service did not accept a fault.
type SubmitError struct {
	Kind    Kind
	FaultID string
	Err     error
}

func (e *SubmitError) Error() string {
	if e.FaultID == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("fault %s: %s error: %v", e.FaultID, e.Kind, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// Retryable reports whether resubmitting the same fault may succeed.
func (e *SubmitError) Retryable() bool {
	return e.Kind == Server || e.Kind == Connectivity
}

func classify(id string, err error) *SubmitError {
	se := &SubmitError{FaultID: id, Err: err}
	switch {
	case api.IsAborted(err):
		se.Kind = Aborted
	case errors.Is(err, api.ErrConflict):
		se.Kind = Duplicate
	case errors.Is(err, api.ErrServer):
		se.Kind = Server
	case api.IsNetwork(err):
		se.Kind = Connectivity
	default:
		se.Kind = Rejected
	}
	return se
}
