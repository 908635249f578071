package handlers

import (
	"context"
	"errors"

	"github.com/cablewatch/cablemap/internal/dispatcher"
	"github.com/cablewatch/cablemap/internal/engine"
	"github.com/cablewatch/cablemap/internal/fault"
	"github.com/cablewatch/cablemap/internal/segment"
	"github.com/cablewatch/cablemap/internal/simulator"
	"github.com/cablewatch/cablemap/pkg/streaming"
)

// Error kinds reported to clients.
const (
	KindValidation     = "validation"
	KindCalculation    = "calculation"
	KindBadPayload     = "bad_payload"
	KindUnknownCommand = "unknown_command"
	KindUnknownSegment = "unknown_segment"
	KindUnknownPane    = "unknown_pane"
	KindBusy           = "busy"
	KindAborted        = "aborted"
	KindInternal       = "internal"
)

// DescribeError turns a handler error into the payload sent to the client.
func DescribeError(command string, err error) streaming.ErrorPayload {
	p := streaming.ErrorPayload{For: command, Kind: KindInternal, Message: "The request could not be completed."}

	var se *simulator.SubmitError
	switch {
	case err == nil:
		return streaming.ErrorPayload{For: command}
	case errors.Is(err, dispatcher.ErrUnknownCommand):
		p.Kind = KindUnknownCommand
		p.Message = "Unknown command."
	case errors.Is(err, dispatcher.ErrBadPayload):
		p.Kind = KindBadPayload
		p.Message = "The request could not be read."
	case errors.Is(err, dispatcher.ErrQueueFull):
		p.Kind = KindBusy
		p.Message = "The server is busy, try again."
		p.Retryable = true
	case errors.As(err, &se):
		p.Kind = se.Kind.String()
		p.Message = submitMessage(se.Kind)
		p.Retryable = se.Retryable()
	case errors.Is(err, simulator.ErrCalculation):
		p.Kind = KindCalculation
		p.Message = "Unable to calculate the fault location. The route may still be loading."
		p.Retryable = true
	case errors.Is(err, segment.ErrUnknownSegment):
		p.Kind = KindUnknownSegment
		p.Message = "Unknown cable segment."
	case errors.Is(err, engine.ErrUnknownPane):
		p.Kind = KindUnknownPane
		p.Message = "Unknown map pane."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		p.Kind = KindAborted
		p.Message = "The request was cancelled."
	default:
		if ve, ok := fault.AsValidationError(err); ok {
			p.Kind = KindValidation
			p.Field = ve.Field()
			p.Message = ve.Error()
		}
	}
	return p
}

func submitMessage(k simulator.Kind) string {
	switch k {
	case simulator.Duplicate:
		return "A fault with this ID already exists."
	case simulator.Server:
		return "The data service failed to store the fault. Try again."
	case simulator.Connectivity:
		return "The data service could not be reached. Check the connection and try again."
	case simulator.Aborted:
		return "The submission was cancelled."
	default:
		return "The data service rejected the fault."
	}
}
