package server

import (
	"context"
	"errors"

	"MarginlyLedger/internal/core"
	"MarginlyLedger/internal/execute"
	"MarginlyLedger/internal/ingestion"
	fp "MarginlyLedger/internal/math"
	"MarginlyLedger/internal/persistence"
	"MarginlyLedger/internal/state"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	errInvalidRequest = errors.New("invalid request")
	errNotConfigured  = errors.New("not configured")
)

// toStatus maps domain errors to gRPC status codes. Errors that already carry
// a status pass through.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if s, ok := status.FromError(err); ok && s.Code() != codes.Unknown {
		return err
	}
	return status.Error(codeOf(err), err.Error())
}

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, core.ErrDuplicateIntent):
		return codes.AlreadyExists
	case errors.Is(err, core.ErrDedupUnavailable):
		return codes.Unavailable
	case errors.Is(err, fp.ErrDivisionByZero), errors.Is(err, fp.ErrOutOfRange):
		return codes.FailedPrecondition
	case errors.Is(err, errInvalidRequest),
		errors.Is(err, ingestion.ErrMalformedIntent),
		errors.Is(err, ingestion.ErrUnknownKind),
		errors.Is(err, core.ErrInvalidIntent),
		errors.Is(err, execute.ErrUnknownAction),
		errors.Is(err, execute.ErrMissingAmount),
		errors.Is(err, execute.ErrMissingLimitPrice),
		errors.Is(err, state.ErrUnknownPositionType):
		return codes.InvalidArgument
	case errors.Is(err, persistence.ErrPreviewNotFound):
		return codes.NotFound
	case errors.Is(err, errNotConfigured):
		return codes.Unimplemented
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}
