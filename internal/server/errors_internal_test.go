package server

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"MarginlyLedger/internal/core"
	"MarginlyLedger/internal/execute"
	fp "MarginlyLedger/internal/math"
	"MarginlyLedger/internal/persistence"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{fmt.Errorf("process: %w", core.ErrDuplicateIntent), codes.AlreadyExists},
		{fmt.Errorf("leverage: %w", fp.ErrDivisionByZero), codes.FailedPrecondition},
		{fmt.Errorf("sub: %w", fp.ErrOutOfRange), codes.FailedPrecondition},
		{fmt.Errorf("intent x: %w: refused", core.ErrDedupUnavailable), codes.Unavailable},
		{fmt.Errorf("long: %w", execute.ErrMissingAmount), codes.InvalidArgument},
		{fmt.Errorf("short: %w", execute.ErrMissingLimitPrice), codes.InvalidArgument},
		{execute.ErrUnknownAction, codes.InvalidArgument},
		{persistence.ErrPreviewNotFound, codes.NotFound},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		if got := codeOf(tt.err); got != tt.want {
			t.Errorf("codeOf(%v): got %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestToStatus_PassesThrough(t *testing.T) {
	in := status.Error(codes.PermissionDenied, "no")
	if got := status.Code(toStatus(in)); got != codes.PermissionDenied {
		t.Errorf("got %v, want PermissionDenied", got)
	}
	if toStatus(nil) != nil {
		t.Error("nil error must stay nil")
	}
}
