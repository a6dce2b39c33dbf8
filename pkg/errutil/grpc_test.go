package errutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestToGRPCError(t *testing.T) {
	require.NoError(t, ToGRPCError(nil))

	st, ok := status.FromError(ToGRPCError(NotFound("course not found", nil)))
	require.True(t, ok)
	require.Equal(t, codes.NotFound, st.Code())

	st, _ = status.FromError(ToGRPCError(Conflict("duplicate", nil)))
	require.Equal(t, codes.AlreadyExists, st.Code())

	st, _ = status.FromError(ToGRPCError(context.DeadlineExceeded))
	require.Equal(t, codes.DeadlineExceeded, st.Code())

	st, _ = status.FromError(ToGRPCError(errors.New("boom")))
	require.Equal(t, codes.Internal, st.Code())

	passthrough := status.Error(codes.Unavailable, "down")
	require.Equal(t, passthrough, ToGRPCError(passthrough))
}

func TestToGRPCErrorDetails(t *testing.T) {
	err := New(StatusBadRequest, "missing required payment fields",
		WithReason("MISSING_FIELDS"),
		WithDetails(Detail{Field: "razorpay_signature", Message: "is required"}),
	)

	st, ok := status.FromError(ToGRPCError(err))
	require.True(t, ok)
	require.Equal(t, codes.InvalidArgument, st.Code())

	var info *errdetails.ErrorInfo
	var bad *errdetails.BadRequest
	for _, d := range st.Details() {
		switch v := d.(type) {
		case *errdetails.ErrorInfo:
			info = v
		case *errdetails.BadRequest:
			bad = v
		}
	}
	require.NotNil(t, info)
	require.Equal(t, "MISSING_FIELDS", info.Reason)
	require.NotNil(t, bad)
	require.Len(t, bad.FieldViolations, 1)
	require.Equal(t, "razorpay_signature", bad.FieldViolations[0].Field)
}

func TestToGRPCErrorHidesInternalCause(t *testing.T) {
	st, _ := status.FromError(ToGRPCError(Internal("settlement failed", errors.New("pq: connection reset"))))
	require.Equal(t, codes.Internal, st.Code())
	require.Equal(t, "settlement failed", st.Message())
}
