package errutil

import (
	"context"
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/protoadapt"
)

const errorDomain = "marketplace"

// GRPCCode converts the CoreStatus to its closest gRPC status code equivalent.
func (s CoreStatus) GRPCCode() codes.Code {
	switch s {
	case StatusUnauthorized:
		return codes.Unauthenticated
	case StatusForbidden:
		return codes.PermissionDenied
	case StatusNotFound:
		return codes.NotFound
	case StatusTimeout, StatusGatewayTimeout:
		return codes.DeadlineExceeded
	case StatusUnprocessableEntity:
		return codes.FailedPrecondition
	case StatusUnsupportedMediaType, StatusBadRequest, StatusValidationFailed:
		return codes.InvalidArgument
	case StatusConflict:
		return codes.AlreadyExists
	case StatusTooManyRequests:
		return codes.ResourceExhausted
	case StatusClientClosedRequest:
		return codes.Canceled
	case StatusNotImplemented:
		return codes.Unimplemented
	case StatusBadGateway, StatusServiceUnavailable:
		return codes.Unavailable
	case StatusInternal:
		return codes.Internal
	case StatusUnknown:
		return codes.Unknown
	default:
		return codes.Unknown
	}
}

// ToGRPCError converts err into a gRPC status. BaseError reasons travel as an
// ErrorInfo detail and field details as a BadRequest detail; internal causes
// are not exposed to the caller.
func ToGRPCError(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := status.FromError(err); ok {
		return err
	}

	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, err.Error())
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	var base BaseError
	if errors.As(err, &base) {
		return baseStatus(base).Err()
	}

	var coder interface{ Status() CoreStatus }
	if errors.As(err, &coder) {
		return status.Error(coder.Status().GRPCCode(), err.Error())
	}

	return status.Error(codes.Internal, "internal error")
}

func baseStatus(base BaseError) *status.Status {
	msg := base.Message
	if base.Code != StatusInternal {
		msg = base.messageWithErr()
	}
	st := status.New(base.Code.GRPCCode(), msg)

	var details []protoadapt.MessageV1
	if base.Reason != "" {
		details = append(details, &errdetails.ErrorInfo{
			Reason: base.Reason,
			Domain: errorDomain,
		})
	}
	if len(base.Details) > 0 {
		violations := make([]*errdetails.BadRequest_FieldViolation, 0, len(base.Details))
		for _, d := range base.Details {
			violations = append(violations, &errdetails.BadRequest_FieldViolation{
				Field:       d.Field,
				Description: d.Message,
			})
		}
		details = append(details, &errdetails.BadRequest{FieldViolations: violations})
	}
	if len(details) == 0 {
		return st
	}

	withDetails, err := st.WithDetails(details...)
	if err != nil {
		return st
	}
	return withDetails
}
