package service

import (
	"context"
	"errors"
	"strconv"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/giantswarm/qa-environment/internal/dispatcher"
	"github.com/giantswarm/qa-environment/internal/schema"
)

// ErrorDomain is the ErrorInfo domain attached to batch errors.
const ErrorDomain = "qaenv"

// GRPCCode maps a batch error code to its gRPC status code.
func GRPCCode(code schema.ErrorCode) codes.Code {
	switch code {
	case schema.NoError:
		return codes.OK
	case schema.NoQueries, schema.EmptyQuestion:
		return codes.InvalidArgument
	case schema.ScrapeFailed:
		return codes.Unavailable
	default:
		return codes.Unknown
	}
}

// toStatus converts an error from the dispatch path into a gRPC status error.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	// A BatchError may wrap a status from a remote backend; the batch code
	// takes precedence over it.
	var be *dispatcher.BatchError
	if !errors.As(err, &be) {
		if _, ok := status.FromError(err); ok {
			return err
		}
	}

	switch {
	case be != nil:
		st := status.New(GRPCCode(be.Code), be.Error())
		detailed, derr := st.WithDetails(&errdetails.ErrorInfo{
			Reason:   be.Code.String(),
			Domain:   ErrorDomain,
			Metadata: map[string]string{"error_code": strconv.Itoa(int(be.Code))},
		})
		if derr != nil {
			return st.Err()
		}
		return detailed.Err()
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// ErrorCodeOf recovers the batch error code from an error returned by
// GetObservations, on either side of the wire. It returns NoError for nil and
// for errors that carry no code (transport failures, cancellation).
func ErrorCodeOf(err error) schema.ErrorCode {
	if err == nil {
		return schema.NoError
	}
	if code := dispatcher.CodeOf(err); code != schema.NoError {
		return code
	}
	st, ok := status.FromError(err)
	if !ok {
		return schema.NoError
	}
	for _, d := range st.Details() {
		info, ok := d.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != ErrorDomain {
			continue
		}
		if code, err := schema.ParseErrorCode(info.GetReason()); err == nil {
			return code
		}
		if n, err := strconv.Atoi(info.GetMetadata()["error_code"]); err == nil {
			return schema.ErrorCode(n)
		}
	}
	return schema.NoError
}
