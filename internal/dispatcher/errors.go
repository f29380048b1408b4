package dispatcher

import (
	"errors"
	"fmt"

	"github.com/giantswarm/qa-environment/internal/schema"
)

// BatchError aborts a whole GetObservations call. Query-scoped failures are
// never reported this way; they travel in Response.ErrorMessage.
type BatchError struct {
	Code    schema.ErrorCode
	Message string
	Err     error
}

func (e *BatchError) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// CodeOf returns the batch error code carried by err, NoError for nil, and
// NoError for errors that are not batch errors.
func CodeOf(err error) schema.ErrorCode {
	var be *BatchError
	if errors.As(err, &be) {
		return be.Code
	}
	return schema.NoError
}

func newViolationError(v *schema.Violation) *BatchError {
	switch v.Code {
	case schema.NoQueries:
		return &BatchError{Code: v.Code, Message: "request contains no queries"}
	case schema.EmptyQuestion:
		return &BatchError{Code: v.Code, Message: fmt.Sprintf("query %d has an empty question", v.Index)}
	default:
		return &BatchError{Code: v.Code}
	}
}
