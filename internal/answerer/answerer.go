// Package answerer defines the pluggable backend capability that turns one
// query into one response, together with the reference backends shipped with
// the environment.
package answerer

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/giantswarm/qa-environment/internal/schema"
)

// ErrUnavailable marks a backend-wide failure (the backend cannot be reached
// at all). The dispatcher aborts the whole batch on such errors instead of
// recording them per query.
var ErrUnavailable = errors.New("answer backend unavailable")

// Answerer produces a response for a single query. Implementations must be
// safe for concurrent use.
type Answerer interface {
	Answer(ctx context.Context, q *schema.Query) (*schema.Response, error)
}

// Func adapts an ordinary function to the Answerer interface.
type Func func(ctx context.Context, q *schema.Query) (*schema.Response, error)

// Answer calls f(ctx, q).
func (f Func) Answer(ctx context.Context, q *schema.Query) (*schema.Response, error) {
	return f(ctx, q)
}

// HealthChecker is implemented by backends that can tell, before any query is
// dispatched, whether they are reachable.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// UnsupportedBackendError is returned when an unknown backend is requested.
type UnsupportedBackendError struct {
	Name string
}

func (e *UnsupportedBackendError) Error() string {
	return "unsupported answer backend: " + e.Name
}

// Unavailable wraps err so that errors.Is(err, ErrUnavailable) holds.
func Unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// classifyTransport marks dial failures as backend-wide unavailability and
// returns every other error unchanged.
func classifyTransport(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return Unavailable(err)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return Unavailable(err)
	}
	return err
}
