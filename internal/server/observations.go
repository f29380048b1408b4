package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/giantswarm/qa-environment/internal/observability"
	"github.com/giantswarm/qa-environment/internal/runner"
	"github.com/giantswarm/qa-environment/internal/schema"
	"github.com/giantswarm/qa-environment/internal/service"
)

const (
	maxRequestBytes = 16 << 20

	// statusClientClosedRequest is the nginx convention for a caller that
	// went away before the response was ready.
	statusClientClosedRequest = 499
)

// ErrorBody is the JSON body of a failed observations request.
type ErrorBody struct {
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message"`
}

type observationsHandler struct {
	env     runner.ObservationsClient
	logger  *slog.Logger
	metrics *observability.Metrics
}

func (h *observationsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req schema.EnvironmentRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		h.finish(w, r, http.StatusBadRequest, ErrorBody{Message: "invalid request body: " + err.Error()})
		return
	}

	resp, err := h.env.GetObservations(r.Context(), &req)
	if err != nil {
		body := ErrorBody{Message: status.Convert(err).Message()}
		if code := service.ErrorCodeOf(err); code != schema.NoError {
			body.ErrorCode = code.String()
		}
		h.finish(w, r, httpStatus(err), body)
		return
	}
	h.finish(w, r, http.StatusOK, resp)
}

func (h *observationsHandler) finish(w http.ResponseWriter, r *http.Request, code int, body any) {
	h.metrics.RequestHandled("http", r.URL.Path, strconv.Itoa(code))
	if code >= http.StatusInternalServerError {
		h.logger.Error("observations request failed", "status", code, "body", body)
	}
	writeJSON(w, code, body)
}

// httpStatus maps a GetObservations error onto an HTTP status.
func httpStatus(err error) int {
	switch status.Code(err) {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Canceled:
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
