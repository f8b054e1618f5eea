package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/dvloznov/finance-manager/internal/domain"
	"github.com/dvloznov/finance-manager/internal/logger"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error        string   `json:"error"`
	Field        string   `json:"field,omitempty"`
	Retryable    bool     `json:"retryable,omitempty"`
	Inconsistent bool     `json:"inconsistent,omitempty"`
	Committed    []string `json:"committed,omitempty"`
}

// StatusFor maps a service error to its HTTP status and response body.
// Partial failures are checked first: they wrap the error that stopped
// the operation, which may itself be a not-found or unavailable error.
func StatusFor(err error) (int, ErrorResponse) {
	var partial *domain.PartialFailureError
	if errors.As(err, &partial) {
		return http.StatusInternalServerError, ErrorResponse{
			Error:        err.Error(),
			Inconsistent: true,
			Committed:    partial.Committed,
		}
	}

	var invalid *domain.ValidationError
	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest, ErrorResponse{Error: invalid.Message, Field: invalid.Field}
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: err.Error()}
	case errors.Is(err, domain.ErrUpstreamUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Retryable: true}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"}
}

// WriteServiceError logs err with the request logger and writes the mapped
// response.
func WriteServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status, body := StatusFor(err)

	log := logger.FromContext(r.Context())
	ev := log.Warn()
	if status >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).Int("status", status).Msg(msg)

	WriteJSON(w, status, body)
}
