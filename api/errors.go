package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"kanflow/domain"
)

var errInvalidBody = errors.New("invalid body")

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errInvalidBody),
		errors.Is(err, domain.ErrInvalidTask),
		errors.Is(err, domain.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrExternalTask),
		errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError answers with the mapped status. Internal errors are not echoed
// back to the caller.
func writeError(c echo.Context, err error) error {
	status := statusForError(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		c.Logger().Error(err)
		msg = http.StatusText(status)
	}
	return c.JSON(status, errorResponse{Error: msg})
}
