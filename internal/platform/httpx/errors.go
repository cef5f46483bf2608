// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/pricebook/pricebook/internal/shared"
)

var (
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// Status maps an error of the shared taxonomy to its HTTP status and title.
func Status(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest, "Validation Failed"
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, shared.ErrConflict):
		return http.StatusConflict, "Conflict"
	case errors.Is(err, shared.ErrAllocation):
		return http.StatusUnprocessableEntity, "Code Space Exhausted"
	case errors.Is(err, shared.ErrEmptyData):
		return http.StatusUnprocessableEntity, "No Data"
	case errors.Is(err, shared.ErrPartialEdit):
		// must precede transport: a partial edit wraps the failed insert
		return http.StatusInternalServerError, "Partial Edit"
	case errors.Is(err, shared.ErrTransport):
		return http.StatusServiceUnavailable, "Store Unavailable"
	case errors.Is(err, ErrUnauthorized), errors.Is(err, shared.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	default:
		return http.StatusInternalServerError, "Internal Error"
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
// Taxonomy errors carry a user facing message which becomes the detail.
func RespondError(w http.ResponseWriter, err error) {
	status, title := Status(err)
	detail := ""
	if status != http.StatusInternalServerError || errors.Is(err, shared.ErrPartialEdit) {
		detail = err.Error()
	}
	p := ProblemDetail{Title: title, Status: status, Detail: detail}
	if fields := fieldErrors(err); len(fields) > 0 {
		p.Errors = fields
	}
	JSON(w, status, p)
}

func fieldErrors(err error) map[string]string {
	if !errors.Is(err, shared.ErrValidation) {
		return nil
	}
	return shared.FormErrors(err)
}
