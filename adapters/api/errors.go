package api

import (
	"net/http"

	"goregime/internal/errors"

	"github.com/go-chi/render"
)

// APIError is the JSON error body
type APIError struct {
	StatusCode int    `json:"status_code"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string { return e.Message }

// Render implements render.Renderer
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// errorFor maps an application error to its HTTP status. Input errors are 422.
func errorFor(err error) *APIError {
	code := errors.GetCode(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.CodeInputError:
		status = http.StatusUnprocessableEntity
	case errors.CodeNotFound:
		status = http.StatusNotFound
	case errors.CodeConfigInvalid:
		status = http.StatusBadRequest
	case errors.CodeCacheError, errors.CodeDatabaseError:
		status = http.StatusServiceUnavailable
	}
	return &APIError{StatusCode: status, ErrorCode: code, Message: err.Error()}
}

func badRequest(message string) *APIError {
	return &APIError{StatusCode: http.StatusBadRequest, ErrorCode: "INVALID_REQUEST", Message: message}
}
