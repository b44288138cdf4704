package errors

import (
	"errors"
	"net/http"

	"pomodoro/focusd/internal/preferences"
	"pomodoro/focusd/internal/timer"
)

type APIError struct {
	Status  int         `json:"-"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

func New(status int, code, message string) *APIError {
	return &APIError{
		Status:  status,
		Code:    code,
		Message: message,
	}
}

func Internal(message string) *APIError {
	if message == "" {
		message = "internal server error"
	}
	return New(http.StatusInternalServerError, "internal_error", message)
}

func BadRequest(code, message string) *APIError {
	return New(http.StatusBadRequest, code, message)
}

func Unauthorized(message string) *APIError {
	if message == "" {
		message = "unauthorized"
	}
	return New(http.StatusUnauthorized, "unauthorized", message)
}

func NotFound(code, message string) *APIError {
	return New(http.StatusNotFound, code, message)
}

func Conflict(code, message string, details interface{}) *APIError {
	err := New(http.StatusConflict, code, message)
	err.Details = details
	return err
}

func UnprocessableEntity(code, message string, details interface{}) *APIError {
	err := New(http.StatusUnprocessableEntity, code, message)
	err.Details = details
	return err
}

func ServiceUnavailable(code, message string) *APIError {
	return New(http.StatusServiceUnavailable, code, message)
}

// FromTimer maps an error returned by the timer package onto the API error
// space. Unknown errors become internal errors carrying fallback.
func FromTimer(err error, fallback string) *APIError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, timer.ErrPhaseNotInCycle):
		return UnprocessableEntity("phase_not_in_cycle", "phase does not occur in the configured cycle", nil)
	case errors.Is(err, timer.ErrInvalidSettings):
		return BadRequest("invalid_settings", err.Error())
	case errors.Is(err, preferences.ErrStorageUnavailable):
		return ServiceUnavailable("storage_unavailable", "preference storage is unavailable")
	case errors.Is(err, timer.ErrManagerClosed):
		return ServiceUnavailable("shutting_down", "server is shutting down")
	default:
		return Internal(fallback)
	}
}
