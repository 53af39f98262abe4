// errors.go - Structured error handling for API responses
package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pjw7536/react-timeline2/internal/session"
	"github.com/pjw7536/react-timeline2/internal/source"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// APIError represents a structured API error response
type APIError struct {
	Status   int    `json:"-"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Details  string `json:"details,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error listing the failed fields
func NewValidationError(details string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: "request validation failed",
		Details: details,
	}
}

// NewUnauthorizedError creates a 401 carrying the login redirect
func NewUnauthorizedError(redirect string) *APIError {
	return &APIError{
		Status:   http.StatusUnauthorized,
		Code:     "AUTH_REQUIRED",
		Message:  "authentication required",
		Redirect: redirect,
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewTooManyRequestsError creates a 429 error
func NewTooManyRequestsError(message string) *APIError {
	return &APIError{
		Status:  http.StatusTooManyRequests,
		Code:    "TOO_MANY_VIEWS",
		Message: message,
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewServiceUnavailableError creates a 503 Service Unavailable error
func NewServiceUnavailableError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusServiceUnavailable,
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewGatewayTimeoutError creates a 504 error for upstream timeouts
func NewGatewayTimeoutError(cause error) *APIError {
	return &APIError{
		Status:  http.StatusGatewayTimeout,
		Code:    "UPSTREAM_TIMEOUT",
		Message: "log service timed out",
		Details: cause.Error(),
	}
}

// FromError maps source and session errors onto the API taxonomy.
func FromError(err error, loginURL string) *APIError {
	var (
		apiErr  *APIError
		authErr *source.AuthError
		nfErr   *source.NotFoundError
		reqErr  *source.RequestError
		toErr   *source.TimeoutError
		netErr  *source.NetworkError
		echoErr *echo.HTTPError
	)
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &echoErr):
		return &APIError{
			Status:  echoErr.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", echoErr.Message),
		}
	case errors.As(err, &authErr):
		return NewUnauthorizedError(loginURL)
	case errors.As(err, &nfErr):
		return NewNotFoundError(nfErr.Resource, "")
	case errors.As(err, &reqErr):
		return NewBadRequestError(reqErr.Message, nil)
	case errors.As(err, &toErr):
		return NewGatewayTimeoutError(err)
	case errors.As(err, &netErr):
		return NewServiceUnavailableError("log service unavailable", err)
	case errors.Is(err, session.ErrViewNotFound):
		return NewNotFoundError("view", "")
	case errors.Is(err, session.ErrTooManyViews):
		return NewTooManyRequestsError(err.Error())
	case errors.Is(err, session.ErrNotReady):
		return &APIError{Status: http.StatusConflict, Code: "NOT_READY", Message: err.Error()}
	case errors.Is(err, session.ErrUnknownNode):
		return NewBadRequestError("unknown group node", err)
	}
	return &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "UNKNOWN_ERROR",
		Message: "An unexpected error occurred",
		Details: err.Error(),
	}
}

// NewErrorHandler returns the echo error handler.
// Usage: e.HTTPErrorHandler = api.NewErrorHandler(loginURL)
func NewErrorHandler(loginURL string) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		apiErr := FromError(err, loginURL)
		if apiErr.Status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("component", "api").Str("path", c.Path()).Msg("request failed")
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(apiErr.Status)
			return
		}
		if err := c.JSON(apiErr.Status, apiErr); err != nil {
			log.Warn().Err(err).Str("component", "api").Msg("failed to write error response")
		}
	}
}
