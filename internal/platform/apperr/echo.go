package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Body is the JSON error envelope returned to clients.
type Body struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ToHTTP converts a domain error into an echo HTTP error. Non-domain errors
// become a 500 without leaking their text; nil stays nil.
func ToHTTP(err error) error {
	if err == nil {
		return nil
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	var e *Error
	if errors.As(err, &e) {
		return &echo.HTTPError{
			Code:     HTTPStatus(e.Kind),
			Message:  Body{Kind: string(e.Kind), Message: e.Message},
			Internal: err,
		}
	}
	return &echo.HTTPError{
		Code:     http.StatusInternalServerError,
		Message:  Body{Kind: "InternalError", Message: "internal server error"},
		Internal: err,
	}
}

// HTTPErrorHandler renders every error as {kind, message}.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		he := ToHTTP(err).(*echo.HTTPError)

		body, ok := he.Message.(Body)
		if !ok {
			msg, isStr := he.Message.(string)
			if !isStr {
				msg = http.StatusText(he.Code)
			}
			body = Body{Kind: kindForStatus(he.Code), Message: msg}
		}
		if he.Code >= http.StatusInternalServerError {
			logger.Error().Err(err).Str("path", c.Request().URL.Path).Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(he.Code)
		} else {
			err = c.JSON(he.Code, body)
		}
		if err != nil {
			logger.Error().Err(err).Msg("write error response")
		}
	}
}

func kindForStatus(code int) string {
	switch code {
	case http.StatusBadRequest:
		return string(KindValidation)
	case http.StatusNotFound:
		return string(KindNotFound)
	case http.StatusUnauthorized:
		return "Unauthorized"
	case http.StatusForbidden:
		return "Forbidden"
	case http.StatusTooManyRequests:
		return "TooManyRequests"
	case http.StatusServiceUnavailable:
		return string(KindUnavailable)
	case http.StatusGatewayTimeout:
		return "Timeout"
	default:
		return http.StatusText(code)
	}
}
