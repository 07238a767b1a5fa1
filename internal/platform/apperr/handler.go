package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Body is the JSON envelope written for every error response.
type Body struct {
	Error Detail `json:"error"`
}

// Detail is the payload inside Body.
type Detail struct {
	Code    Kind              `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// HTTPErrorHandler returns an echo.HTTPErrorHandler that renders *Error,
// *echo.HTTPError and unknown errors into Body. Unknown and internal errors
// are logged and their cause is hidden from the client.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := render(err)
		if status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, body)
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("failed to write error response")
		}
	}
}

func render(err error) (int, Body) {
	var appErr *Error
	if errors.As(err, &appErr) {
		msg := appErr.Message
		if appErr.Kind == KindInternal {
			msg = "internal server error"
		}
		return appErr.Status(), Body{Error: Detail{Code: appErr.Kind, Message: msg, Fields: appErr.Fields}}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		kind := kindForStatus(he.Code)
		msg := fmt.Sprintf("%v", he.Message)
		if kind == KindInternal {
			msg = "internal server error"
		}
		return he.Code, Body{Error: Detail{Code: kind, Message: msg}}
	}

	return http.StatusInternalServerError, Body{Error: Detail{Code: KindInternal, Message: "internal server error"}}
}

// kindForStatus classifies echo's own errors (404 route miss, 405, 413, bind failures).
func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuthentication
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status >= 400 && status < 500:
		return KindValidation
	default:
		return KindInternal
	}
}
