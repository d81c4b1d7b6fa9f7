// Package httpx holds the JSON envelope shared by every handler and the
// echo error handler that maps service errors onto it.
package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mcare/mcare/internal/platform/apperr"
	"github.com/mcare/mcare/internal/validation"
	"github.com/mcare/mcare/pkg/pagination"
)

// Envelope is the body of every response.
type Envelope struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message,omitempty"`
	Data       any               `json:"data,omitempty"`
	Errors     map[string]string `json:"errors,omitempty"`
	Pagination *pagination.Meta  `json:"pagination,omitempty"`
}

// OK writes a success envelope.
func OK(c echo.Context, status int, data any, message string) error {
	return c.JSON(status, Envelope{Success: true, Data: data, Message: message})
}

// Page writes a success envelope for one page of a listing.
func Page(c echo.Context, items any, p pagination.Params, total int) error {
	meta := pagination.NewMeta(p, total)
	return c.JSON(http.StatusOK, Envelope{Success: true, Data: items, Pagination: &meta})
}

// BindPayload decodes the request body as a JSON object.
func BindPayload(c echo.Context) (validation.Payload, error) {
	var p validation.Payload
	if err := (&echo.DefaultBinder{}).BindBody(c, &p); err != nil {
		return nil, apperr.BadRequest("request body must be a JSON object")
	}
	if p == nil {
		return nil, apperr.BadRequest("request body must be a JSON object")
	}
	return p, nil
}

// IDParam parses a positive integer path parameter.
func IDParam(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 1 {
		return 0, apperr.BadRequest(fmt.Sprintf("invalid %s", name))
	}
	return id, nil
}

// OptionalIDQuery parses an optional positive integer query parameter.
func OptionalIDQuery(c echo.Context, name string) (*int64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return nil, apperr.BadRequest(fmt.Sprintf("invalid %s", name))
	}
	return &id, nil
}

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindBadRequest, apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler renders every error returned by a handler or middleware as
// an Envelope. Causes of internal errors are exposed only when
// exposeInternal is set.
func ErrorHandler(logger zerolog.Logger, exposeInternal bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := render(err, exposeInternal)
		if status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Msg("request failed")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, body)
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("write error response")
		}
	}
}

func render(err error, exposeInternal bool) (int, Envelope) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok {
			msg = s
		}
		return he.Code, Envelope{Message: msg}
	}

	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.Internal(err)
	}
	body := Envelope{Message: ae.Message, Errors: ae.Fields}
	if ae.Kind == apperr.KindInternal && exposeInternal && ae.Err != nil {
		body.Errors = map[string]string{"detail": ae.Err.Error()}
	}
	return statusOf(ae.Kind), body
}
