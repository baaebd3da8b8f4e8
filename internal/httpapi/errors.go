package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker/v2"

	"meetingsattendance/internal/attendance"
	"meetingsattendance/internal/logging"
	"meetingsattendance/internal/platform"
)

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, attendance.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, attendance.ErrInvalidInput), errors.Is(err, platform.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, platform.ErrConfiguration), errors.Is(err, platform.ErrInvalidData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, platform.ErrAuthentication), errors.Is(err, platform.ErrFormat):
		return http.StatusBadGateway
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. extra is merged into the body.
func fail(c *gin.Context, err error, extra gin.H) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}
	if status == http.StatusInternalServerError {
		logging.Ctx(c.Request.Context()).Error().Err(err).Str("route", c.FullPath()).Msg("request failed")
		body["error"] = "internal error"
	}
	var fields attendance.FieldErrors
	if errors.As(err, &fields) {
		body["fields"] = fields
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
