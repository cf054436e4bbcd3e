package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/zerobase/internal/errs"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

var statusBySentinel = []struct {
	err    error
	status int
}{
	{errs.ErrValidation, http.StatusBadRequest},
	{errs.ErrQuotaExceeded, http.StatusBadRequest},
	{errs.ErrUnauthorized, http.StatusUnauthorized},
	{errs.ErrForbidden, http.StatusForbidden},
	{errs.ErrTokenInvalid, http.StatusForbidden},
	{errs.ErrTokenExpired, http.StatusForbidden},
	{errs.ErrNotFound, http.StatusNotFound},
	{errs.ErrConflict, http.StatusConflict},
	{errs.ErrRateLimited, http.StatusTooManyRequests},
}

// statusFor maps a service error onto an HTTP status. Unclassified errors are 500.
func statusFor(err error) int {
	for _, s := range statusBySentinel {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// messageFor drops the leading "<sentinel>: " from a wrapped error so clients
// see only the detail.
func messageFor(err error) string {
	msg := err.Error()
	for _, s := range statusBySentinel {
		if prefix := s.err.Error() + ": "; strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}

func respondError(c *gin.Context, err error, log *zap.Logger) {
	status, msg := statusFor(err), messageFor(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}
	note(c, msg, nil)
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg})
}

func respondMessage(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg})
}

func success(c *gin.Context, extra gin.H) {
	body := gin.H{"success": true}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}
