package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/threadscope/internal/api/middleware"
	"github.com/GriffinCanCode/threadscope/internal/features"
	"github.com/GriffinCanCode/threadscope/internal/governor"
	"github.com/GriffinCanCode/threadscope/internal/runs"
)

// StatusClientClosedRequest is used when the caller went away mid-request
const StatusClientClosedRequest = 499

var errInvalidLimit = fmt.Errorf("limit must be an integer between 1 and %d", maxListLimit)

// StatusFor maps an error to the HTTP status reported to the caller
func StatusFor(err error) int {
	var (
		cfgErr   *runs.ConfigurationError
		notFound *runs.NotFoundError
		unknown  *features.UnknownFeatureError
		decode   *governor.DecodeError
	)

	switch {
	case errors.As(err, &cfgErr):
		return http.StatusServiceUnavailable
	case errors.As(err, &notFound), errors.As(err, &unknown):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, governor.ErrRateLimited):
		return http.StatusServiceUnavailable
	case errors.Is(err, governor.ErrTransient), errors.As(err, &decode):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a JSON error response
func (h *Handlers) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	_ = c.Error(err)

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err),
		)
	}

	c.JSON(status, gin.H{
		"error":      err.Error(),
		"request_id": middleware.GetRequestID(c),
	})
}
