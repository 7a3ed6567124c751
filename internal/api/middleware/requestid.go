package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/threadscope/internal/shared/id"
)

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

const maxRequestIDLength = 128

// RequestID reuses a caller-supplied X-Request-ID or mints a new one, and
// echoes it in the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(RequestIDHeader)
		if reqID == "" || len(reqID) > maxRequestIDLength {
			reqID = id.NewRequestID().String()
		}

		c.Set(requestIDKey, reqID)
		c.Header(RequestIDHeader, reqID)
		c.Next()
	}
}

// GetRequestID returns the id assigned by RequestID, or ""
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
