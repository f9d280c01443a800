package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/loganventer/loganventerprofile-sub000/pkg/logging"
)

// SetupCommonMiddleware adds request id, access logging and panic recovery.
// CORS is route-specific and left to the handlers that need it.
func SetupCommonMiddleware(r *gin.Engine, logger logging.Logger) {
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware(logger))
	r.Use(RecoveryMiddleware(logger))
}

// GetRequestID gets the request ID from the context
func GetRequestID(c *gin.Context) string {
	if id, exists := c.Get(requestIDKey); exists {
		if strID, ok := id.(string); ok {
			return strID
		}
	}
	return ""
}

// GetContextLogger returns an entry carrying the request's identifying fields.
func GetContextLogger(c *gin.Context, logger logging.Logger) logging.Entry {
	return logger.WithFields(logging.Fields{
		"request_id": GetRequestID(c),
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"client_ip":  c.ClientIP(),
	})
}
