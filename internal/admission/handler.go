package admission

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/loganventer/loganventerprofile-sub000/pkg/logging"
)

const maxRequestBody = 16 << 10

// Handler serves POST /token.
func Handler(svc *Service, logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBody)

		var req Request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		if req.AdminKey == "" {
			req.AdminKey = c.GetHeader("X-Admin-Key")
		}

		caller := Caller{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
		resp, err := svc.Handle(c.Request.Context(), caller, req)
		if err != nil {
			WriteError(c, err, logger)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// WriteError renders err as {"error": code} with its mapped status.
func WriteError(c *gin.Context, err error, logger logging.Logger) {
	status, code := StatusOf(err)
	body := gin.H{"error": code}

	var rl *RateLimitError
	if errors.As(err, &rl) {
		c.Header("Retry-After", strconv.Itoa(rl.RetryAfter))
		body["retry_after"] = rl.RetryAfter
	}
	if status >= http.StatusInternalServerError && logger != nil {
		logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
	}
	c.AbortWithStatusJSON(status, body)
}
