// Package frontdoor mounts the public chat, token and MCP endpoints on a gin
// router with CORS, method and per-IP rate gates.
package frontdoor

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loganventer/loganventerprofile-sub000/pkg/logging"
	"github.com/loganventer/loganventerprofile-sub000/pkg/middleware"
)

const (
	allowedMethods = "POST, OPTIONS"
	mcpMethods     = "GET, POST, DELETE, OPTIONS"
)

type Config struct {
	Origins []string
	Limiter *IPLimiter
	Logger  logging.Logger
}

// Handlers groups the endpoint implementations. MCP is optional and must
// carry its own bearer check.
type Handlers struct {
	Chat  gin.HandlerFunc
	Token gin.HandlerFunc
	MCP   http.Handler
}

// RegisterRoutes mounts /chat, /token and, when present, /mcp. /chat and
// /mcp share the per-IP gate since both reach the LLM.
func RegisterRoutes(router gin.IRoutes, cfg Config, h Handlers) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	cors := middleware.CORSMiddleware(cfg.Origins, allowedMethods)

	router.Any("/chat", cors, postOnly(), rateGate(cfg.Limiter, logger), h.Chat)
	router.Any("/token", cors, postOnly(), h.Token)
	if h.MCP != nil {
		mcpCORS := middleware.CORSMiddleware(cfg.Origins, mcpMethods)
		router.Any("/mcp", mcpCORS, rateGate(cfg.Limiter, logger), gin.WrapH(h.MCP))
	}
}

// postOnly rejects everything but POST. OPTIONS never reaches here.
func postOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Header("Allow", allowedMethods)
			c.AbortWithStatusJSON(http.StatusMethodNotAllowed, gin.H{"error": "method_not_allowed"})
			return
		}
		c.Next()
	}
}

func rateGate(l *IPLimiter, logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			rejectedTotal.Inc()
			logger.WithFields(logging.Fields{
				"ip":   c.ClientIP(),
				"path": c.Request.URL.Path,
			}).Debug("Rate limit hit")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
			return
		}
		c.Next()
	}
}
