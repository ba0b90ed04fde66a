package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/TaroHarado/copytrade-key/internal/config"
	"github.com/TaroHarado/copytrade-key/internal/pkg/logger"
)

const (
	HeaderServiceToken = "X-Service-Token"
	HeaderServiceName  = "X-Service-Name"

	ContextServiceName = "service_name"
)

// ServiceAuthMiddleware enforces the shared service token. With no token
// configured the perimeter is closed, not open.
func ServiceAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg == nil || cfg.Auth.ServiceToken == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "service token not configured"})
			c.Abort()
			return
		}

		token := c.GetHeader(HeaderServiceToken)
		if subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Auth.ServiceToken)) != 1 {
			logger.Warn("SECURITY: invalid service token",
				"ip", c.ClientIP(),
				"path", c.Request.URL.Path)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid service token"})
			c.Abort()
			return
		}

		if name := c.GetHeader(HeaderServiceName); name != "" {
			c.Set(ContextServiceName, name)
		}
		c.Next()
	}
}

// IPAllowlistMiddleware restricts one endpoint class to a fixed set of
// caller addresses. An empty list allows everyone; the token check still
// applies either way.
func IPAllowlistMiddleware(cfg *config.Config, endpoint string) gin.HandlerFunc {
	allowed := map[string]struct{}{}
	if cfg != nil {
		for _, ip := range cfg.Auth.AllowedIPs(endpoint) {
			allowed[ip] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		if len(allowed) == 0 {
			c.Next()
			return
		}
		if _, ok := allowed[c.ClientIP()]; !ok {
			logger.Warn("SECURITY: request from non-allowlisted address",
				"ip", c.ClientIP(),
				"endpoint", endpoint)
			c.JSON(http.StatusForbidden, gin.H{"error": "address not allowed"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CallerName returns the service name announced by the caller, if any.
func CallerName(c *gin.Context) string {
	if val, exists := c.Get(ContextServiceName); exists {
		if name, ok := val.(string); ok {
			return name
		}
	}
	return ""
}
