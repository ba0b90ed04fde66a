package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/TaroHarado/copytrade-key/internal/config"
)

// RateLimitMiddleware is a coarse perimeter limiter shared by all callers.
// Per-user throttling happens deeper in the pipeline; this one only keeps a
// misbehaving client from saturating the process.
func RateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	rps := 50.0
	burst := 100
	if cfg != nil && cfg.Auth.RequestsPerSecond > 0 {
		rps = cfg.Auth.RequestsPerSecond
	}
	if cfg != nil && cfg.Auth.RequestBurst > 0 {
		burst = cfg.Auth.RequestBurst
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": "1s",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
