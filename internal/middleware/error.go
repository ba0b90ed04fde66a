package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/TaroHarado/copytrade-key/internal/pkg/apperrors"
	"github.com/TaroHarado/copytrade-key/internal/pkg/logger"
)

// ErrorHandler turns errors attached to the gin context into a JSON body
// with the status derived from the error reason. Handlers that write their
// own response never reach this path.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			appErr = apperrors.Wrap(apperrors.ReasonInternal, err.Error(), err)
		}

		status := apperrors.HTTPStatus(appErr.Reason)
		logFields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"reason", appErr.Reason,
			"client_ip", c.ClientIP(),
		}
		if status >= 500 {
			logger.LogError(c.Request.Context(), appErr, "internal server error", logFields...)
		} else {
			logger.Warn(appErr.Message, logFields...)
		}

		c.JSON(status, gin.H{
			"error":  appErr.Message,
			"reason": appErr.Reason,
		})
	}
}
