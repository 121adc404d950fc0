package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/dy-extract-go/pkg/logger"
	"go.uber.org/zap"
)

// Recovery turns a handler panic into a 500 carrying the request ID. The panic
// and its stack go to the error category as well as log.
func Recovery(log *zap.Logger, multiLogger *logger.MultiLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			requestID := c.GetString(RequestIDKey)
			fields := []zap.Field{
				zap.String("request_id", requestID),
				zap.String("panic", fmt.Sprint(rec)),
				zap.String("route", c.FullPath()),
				zap.Stack("stack"),
			}
			log.Error("Handler panicked", fields...)
			if multiLogger != nil {
				multiLogger.LogAppError("handler panic", fields...)
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":      "internal error",
				"request_id": requestID,
			})
		}()
		c.Next()
	}
}
