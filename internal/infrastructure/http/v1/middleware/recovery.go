// Package middleware provides HTTP middleware components.
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"foodledger/internal/core/apperror"
	"foodledger/pkg/logger"
)

// Recovery turns a panic in a handler into a 500 response.
// The stack goes to the log only.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			logger.Error(c.Request.Context(), "panic recovered",
				"error", rec,
				"path", c.Request.URL.Path,
				"stack", string(debug.Stack()),
			)
			_ = c.Error(apperror.NewInternal(fmt.Errorf("panic: %v", rec)).
				WithDetail("request_id", c.GetString("request_id")))
			c.Abort()
		}()
		c.Next()
	}
}
