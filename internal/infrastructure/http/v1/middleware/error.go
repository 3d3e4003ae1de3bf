package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"foodledger/internal/core/apperror"
	appctx "foodledger/internal/core/context"
	"foodledger/pkg/logger"
)

// ErrorHandler middleware transforms errors into consistent JSON responses.
// Hides internal errors from clients while logging full details.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		if appErr, ok := apperror.AsAppError(err); ok {
			if appErr.HTTPStatus >= http.StatusInternalServerError {
				logger.Error(c.Request.Context(), "request failed",
					"code", appErr.Code,
					"cause", appErr.Err,
				)
			} else if appErr.Err != nil {
				logger.Warn(c.Request.Context(), "request rejected",
					"code", appErr.Code,
					"cause", appErr.Err,
				)
			}

			c.JSON(appErr.HTTPStatus, gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
				"details": appErr.Details,
			})
			return
		}

		logger.Error(c.Request.Context(), "unhandled error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    apperror.CodeInternal,
			"message": "Internal server error",
			"details": map[string]any{
				"request_id": appctx.GetRequestID(c.Request.Context()),
				"trace_id":   appctx.GetTraceID(c.Request.Context()),
			},
		})
	}
}
