package middleware

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"foodledger/internal/core/apperror"
	"foodledger/pkg/logger"
)

// RateLimit limits requests per client IP. rate uses the limiter format,
// e.g. "100-M" for one hundred requests per minute.
func RateLimit(rate string) (gin.HandlerFunc, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("parse rate limit %q: %w", rate, err)
	}
	instance := limiter.New(memory.NewStore(), r)

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		res, err := instance.Get(ctx, c.ClientIP())
		if err != nil {
			// A broken limiter store must not take the API down.
			logger.Warn(ctx, "rate limiter unavailable", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(res.Reset, 10))

		if res.Reached {
			_ = c.Error(apperror.NewRateLimited())
			c.Abort()
			return
		}
		c.Next()
	}, nil
}
