package middleware

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/auditflow/automation-engine/common/ratelimit"
)

// ClientRateLimit applies a fixed window per client IP. Intended for
// the intake endpoints: generation is expensive, so the limit sits in
// front of job creation rather than behind it.
func ClientRateLimit(limiter *ratelimit.Limiter, limit int64, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := fmt.Sprintf("intake:client:%s", c.RealIP())

			result := limiter.Check(key, limit, window)
			if !result.Allowed {
				return tooManyRequests(c, "client_rate_limit_exceeded",
					"You have exceeded your request quota. Please wait before trying again.",
					result, window)
			}

			return next(c)
		}
	}
}

// GlobalRateLimit applies a service-wide fixed window across all
// clients, protecting the job queue from floods no matter how the
// per-client limits are spread.
func GlobalRateLimit(limiter *ratelimit.Limiter, limit int64, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			result := limiter.Check("intake:global", limit, window)
			if !result.Allowed {
				return tooManyRequests(c, "global_rate_limit_exceeded",
					"Service is experiencing high load. Please try again later.",
					result, window)
			}

			return next(c)
		}
	}
}

func tooManyRequests(c echo.Context, code, message string, result *ratelimit.Result, window time.Duration) error {
	retryAfter := int64(math.Ceil(result.RetryAfter.Seconds()))
	c.Response().Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))

	return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
		"error":   code,
		"message": message,
		"details": map[string]interface{}{
			"limit":               result.Limit,
			"window_seconds":      int64(window.Seconds()),
			"retry_after_seconds": retryAfter,
		},
	})
}
