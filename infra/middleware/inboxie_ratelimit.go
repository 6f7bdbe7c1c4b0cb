package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"inboxie_server/pkg/apperr"
	"inboxie_server/pkg/ratelimit"
)

// RateLimit throttles requests per authenticated user, falling back to the
// client IP for unauthenticated routes. Backed by the Redis sliding window
// limiter, which fails open when Redis is down.
func RateLimit(limiter *ratelimit.SlidingWindowLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.IP()
		if uid, ok := c.Locals("user_id").(uuid.UUID); ok {
			key = uid.String()
		}

		allowed, retryAfter := limiter.Allow(c.Context(), key)
		if allowed {
			return c.Next()
		}

		if retryAfter > 0 {
			c.Set("Retry-After", fmt.Sprintf("%d", int(retryAfter/time.Second)+1))
		}
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": "rate limit exceeded",
			"code":  apperr.CodeRateLimited,
		})
	}
}
