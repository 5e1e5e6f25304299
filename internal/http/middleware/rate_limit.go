package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/PowerShare/internal/app/cache"
	"go.uber.org/zap"
)

// RateLimitConfig holds the coarse per-IP limit applied to the API.
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
	KeyPrefix   string
}

// DefaultRateLimitConfig returns 100 requests per minute.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxRequests: 100,
		Window:      time.Minute,
		KeyPrefix:   "ratelimit",
	}
}

// RateLimit is a fixed-window per-IP limiter over store. Counter failures let the
// request through.
func RateLimit(store cache.Store, config RateLimitConfig, logger *zap.Logger) fiber.Handler {
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	return func(c *fiber.Ctx) error {
		if config.MaxRequests <= 0 || c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		key := config.KeyPrefix + ":" + c.IP()
		result, err := store.Incr(c.UserContext(), key, config.Window)
		if err != nil {
			logger.Error("rate limit counter error", zap.Error(err))
			return c.Next()
		}

		remaining := config.MaxRequests - int(result)
		c.Set("X-RateLimit-Limit", strconv.Itoa(config.MaxRequests))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(max(0, remaining)))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(config.Window).Unix(), 10))

		if result > int64(config.MaxRequests) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
			})
		}

		return c.Next()
	}
}
