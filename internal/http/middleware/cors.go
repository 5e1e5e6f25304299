package middleware

import (
	"github.com/gofiber/fiber/v2"
)

// CORS lets host pages on other origins embed decorations and post shares.
// An empty allowOrigin means "*".
func CORS(allowOrigin string) fiber.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return func(c *fiber.Ctx) error {
		c.Set("Access-Control-Allow-Origin", allowOrigin)
		c.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-User-ID, X-User-Caps, X-Request-ID")
		c.Set("Access-Control-Expose-Headers", "Content-Length, Content-Type, X-Request-ID, X-RateLimit-Remaining")
		c.Set("Access-Control-Max-Age", "86400")

		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}

		return c.Next()
	}
}
