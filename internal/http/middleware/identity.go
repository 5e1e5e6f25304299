package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/PowerShare/internal/app/identity"
)

const actorKey = "actor"

// Identity resolves the caller once and stores it for handlers.
func Identity(provider identity.Provider) fiber.Handler {
	if provider == nil {
		provider = identity.AnonymousOnly{}
	}
	return func(c *fiber.Ctx) error {
		c.Locals(actorKey, provider.Actor(c))
		return c.Next()
	}
}

// ActorFrom returns the actor stored by Identity, anonymous when absent.
func ActorFrom(c *fiber.Ctx) identity.Actor {
	actor, _ := c.Locals(actorKey).(identity.Actor)
	return actor
}

// RequireCapability rejects callers lacking capability with 403.
func RequireCapability(capability string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !ActorFrom(c).Can(capability) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "insufficient permissions",
			})
		}
		return c.Next()
	}
}
