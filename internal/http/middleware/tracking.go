package middleware

import (
	"context"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// VisitProcessor records visits that arrive through decorated share links.
type VisitProcessor interface {
	ProcessTracking(ctx context.Context, query url.Values, visitorIP string) bool
}

// Tracking records a visit for GET requests carrying the bps_pid parameter. It never
// changes the response.
func Tracking(processor VisitProcessor, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodGet {
			return c.Next()
		}

		raw := string(c.Request().URI().QueryString())
		if !strings.Contains(raw, "bps_pid=") {
			return c.Next()
		}

		query, err := url.ParseQuery(raw)
		if err != nil {
			logger.Debug("ignoring malformed tracking query", zap.Error(err))
			return c.Next()
		}

		if processor.ProcessTracking(c.UserContext(), query, c.IP()) {
			logger.Debug("share visit recorded",
				zap.String("item_id", query.Get("bps_pid")),
				zap.String("service", query.Get("bps_service")),
			)
		}
		return c.Next()
	}
}
