package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/PowerShare/internal/app/catalog"
	"github.com/sifan077/PowerShare/internal/app/identity"
	"github.com/sifan077/PowerShare/internal/app/model"
	"github.com/sifan077/PowerShare/internal/app/repository"
	"github.com/sifan077/PowerShare/internal/app/service"
	"github.com/sifan077/PowerShare/internal/app/settings"
	"github.com/sifan077/PowerShare/internal/http/middleware"
	"go.uber.org/zap"
)

const (
	defaultStatsWindow = 30 * 24 * time.Hour
	dateLayout         = "2006-01-02"
)

// StatsReader is the part of service.Tracker the API reads from.
type StatsReader interface {
	ItemStats(ctx context.Context, itemID string) model.ItemStats
	UserStats(ctx context.Context, userID int64) model.UserStats
	OverallStats(ctx context.Context, filter model.StatsFilter) model.OverallStats
	PruneOlderThan(ctx context.Context, days int) (int64, error)
}

// SettingsManager loads and saves the share settings.
type SettingsManager interface {
	Load(ctx context.Context) settings.Settings
	Save(ctx context.Context, raw map[string]any) (settings.Settings, error)
	ShareableCategories(ctx context.Context) []string
}

// APIDeps groups dependencies required by API handlers.
type APIDeps struct {
	Logger   *zap.Logger
	Stats    StatsReader
	Settings SettingsManager
	Items    repository.ItemRepository
	Catalog  *catalog.Catalog
	Now      func() time.Time
}

// APIHandler implements the stats and management API endpoints.
type APIHandler struct {
	logger   *zap.Logger
	stats    StatsReader
	settings SettingsManager
	items    repository.ItemRepository
	catalog  *catalog.Catalog
	now      func() time.Time
}

// NewAPIHandler creates an API handler with the provided dependencies.
func NewAPIHandler(deps APIDeps) *APIHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &APIHandler{
		logger:   logger,
		stats:    deps.Stats,
		settings: deps.Settings,
		items:    deps.Items,
		catalog:  deps.Catalog,
		now:      now,
	}
}

// Register wires API routes onto the provided router.
func (h *APIHandler) Register(router fiber.Router) {
	manage := middleware.RequireCapability(identity.CapManage)

	api := router.Group("/api")
	{
		api.Get("/services", h.ListServices)
		api.Get("/items/:id/stats", h.ItemStats)
		api.Get("/users/:id/stats", h.UserStats)

		api.Get("/stats", manage, h.OverallStats)
		api.Delete("/shares", manage, h.PruneShares)

		api.Get("/settings", manage, h.GetSettings)
		api.Put("/settings", manage, h.UpdateSettings)
		api.Get("/categories", manage, h.ListCategories)

		api.Get("/items", manage, h.ListItems)
		api.Put("/items/:id", manage, h.PutItem)
	}
}

// ServiceResponse describes one catalog entry.
type ServiceResponse struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Icon             string `json:"icon"`
	EnabledByDefault bool   `json:"enabled_by_default"`
}

// ListServices handles GET /api/services
func (h *APIHandler) ListServices(c *fiber.Ctx) error {
	all := h.catalog.All()
	response := make([]ServiceResponse, len(all))
	for i, s := range all {
		response[i] = ServiceResponse{
			ID:               s.ID,
			Name:             s.Name,
			Icon:             s.Icon,
			EnabledByDefault: s.EnabledByDefault,
		}
	}
	return c.JSON(fiber.Map{
		"services": response,
		"count":    len(response),
	})
}

// ItemStats handles GET /api/items/:id/stats
func (h *APIHandler) ItemStats(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "item id is required",
		})
	}
	return c.JSON(h.stats.ItemStats(c.UserContext(), id))
}

// UserStats handles GET /api/users/:id/stats. Users read their own aggregate; other
// users' aggregates need the manage capability.
func (h *APIHandler) UserStats(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user id must be a positive integer",
		})
	}

	actor := middleware.ActorFrom(c)
	if actor.ID != id && !actor.Can(identity.CapManage) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "insufficient permissions",
		})
	}
	return c.JSON(h.stats.UserStats(c.UserContext(), id))
}

// OverallStats handles GET /api/stats?from=&to=&category=&service=
func (h *APIHandler) OverallStats(c *fiber.Ctx) error {
	filter, err := h.parseFilter(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	stats := h.stats.OverallStats(c.UserContext(), filter)
	return c.JSON(fiber.Map{
		"from":  filter.From.Format(time.RFC3339),
		"to":    filter.To.Format(time.RFC3339),
		"stats": stats,
	})
}

func (h *APIHandler) parseFilter(c *fiber.Ctx) (model.StatsFilter, error) {
	now := h.now().UTC()
	filter := model.StatsFilter{
		From:     now.Add(-defaultStatsWindow),
		To:       now,
		Category: strings.TrimSpace(c.Query("category")),
		Service:  strings.TrimSpace(c.Query("service")),
	}

	if raw := c.Query("from"); raw != "" {
		from, err := parseTime(raw, false)
		if err != nil {
			return filter, errors.New("from must be YYYY-MM-DD or RFC3339")
		}
		filter.From = from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := parseTime(raw, true)
		if err != nil {
			return filter, errors.New("to must be YYYY-MM-DD or RFC3339")
		}
		filter.To = to
	}
	if filter.To.Before(filter.From) {
		return filter, errors.New("to must not be before from")
	}
	return filter, nil
}

// parseTime accepts a date or an RFC3339 timestamp. Dates given as an upper bound
// cover the whole day.
func parseTime(raw string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// PruneShares handles DELETE /api/shares?older_than_days=
func (h *APIHandler) PruneShares(c *fiber.Ctx) error {
	days := c.QueryInt("older_than_days")
	if days <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "older_than_days must be a positive integer",
		})
	}

	deleted, err := h.stats.PruneOlderThan(c.UserContext(), days)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRetention) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		h.logger.Error("failed to prune share events", zap.Int("days", days), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to prune share events",
		})
	}

	h.logger.Info("share events pruned",
		zap.Int64("count", deleted),
		zap.Int("older_than_days", days),
		zap.Int64("actor_id", middleware.ActorFrom(c).ID),
	)
	return c.JSON(fiber.Map{
		"deleted":         deleted,
		"older_than_days": days,
	})
}

// GetSettings handles GET /api/settings
func (h *APIHandler) GetSettings(c *fiber.Ctx) error {
	return c.JSON(h.settings.Load(c.UserContext()))
}

// UpdateSettings handles PUT /api/settings. The body is sanitized field by field;
// invalid values fall back to defaults instead of failing the request.
func (h *APIHandler) UpdateSettings(c *fiber.Ctx) error {
	var raw map[string]any
	if err := c.BodyParser(&raw); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	saved, err := h.settings.Save(c.UserContext(), raw)
	if err != nil {
		h.logger.Error("failed to save share settings", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to save settings",
		})
	}
	return c.JSON(saved)
}

// ListCategories handles GET /api/categories, the categories that may be enabled.
func (h *APIHandler) ListCategories(c *fiber.Ctx) error {
	categories := h.settings.ShareableCategories(c.UserContext())
	return c.JSON(fiber.Map{
		"categories": categories,
		"count":      len(categories),
	})
}

// ItemRequest is the body of PUT /api/items/:id.
type ItemRequest struct {
	Category  string `json:"category"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Permalink string `json:"permalink"`
	Status    string `json:"status"`
}

// ItemResponse is the API view of an item.
type ItemResponse struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Title     string    `json:"title"`
	Permalink string    `json:"permalink"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toItemResponse(item *model.Item) ItemResponse {
	return ItemResponse{
		ID:        item.ID,
		Category:  item.Category,
		Title:     item.Title,
		Permalink: item.Permalink,
		Status:    item.Status,
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
}

// PutItem handles PUT /api/items/:id, mirroring a host content item.
func (h *APIHandler) PutItem(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "item id is required",
		})
	}

	var req ItemRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if req.Category == "" || req.Title == "" || req.Permalink == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "category, title and permalink are required",
		})
	}

	if !strings.HasPrefix(req.Permalink, "http://") && !strings.HasPrefix(req.Permalink, "https://") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "permalink must be an absolute http(s) URL",
		})
	}

	switch req.Status {
	case "":
		req.Status = model.ItemStatusPublished
	case model.ItemStatusPublished, model.ItemStatusDraft, model.ItemStatusPrivate:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "status must be one of: publish, draft, private",
		})
	}

	item := &model.Item{
		ID:        id,
		Category:  req.Category,
		Title:     req.Title,
		Body:      req.Body,
		Permalink: req.Permalink,
		Status:    req.Status,
	}
	if err := h.items.Upsert(c.UserContext(), item); err != nil {
		h.logger.Error("failed to upsert item", zap.String("item_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to save item",
		})
	}

	return c.JSON(toItemResponse(item))
}

// ListItems handles GET /api/items
func (h *APIHandler) ListItems(c *fiber.Ctx) error {
	limit := 20
	offset := 0

	if parsed := c.QueryInt("limit"); parsed > 0 && parsed <= 100 {
		limit = parsed
	}
	if parsed := c.QueryInt("offset"); parsed >= 0 {
		offset = parsed
	}

	items, err := h.items.List(c.UserContext(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list items", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list items",
		})
	}

	response := make([]ItemResponse, len(items))
	for i := range items {
		response[i] = toItemResponse(&items[i])
	}

	return c.JSON(fiber.Map{
		"items":  response,
		"limit":  limit,
		"offset": offset,
		"count":  len(response),
	})
}
