package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/PowerShare/internal/app/content"
	"github.com/sifan077/PowerShare/internal/app/identity"
	"github.com/sifan077/PowerShare/internal/app/model"
	"github.com/sifan077/PowerShare/internal/app/repository"
	"github.com/sifan077/PowerShare/internal/app/service"
	"github.com/sifan077/PowerShare/internal/http/middleware"
	"github.com/sifan077/PowerShare/internal/http/view"
	"go.uber.org/zap"
)

const renderGuardKey = "render_guard"

// ShareController is the part of service.Controller the public routes use.
type ShareController interface {
	Decorate(ctx context.Context, guard *service.RenderGuard, req service.DecorateRequest) service.Decoration
	HandleShare(ctx context.Context, req service.ShareRequest) service.ShareResult
	IssueToken(actor identity.Actor) (string, error)
}

// ShareDeps groups dependencies required by the public share routes.
type ShareDeps struct {
	Logger     *zap.Logger
	Controller ShareController
	Items      content.Repository
	SiteName   string
}

// ShareHandler serves item pages, decorations and the share endpoint.
type ShareHandler struct {
	logger     *zap.Logger
	controller ShareController
	items      content.Repository
	siteName   string
}

// NewShareHandler creates a share handler with the provided dependencies.
func NewShareHandler(deps ShareDeps) *ShareHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShareHandler{
		logger:     logger,
		controller: deps.Controller,
		items:      deps.Items,
		siteName:   deps.SiteName,
	}
}

// Register wires public routes onto the provided router.
func (h *ShareHandler) Register(router fiber.Router) {
	router.Get("/health", h.Health)
	router.Get("/items/:id", h.ItemPage)

	api := router.Group("/api")
	{
		api.Get("/items/:id/decoration", h.Decoration)
		api.Get("/share/token", h.Token)
		api.Post("/share", h.Share)
	}
}

// Health reports that the service is running.
func (h *ShareHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "PowerShare",
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// ItemPage handles GET /items/:id, the standalone page of one item.
func (h *ShareHandler) ItemPage(c *fiber.Ctx) error {
	item, status, msg := h.loadItem(c)
	if item == nil {
		return c.Status(status).SendString(msg)
	}

	out := h.controller.Decorate(c.UserContext(), renderGuard(c), service.DecorateRequest{
		Item:       item,
		SingleView: true,
		Actor:      middleware.ActorFrom(c),
		Content:    view.ParagraphHTML(item.Body),
	})

	html, err := view.RenderItemPage(view.ItemPageData{
		SiteName: h.siteName,
		Title:    item.Title,
		Content:  out.Content,
		Widget:   out.Widget,
	})
	if err != nil {
		h.logger.Error("failed to render item page", zap.String("item_id", item.ID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).SendString("failed to render page")
	}

	return c.
		Type("html", "utf-8").
		SendString(html)
}

// DecorationResponse is the embeddable markup for one item.
type DecorationResponse struct {
	ItemID  string `json:"item_id"`
	Mode    string `json:"mode"`
	Content string `json:"content"`
	Widget  string `json:"widget"`
}

// Decoration handles GET /api/items/:id/decoration. view=list asks for the archive
// rendering, which never carries buttons.
func (h *ShareHandler) Decoration(c *fiber.Ctx) error {
	item, status, msg := h.loadItem(c)
	if item == nil {
		return c.Status(status).JSON(fiber.Map{"error": msg})
	}

	out := h.controller.Decorate(c.UserContext(), renderGuard(c), service.DecorateRequest{
		Item:       item,
		SingleView: c.Query("view", "single") == "single",
		Actor:      middleware.ActorFrom(c),
		Content:    view.ParagraphHTML(item.Body),
	})

	return c.JSON(DecorationResponse{
		ItemID:  item.ID,
		Mode:    out.Mode,
		Content: string(out.Content),
		Widget:  string(out.Widget),
	})
}

// Token handles GET /api/share/token, minting a forgery token for the caller.
func (h *ShareHandler) Token(c *fiber.Ctx) error {
	token, err := h.controller.IssueToken(middleware.ActorFrom(c))
	if err != nil {
		h.logger.Error("failed to issue share token", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to issue token",
		})
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.JSON(fiber.Map{
		"token":   token,
		"item_id": c.Query("item_id"),
	})
}

// ShareRequest is the body of POST /api/share, as form fields or JSON.
type ShareRequest struct {
	ItemID  string `json:"item_id" form:"item_id"`
	Service string `json:"service" form:"service"`
	Token   string `json:"token" form:"token"`
}

// ShareResponse is the body returned by POST /api/share.
type ShareResponse struct {
	Success    bool   `json:"success"`
	Counted    bool   `json:"counted"`
	Count      int64  `json:"count"`
	CountLabel string `json:"count_label"`
	Message    string `json:"message"`
}

// Share handles POST /api/share.
func (h *ShareHandler) Share(c *fiber.Ctx) error {
	var req ShareRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ShareResponse{
			Message: "invalid request body",
		})
	}

	result := h.controller.HandleShare(c.UserContext(), service.ShareRequest{
		ItemID:    req.ItemID,
		ServiceID: req.Service,
		Token:     req.Token,
		Actor:     middleware.ActorFrom(c),
		IP:        c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
		Referrer:  c.Get(fiber.HeaderReferer),
	})

	resp := ShareResponse{
		Success: result.Success,
		Counted: result.Counted,
		Count:   result.Count,
		Message: result.Message,
	}
	if result.Success {
		resp.CountLabel = view.FormatCount(result.Count)
	}
	return c.Status(failureStatus(result.Failure)).JSON(resp)
}

func failureStatus(f service.Failure) int {
	switch f {
	case service.FailureToken, service.FailureForbidden:
		return fiber.StatusForbidden
	case service.FailureRateLimited:
		return fiber.StatusTooManyRequests
	case service.FailureInvalid:
		return fiber.StatusBadRequest
	case service.FailureNotFound:
		return fiber.StatusNotFound
	case service.FailureUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusOK
	}
}

func (h *ShareHandler) loadItem(c *fiber.Ctx) (*model.Item, int, string) {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return nil, fiber.StatusBadRequest, "item id is required"
	}

	item, err := h.items.GetByID(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, repository.ErrItemNotFound) {
			return nil, fiber.StatusNotFound, "item not found"
		}
		h.logger.Error("failed to load item", zap.String("item_id", id), zap.Error(err))
		return nil, fiber.StatusInternalServerError, "internal server error"
	}
	if !item.Published() {
		return nil, fiber.StatusNotFound, "item not found"
	}
	return item, 0, ""
}

// renderGuard returns the guard shared by every decoration of the current request.
func renderGuard(c *fiber.Ctx) *service.RenderGuard {
	if g, ok := c.Locals(renderGuardKey).(*service.RenderGuard); ok {
		return g
	}
	g := service.NewRenderGuard()
	c.Locals(renderGuardKey, g)
	return g
}
