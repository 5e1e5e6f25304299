package service

import (
	"context"
	"errors"
	"html/template"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/sifan077/PowerShare/internal/app/catalog"
	"github.com/sifan077/PowerShare/internal/app/content"
	"github.com/sifan077/PowerShare/internal/app/hooks"
	"github.com/sifan077/PowerShare/internal/app/identity"
	"github.com/sifan077/PowerShare/internal/app/model"
	apprepository "github.com/sifan077/PowerShare/internal/app/repository"
	"github.com/sifan077/PowerShare/internal/app/settings"
	"github.com/sifan077/PowerShare/internal/app/sharelink"
	"github.com/sifan077/PowerShare/internal/http/view"
	infraPrometheus "github.com/sifan077/PowerShare/internal/infra/prometheus"
	"go.uber.org/zap"
)

// Failure classifies why a share request was not processed.
type Failure int

const (
	FailureNone Failure = iota
	FailureToken
	FailureForbidden
	FailureRateLimited
	FailureInvalid
	FailureNotFound
	FailureUnavailable
)

// User-facing messages.
const (
	MsgShared      = "Thanks for sharing!"
	MsgNotCounted  = "Shared, but the share count could not be updated."
	MsgBadToken    = "Security check failed. Please reload the page and try again."
	MsgForbidden   = "You are not allowed to share this content."
	MsgRateLimited = "You are sharing too quickly. Please try again later."
	MsgMissing     = "Missing item or service."
	MsgBadService  = "Unknown share service."
	MsgNotFound    = "This content is not available for sharing."
	MsgUnavailable = "Sharing is temporarily unavailable. Please try again later."
)

// Tokens issues and checks request-forgery tokens bound to a scope.
type Tokens interface {
	Issue(scope string) (string, error)
	Validate(scope, token string) error
}

// SettingsLoader loads the current share settings.
type SettingsLoader interface {
	Load(ctx context.Context) settings.Settings
}

// ShareRequest is an inbound "record a share" call.
type ShareRequest struct {
	ItemID    string
	ServiceID string
	Token     string
	Actor     identity.Actor
	IP        string
	UserAgent string
	Referrer  string
}

// ShareResult is the response to a ShareRequest.
type ShareResult struct {
	Success bool
	Counted bool
	Count   int64
	Message string
	Failure Failure
}

// DecorateRequest describes one content render.
type DecorateRequest struct {
	Item       *model.Item
	SingleView bool
	Actor      identity.Actor
	Content    template.HTML
}

// Decoration is the output of Decorate. Content is the (possibly extended) body and
// Widget the floating widget, set at most once per RenderGuard.
type Decoration struct {
	Mode    string
	Content template.HTML
	Widget  template.HTML
}

// RenderGuard remembers what was already rendered during one request so repeated
// content passes do not duplicate buttons. It also holds the settings loaded for the
// request.
type RenderGuard struct {
	mu       sync.Mutex
	inline   map[string]struct{}
	floating bool
	settings *settings.Settings
}

// NewRenderGuard returns a fresh per-request guard.
func NewRenderGuard() *RenderGuard {
	return &RenderGuard{inline: make(map[string]struct{})}
}

func (g *RenderGuard) loadSettings(ctx context.Context, loader SettingsLoader) settings.Settings {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.settings == nil {
		cfg := loader.Load(ctx)
		g.settings = &cfg
	}
	return *g.settings
}

func (g *RenderGuard) inlineDone(itemID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, done := g.inline[itemID]
	return done
}

func (g *RenderGuard) claimInline(itemID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, done := g.inline[itemID]; done {
		return false
	}
	g.inline[itemID] = struct{}{}
	return true
}

func (g *RenderGuard) floatingDone() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.floating
}

func (g *RenderGuard) claimFloating() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.floating {
		return false
	}
	g.floating = true
	return true
}

// ControllerDeps groups the collaborators of a Controller.
type ControllerDeps struct {
	Logger   *zap.Logger
	Settings SettingsLoader
	Catalog  *catalog.Catalog
	Links    *sharelink.Builder
	Tracker  *Tracker
	Items    content.Repository
	Limiter  *ShareLimiter
	Tokens   Tokens
	Bus      hooks.Bus
	Metrics  *infraPrometheus.Metrics

	AllowAnonymous bool
	ShareEndpoint  string
}

// Controller decides when to render share buttons and handles share and visit calls.
type Controller struct {
	logger   *zap.Logger
	settings SettingsLoader
	catalog  *catalog.Catalog
	links    *sharelink.Builder
	tracker  *Tracker
	items    content.Repository
	limiter  *ShareLimiter
	tokens   Tokens
	bus      hooks.Bus
	metrics  *infraPrometheus.Metrics

	allowAnonymous bool
	shareEndpoint  string
}

// NewController creates a Controller.
func NewController(deps ControllerDeps) *Controller {
	c := &Controller{
		logger:         deps.Logger,
		settings:       deps.Settings,
		catalog:        deps.Catalog,
		links:          deps.Links,
		tracker:        deps.Tracker,
		items:          deps.Items,
		limiter:        deps.Limiter,
		tokens:         deps.Tokens,
		bus:            deps.Bus,
		metrics:        deps.Metrics,
		allowAnonymous: deps.AllowAnonymous,
		shareEndpoint:  deps.ShareEndpoint,
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.bus == nil {
		c.bus = hooks.Nop{}
	}
	if c.shareEndpoint == "" {
		c.shareEndpoint = "/api/share"
	}
	return c
}

// TokenScope binds forgery tokens to the acting user.
func TokenScope(actor identity.Actor) string {
	return "share:" + strconv.FormatInt(actor.ID, 10)
}

// IssueToken mints a forgery token for actor.
func (c *Controller) IssueToken(actor identity.Actor) (string, error) {
	return c.tokens.Issue(TokenScope(actor))
}

// Decorate appends or emits share markup for an eligible single-item view. Anything
// that goes wrong leaves the content untouched.
func (c *Controller) Decorate(ctx context.Context, guard *RenderGuard, req DecorateRequest) Decoration {
	out := Decoration{Content: req.Content}
	if !req.SingleView || req.Item == nil {
		return out
	}

	if guard == nil {
		guard = NewRenderGuard()
	}
	cfg := guard.loadSettings(ctx, c.settings)
	if !cfg.IsCategoryEnabled(req.Item.Category) {
		return out
	}

	// Claim a slot only once its markup has rendered.
	switch cfg.DisplayStyle {
	case settings.StyleFloating:
		if guard.floatingDone() {
			return out
		}
		data, ok := c.widgetData(ctx, cfg, req)
		if !ok {
			return out
		}
		widget, err := view.RenderFloating(data)
		if err != nil {
			c.logger.Error("failed to render floating share widget", zap.String("item_id", req.Item.ID), zap.Error(err))
			return out
		}
		if !guard.claimFloating() {
			return out
		}
		out.Mode = settings.StyleFloating
		out.Widget = widget
	default:
		if guard.inlineDone(req.Item.ID) {
			return out
		}
		data, ok := c.widgetData(ctx, cfg, req)
		if !ok {
			return out
		}
		data.ShowCount = true
		buttons, err := view.RenderInline(data)
		if err != nil {
			c.logger.Error("failed to render inline share buttons", zap.String("item_id", req.Item.ID), zap.Error(err))
			return out
		}
		if !guard.claimInline(req.Item.ID) {
			return out
		}
		out.Mode = settings.StyleInline
		out.Content = req.Content + buttons
	}
	return out
}

func (c *Controller) widgetData(ctx context.Context, cfg settings.Settings, req DecorateRequest) (view.WidgetData, bool) {
	var buttons []view.Button
	for _, svc := range c.catalog.Resolve(cfg.ServicesFor(req.Item.Category)) {
		link := c.links.ForItem(ctx, svc.ID, req.Item, req.Actor.ID)
		if link == "" {
			continue
		}
		btn := view.Button{ServiceID: svc.ID, Name: svc.Name, Icon: svc.Icon, URL: link}
		if svc.ID == catalog.Copy || svc.ID == catalog.Print {
			btn.Action = svc.ID
		}
		buttons = append(buttons, btn)
	}
	if len(buttons) == 0 {
		return view.WidgetData{}, false
	}

	token, err := c.IssueToken(req.Actor)
	if err != nil {
		// Buttons still work as plain links; only counting is lost.
		c.logger.Warn("failed to issue share token", zap.Error(err))
	}

	return view.WidgetData{
		ItemID:         req.Item.ID,
		Buttons:        buttons,
		Count:          c.tracker.ItemStats(ctx, req.Item.ID).Total,
		Position:       cfg.DisplayPosition,
		MobileBehavior: cfg.MobileBehavior,
		Endpoint:       c.shareEndpoint,
		Token:          token,
	}, true
}

// HandleShare validates, rate limits and records a share.
func (c *Controller) HandleShare(ctx context.Context, req ShareRequest) ShareResult {
	if err := c.tokens.Validate(TokenScope(req.Actor), req.Token); err != nil {
		c.metrics.ShareRejected("token")
		return ShareResult{Message: MsgBadToken, Failure: FailureToken}
	}

	anonAllowed := hooks.FilterBool(ctx, c.bus, hooks.AnonymousSharingAllowed, c.allowAnonymous)
	signedIn := !req.Actor.Anonymous() && req.Actor.Can(identity.CapRead)
	if !signedIn && !anonAllowed {
		c.metrics.ShareRejected("forbidden")
		return ShareResult{Message: MsgForbidden, Failure: FailureForbidden}
	}

	if !c.limiter.Allow(ctx, req.Actor.ID, req.IP) {
		c.metrics.RateLimited()
		return ShareResult{Message: MsgRateLimited, Failure: FailureRateLimited}
	}

	itemID := strings.TrimSpace(req.ItemID)
	serviceID := strings.TrimSpace(req.ServiceID)
	if itemID == "" || serviceID == "" {
		c.metrics.ShareRejected("invalid")
		return ShareResult{Message: MsgMissing, Failure: FailureInvalid}
	}
	if !c.catalog.Has(serviceID) {
		c.metrics.ShareRejected("invalid")
		return ShareResult{Message: MsgBadService, Failure: FailureInvalid}
	}

	item, err := c.items.GetByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, apprepository.ErrItemNotFound) {
			c.metrics.ShareRejected("not_found")
			return ShareResult{Message: MsgNotFound, Failure: FailureNotFound}
		}
		c.logger.Error("failed to load item for share", zap.String("item_id", itemID), zap.Error(err))
		return ShareResult{Message: MsgUnavailable, Failure: FailureUnavailable}
	}
	if !item.Published() {
		c.metrics.ShareRejected("not_found")
		return ShareResult{Message: MsgNotFound, Failure: FailureNotFound}
	}

	_, err = c.tracker.RecordShare(ctx, item.ID, serviceID, ShareMeta{
		ActorID:   req.Actor.ID,
		IP:        req.IP,
		UserAgent: req.UserAgent,
		Referrer:  req.Referrer,
	})
	if errors.Is(err, ErrInvalidShare) {
		return ShareResult{Message: MsgNotFound, Failure: FailureNotFound}
	}
	c.limiter.Record(ctx, req.Actor.ID, req.IP)

	result := ShareResult{
		Success: true,
		Counted: err == nil,
		Count:   c.tracker.ItemStats(ctx, item.ID).Total,
		Message: MsgShared,
	}
	if err != nil {
		result.Message = MsgNotCounted
	}
	return result
}

// ProcessTracking records a visit when query carries tracking parameters. Missing
// optional fields default to zero values; it never fails loudly.
func (c *Controller) ProcessTracking(ctx context.Context, query url.Values, visitorIP string) bool {
	itemID := strings.TrimSpace(query.Get(sharelink.ParamItemID))
	if itemID == "" {
		return false
	}

	exists, err := c.items.Exists(ctx, itemID)
	if err != nil {
		c.logger.Debug("tracking lookup failed", zap.String("item_id", itemID), zap.Error(err))
		return false
	}
	if !exists {
		return false
	}

	sharedBy, _ := strconv.ParseInt(query.Get(sharelink.ParamUserID), 10, 64)
	sharedAt, _ := strconv.ParseInt(query.Get(sharelink.ParamSharedAt), 10, 64)
	if sharedBy < 0 {
		sharedBy = 0
	}

	return c.tracker.RecordVisit(ctx, model.Visit{
		ItemID:    itemID,
		ServiceID: query.Get(sharelink.ParamService),
		SharedBy:  sharedBy,
		Category:  query.Get(sharelink.ParamCategory),
		SharedAt:  sharedAt,
		VisitorIP: visitorIP,
	})
}
