// Package sharelink builds outbound share URLs carrying attribution and tracking
// parameters.
package sharelink

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sifan077/PowerShare/internal/app/catalog"
	"github.com/sifan077/PowerShare/internal/app/content"
	"github.com/sifan077/PowerShare/internal/app/hooks"
	"github.com/sifan077/PowerShare/internal/app/model"
	"go.uber.org/zap"
)

// Tracking query parameters appended to shared permalinks.
const (
	ParamItemID   = "bps_pid"
	ParamUserID   = "bps_uid"
	ParamSharedAt = "bps_ts"
	ParamCategory = "bps_type"
	ParamService  = "bps_service"
)

// Attribution values.
const (
	utmMedium   = "social"
	utmCampaign = "powershare"

	excerptWords = 30
)

// PrintAction is the anchor returned for the print pseudo-service.
const PrintAction = "#print"

// Builder produces share URLs for items.
type Builder struct {
	items    content.Repository
	catalog  *catalog.Catalog
	bus      hooks.Bus
	siteName string
	logger   *zap.Logger
	now      func() time.Time
}

// Options configure a Builder.
type Options struct {
	Items    content.Repository
	Catalog  *catalog.Catalog
	Bus      hooks.Bus
	SiteName string
	Logger   *zap.Logger
	Now      func() time.Time
}

// NewBuilder returns a Builder.
func NewBuilder(opts Options) *Builder {
	b := &Builder{
		items:    opts.Items,
		catalog:  opts.Catalog,
		bus:      opts.Bus,
		siteName: opts.SiteName,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if b.bus == nil {
		b.bus = hooks.Nop{}
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

// BuildURL returns the share URL of itemID on serviceID for actorID (0 when anonymous).
// Unknown services and unresolvable items yield "".
func (b *Builder) BuildURL(ctx context.Context, serviceID, itemID string, actorID int64) string {
	if !b.catalog.Has(serviceID) || itemID == "" {
		return ""
	}

	item, err := b.items.GetByID(ctx, itemID)
	if err != nil {
		b.logger.Debug("cannot build share url", zap.String("item_id", itemID), zap.Error(err))
		return ""
	}

	return b.ForItem(ctx, serviceID, item, actorID)
}

// ForItem is BuildURL for an already loaded item.
func (b *Builder) ForItem(ctx context.Context, serviceID string, item *model.Item, actorID int64) string {
	if item == nil || !b.catalog.Has(serviceID) {
		return ""
	}

	tracked, err := b.TrackedPermalink(item, serviceID, actorID)
	if err != nil {
		b.logger.Warn("invalid item permalink", zap.String("item_id", item.ID), zap.Error(err))
		return ""
	}

	out := b.serviceURL(serviceID, item, tracked)
	if out == "" {
		return ""
	}
	return hooks.FilterString(ctx, b.bus, hooks.OutboundURL, out, serviceID, item.ID)
}

// TrackedPermalink decorates the item permalink with attribution and tracking params.
func (b *Builder) TrackedPermalink(item *model.Item, serviceID string, actorID int64) (string, error) {
	u, err := url.Parse(item.Permalink)
	if err != nil {
		return "", err
	}
	if actorID < 0 {
		actorID = 0
	}

	q := u.Query()
	q.Set("utm_source", serviceID)
	q.Set("utm_medium", utmMedium)
	q.Set("utm_campaign", utmCampaign)
	q.Set(ParamItemID, item.ID)
	q.Set(ParamUserID, strconv.FormatInt(actorID, 10))
	q.Set(ParamSharedAt, strconv.FormatInt(b.now().Unix(), 10))
	q.Set(ParamCategory, item.Category)
	q.Set(ParamService, serviceID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (b *Builder) serviceURL(serviceID string, item *model.Item, tracked string) string {
	title := item.Title
	esc := url.QueryEscape

	switch serviceID {
	case catalog.Facebook:
		return "https://www.facebook.com/sharer/sharer.php?u=" + esc(tracked)
	case catalog.Twitter:
		return "https://twitter.com/intent/tweet?url=" + esc(tracked) + "&text=" + esc(title)
	case catalog.LinkedIn:
		return "https://www.linkedin.com/sharing/share-offsite/?url=" + esc(tracked)
	case catalog.Pinterest:
		return "https://pinterest.com/pin/create/button/?url=" + esc(tracked) + "&description=" + esc(title)
	case catalog.Reddit:
		return "https://www.reddit.com/submit?url=" + esc(tracked) + "&title=" + esc(title)
	case catalog.WhatsApp:
		return "https://api.whatsapp.com/send?text=" + esc(title+" "+tracked)
	case catalog.Telegram:
		return "https://t.me/share/url?url=" + esc(tracked) + "&text=" + esc(title)
	case catalog.Email:
		return b.mailto(item, tracked)
	case catalog.Print:
		return PrintAction
	case catalog.Copy:
		return tracked
	default:
		// Services registered by the embedding application share the tracked permalink.
		return tracked
	}
}

func (b *Builder) mailto(item *model.Item, tracked string) string {
	site := b.siteName
	if site == "" {
		site = "our site"
	}
	subject := fmt.Sprintf("%s | %s", item.Title, site)

	var body strings.Builder
	body.WriteString("I thought you might find this interesting:\n\n")
	body.WriteString(item.Title)
	body.WriteString("\n")
	if excerpt := content.Excerpt(item.Body, excerptWords); excerpt != "" {
		body.WriteString(excerpt)
		body.WriteString("\n")
	}
	body.WriteString("\n")
	body.WriteString(tracked)

	return "mailto:?subject=" + mailEscape(subject) + "&body=" + mailEscape(body.String())
}

// mailEscape query-escapes s with %20 for spaces; mail clients do not decode "+".
func mailEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
