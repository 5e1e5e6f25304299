package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"time"

	"github.com/sifan077/PowerShare/internal/app/cache"
	"github.com/sifan077/PowerShare/internal/app/content"
	"github.com/sifan077/PowerShare/internal/app/hooks"
	"github.com/sifan077/PowerShare/internal/app/model"
	apprepository "github.com/sifan077/PowerShare/internal/app/repository"
	infraPrometheus "github.com/sifan077/PowerShare/internal/infra/prometheus"
	"go.uber.org/zap"
)

var (
	// ErrInvalidShare signals missing ids or an item that does not exist.
	ErrInvalidShare = errors.New("invalid share")
	// ErrShareNotCounted signals that the share happened but could not be stored.
	ErrShareNotCounted = errors.New("share could not be counted")
	// ErrInvalidRetention signals a non-positive retention window.
	ErrInvalidRetention = errors.New("retention days must be positive")
)

const defaultStatsTTL = time.Hour

// ShareMeta carries request context captured with a share.
type ShareMeta struct {
	ActorID     int64
	IP          string
	UserAgent   string
	Referrer    string
	AnonymizeIP bool
}

// TrackerDeps groups the collaborators of a Tracker.
type TrackerDeps struct {
	Logger  *zap.Logger
	Events  apprepository.ShareEventRepository
	Reports apprepository.ShareReportRepository
	Visits  apprepository.VisitLogRepository
	Items   content.Repository
	Cache   cache.Store
	Bus     hooks.Bus
	Metrics *infraPrometheus.Metrics

	StatsTTL    time.Duration
	AnonymizeIP bool
	Now         func() time.Time
}

// Tracker records share and visit events and serves cached aggregates.
type Tracker struct {
	logger  *zap.Logger
	events  apprepository.ShareEventRepository
	reports apprepository.ShareReportRepository
	visits  apprepository.VisitLogRepository
	items   content.Repository
	cache   cache.Store
	bus     hooks.Bus
	metrics *infraPrometheus.Metrics

	statsTTL    time.Duration
	anonymizeIP bool
	now         func() time.Time
}

// NewTracker creates a Tracker.
func NewTracker(deps TrackerDeps) *Tracker {
	t := &Tracker{
		logger:      deps.Logger,
		events:      deps.Events,
		reports:     deps.Reports,
		visits:      deps.Visits,
		items:       deps.Items,
		cache:       deps.Cache,
		bus:         deps.Bus,
		metrics:     deps.Metrics,
		statsTTL:    deps.StatsTTL,
		anonymizeIP: deps.AnonymizeIP,
		now:         deps.Now,
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
	if t.bus == nil {
		t.bus = hooks.Nop{}
	}
	if t.statsTTL <= 0 {
		t.statsTTL = defaultStatsTTL
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

func itemStatsKey(itemID string) string { return "stats:item:" + itemID }

func userStatsKey(userID int64) string { return "stats:user:" + strconv.FormatInt(userID, 10) }

// RecordShare appends a share event and returns its id. ErrInvalidShare means nothing
// was recorded because the input was bad; ErrShareNotCounted means storage failed.
func (t *Tracker) RecordShare(ctx context.Context, itemID, serviceID string, meta ShareMeta) (int64, error) {
	if itemID == "" || serviceID == "" {
		return 0, fmt.Errorf("%w: item and service are required", ErrInvalidShare)
	}

	item, err := t.items.GetByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, apprepository.ErrItemNotFound) {
			return 0, fmt.Errorf("%w: item %s not found", ErrInvalidShare, itemID)
		}
		t.logger.Error("failed to resolve shared item", zap.String("item_id", itemID), zap.Error(err))
		return 0, fmt.Errorf("%w: %v", ErrShareNotCounted, err)
	}

	ip := meta.IP
	if t.anonymizeIP || meta.AnonymizeIP {
		ip = AnonymizeIP(ip)
	}

	event := &model.ShareEvent{
		ItemID:       item.ID,
		ItemCategory: item.Category,
		ServiceID:    serviceID,
		IP:           ip,
		UserAgent:    meta.UserAgent,
		Referrer:     meta.Referrer,
		CreatedAt:    t.now().UTC(),
	}
	if meta.ActorID > 0 {
		actor := meta.ActorID
		event.ActorID = &actor
	}

	if err := t.events.Create(ctx, event); err != nil {
		t.logger.Error("failed to store share event",
			zap.String("item_id", itemID),
			zap.String("service", serviceID),
			zap.Error(err))
		t.metrics.ShareRejected("storage")
		return 0, fmt.Errorf("%w: %v", ErrShareNotCounted, err)
	}

	keys := []string{itemStatsKey(item.ID)}
	if event.ActorID != nil {
		keys = append(keys, userStatsKey(*event.ActorID))
	}
	if t.cache != nil {
		if err := t.cache.Delete(ctx, keys...); err != nil {
			// The TTL bounds staleness when invalidation is lost.
			t.logger.Warn("failed to invalidate share stats", zap.Strings("keys", keys), zap.Error(err))
		}
	}

	t.metrics.ShareRecorded(serviceID)
	t.bus.Publish(ctx, hooks.ShareRecorded, *event)

	t.logger.Debug("share recorded",
		zap.Int64("id", event.ID),
		zap.String("item_id", event.ItemID),
		zap.String("service", serviceID))
	return event.ID, nil
}

// ItemStats returns the share aggregate for itemID, zero-valued on storage failure.
func (t *Tracker) ItemStats(ctx context.Context, itemID string) model.ItemStats {
	empty := model.ItemStats{ByService: []model.ServiceCount{}, Recent: []model.RecentShare{}}
	if itemID == "" {
		return empty
	}

	key := itemStatsKey(itemID)
	var stats model.ItemStats
	if t.cacheGet(ctx, key, &stats) {
		t.metrics.StatsLookup("item", true)
		return stats
	}
	t.metrics.StatsLookup("item", false)

	computed, err := t.events.ItemAggregate(ctx, itemID, model.RecentSharesLimit)
	if err != nil || computed == nil {
		t.logger.Warn("failed to compute item stats", zap.String("item_id", itemID), zap.Error(err))
		return empty
	}
	normalizeItemStats(computed)
	t.cacheSet(ctx, key, computed)
	return *computed
}

// UserStats returns the share aggregate for userID, zero-valued on storage failure.
func (t *Tracker) UserStats(ctx context.Context, userID int64) model.UserStats {
	empty := model.UserStats{FavoriteServices: []model.ServiceCount{}, RecentShares: []model.RecentShare{}}
	if userID <= 0 {
		return empty
	}

	key := userStatsKey(userID)
	var stats model.UserStats
	if t.cacheGet(ctx, key, &stats) {
		t.metrics.StatsLookup("user", true)
		return stats
	}
	t.metrics.StatsLookup("user", false)

	computed, err := t.events.UserAggregate(ctx, userID, model.FavoriteServicesLimit, model.RecentSharesLimit)
	if err != nil || computed == nil {
		t.logger.Warn("failed to compute user stats", zap.Int64("user_id", userID), zap.Error(err))
		return empty
	}
	if computed.FavoriteServices == nil {
		computed.FavoriteServices = []model.ServiceCount{}
	}
	if computed.RecentShares == nil {
		computed.RecentShares = []model.RecentShare{}
	}
	t.cacheSet(ctx, key, computed)
	return *computed
}

// OverallStats runs the uncached report. A zero report is returned on failure.
func (t *Tracker) OverallStats(ctx context.Context, filter model.StatsFilter) model.OverallStats {
	empty := model.OverallStats{TopItems: []model.TopItem{}, ServiceBreakdown: []model.ServiceCount{}}
	if t.reports == nil {
		return empty
	}

	stats, err := t.reports.Overall(ctx, filter)
	if err != nil || stats == nil {
		t.logger.Warn("failed to compute overall stats", zap.Error(err))
		return empty
	}
	if stats.TopItems == nil {
		stats.TopItems = []model.TopItem{}
	}
	if stats.ServiceBreakdown == nil {
		stats.ServiceBreakdown = []model.ServiceCount{}
	}
	return *stats
}

// RecordVisit appends v to the item's rolling visit list. It returns false when the
// item id is missing or the list could not be written.
func (t *Tracker) RecordVisit(ctx context.Context, v model.Visit) bool {
	if v.ItemID == "" {
		return false
	}
	if v.OccurredAt.IsZero() {
		v.OccurredAt = t.now().UTC()
	}
	if t.anonymizeIP {
		v.VisitorIP = AnonymizeIP(v.VisitorIP)
	}

	log, err := t.visits.Get(ctx, v.ItemID)
	if err != nil {
		t.logger.Error("failed to load visit log", zap.String("item_id", v.ItemID), zap.Error(err))
		return false
	}
	log.ItemID = v.ItemID
	log.Append(v, model.MaxVisitsPerItem)

	if err := t.visits.Save(ctx, log); err != nil {
		t.logger.Error("failed to save visit log", zap.String("item_id", v.ItemID), zap.Error(err))
		return false
	}

	t.metrics.VisitRecorded(v.ServiceID)
	t.bus.Publish(ctx, hooks.VisitRecorded, v)
	return true
}

// PruneOlderThan deletes share events older than days and returns how many went.
func (t *Tracker) PruneOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, ErrInvalidRetention
	}
	cutoff := t.now().UTC().AddDate(0, 0, -days)
	n, err := t.events.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune share events: %w", err)
	}
	return n, nil
}

func (t *Tracker) cacheGet(ctx context.Context, key string, dest any) bool {
	if t.cache == nil {
		return false
	}
	raw, err := t.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			t.logger.Warn("stats cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		t.logger.Warn("discarding undecodable stats cache entry", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (t *Tracker) cacheSet(ctx context.Context, key string, value any) {
	if t.cache == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := t.cache.Set(ctx, key, raw, t.statsTTL); err != nil {
		t.logger.Warn("stats cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func normalizeItemStats(s *model.ItemStats) {
	if s.ByService == nil {
		s.ByService = []model.ServiceCount{}
	}
	if s.Recent == nil {
		s.Recent = []model.RecentShare{}
	}
}

// AnonymizeIP zeroes the last octet of IPv4 addresses and everything past the /48 of
// IPv6 addresses. Unparseable input is returned empty.
func AnonymizeIP(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ""
	}
	addr = addr.Unmap()
	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return ""
	}
	return prefix.Addr().String()
}
