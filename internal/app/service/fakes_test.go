package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sifan077/PowerShare/internal/app/model"
	"github.com/sifan077/PowerShare/internal/app/repository"
)

type mockShareEventRepository struct {
	mu        sync.Mutex
	events    []model.ShareEvent
	nextID    int64
	createErr error
	aggErr    error
	aggCalls  int
	deleteFn  func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *mockShareEventRepository) Create(_ context.Context, event *model.ShareEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	event.ID = m.nextID
	m.events = append(m.events, *event)
	return nil
}

func (m *mockShareEventRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *mockShareEventRepository) aggregate(match func(model.ShareEvent) bool, recent int) (int64, []model.ServiceCount, []model.RecentShare) {
	var (
		total   int64
		counts  = map[string]int64{}
		recents []model.RecentShare
	)
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if !match(e) {
			continue
		}
		total++
		counts[e.ServiceID]++
		if len(recents) < recent {
			var actor int64
			if e.ActorID != nil {
				actor = *e.ActorID
			}
			recents = append(recents, model.RecentShare{ItemID: e.ItemID, Service: e.ServiceID, ActorID: actor, CreatedAt: e.CreatedAt})
		}
	}
	byService := make([]model.ServiceCount, 0, len(counts))
	for s, n := range counts {
		byService = append(byService, model.ServiceCount{Service: s, Count: n})
	}
	sort.Slice(byService, func(i, j int) bool {
		if byService[i].Count != byService[j].Count {
			return byService[i].Count > byService[j].Count
		}
		return byService[i].Service < byService[j].Service
	})
	return total, byService, recents
}

func (m *mockShareEventRepository) ItemAggregate(_ context.Context, itemID string, recent int) (*model.ItemStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aggCalls++
	if m.aggErr != nil {
		return nil, m.aggErr
	}
	total, by, rec := m.aggregate(func(e model.ShareEvent) bool { return e.ItemID == itemID }, recent)
	return &model.ItemStats{Total: total, ByService: by, Recent: rec}, nil
}

func (m *mockShareEventRepository) UserAggregate(_ context.Context, actorID int64, favorites, recent int) (*model.UserStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aggCalls++
	if m.aggErr != nil {
		return nil, m.aggErr
	}
	total, by, rec := m.aggregate(func(e model.ShareEvent) bool { return e.ActorID != nil && *e.ActorID == actorID }, recent)
	if len(by) > favorites {
		by = by[:favorites]
	}
	return &model.UserStats{Total: total, FavoriteServices: by, RecentShares: rec}, nil
}

func (m *mockShareEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, cutoff)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.events[:0]
	var deleted int64
	for _, e := range m.events {
		if e.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	m.events = kept
	return deleted, nil
}

type mockReportRepository struct {
	stats *model.OverallStats
	err   error
	got   model.StatsFilter
}

func (m *mockReportRepository) Overall(_ context.Context, filter model.StatsFilter) (*model.OverallStats, error) {
	m.got = filter
	return m.stats, m.err
}

type mockVisitLogRepository struct {
	mu      sync.Mutex
	logs    map[string][]model.Visit
	getErr  error
	saveErr error
}

func (m *mockVisitLogRepository) Get(_ context.Context, itemID string) (*model.VisitLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return &model.VisitLog{ItemID: itemID, Visits: append([]model.Visit(nil), m.logs[itemID]...)}, nil
}

func (m *mockVisitLogRepository) Save(_ context.Context, log *model.VisitLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.logs == nil {
		m.logs = map[string][]model.Visit{}
	}
	m.logs[log.ItemID] = append([]model.Visit(nil), log.Visits...)
	return nil
}

type mockItemRepository struct {
	items map[string]*model.Item
	err   error
}

func (m *mockItemRepository) GetByID(_ context.Context, id string) (*model.Item, error) {
	if m.err != nil {
		return nil, m.err
	}
	if it, ok := m.items[id]; ok {
		return it, nil
	}
	return nil, repository.ErrItemNotFound
}

func (m *mockItemRepository) Exists(_ context.Context, id string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.items[id]
	return ok, nil
}

var errBadToken = errors.New("bad token")

// mockTokens accepts tokens of the form "ok:<scope>".
type mockTokens struct{}

func (mockTokens) Issue(scope string) (string, error) { return "ok:" + scope, nil }

func (mockTokens) Validate(scope, token string) error {
	if token != "ok:"+scope {
		return errBadToken
	}
	return nil
}

func testItems() *mockItemRepository {
	return &mockItemRepository{items: map[string]*model.Item{
		"42": {ID: "42", Category: "post", Title: "Hello", Permalink: "https://example.com/hello", Status: model.ItemStatusPublished},
		"43": {ID: "43", Category: "page", Title: "About", Permalink: "https://example.com/about", Status: model.ItemStatusPublished},
		"44": {ID: "44", Category: "post", Title: "Draft", Permalink: "https://example.com/draft", Status: model.ItemStatusDraft},
	}}
}
