package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/PowerShare/internal/app/cache"
	"github.com/sifan077/PowerShare/internal/app/catalog"
	"github.com/sifan077/PowerShare/internal/app/content"
	"github.com/sifan077/PowerShare/internal/app/hooks"
	"github.com/sifan077/PowerShare/internal/app/identity"
	"github.com/sifan077/PowerShare/internal/app/model"
	"github.com/sifan077/PowerShare/internal/app/repository"
	"github.com/sifan077/PowerShare/internal/app/service"
	"github.com/sifan077/PowerShare/internal/app/settings"
	"github.com/sifan077/PowerShare/internal/app/sharelink"
	httpUtil "github.com/sifan077/PowerShare/internal/http/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu       sync.Mutex
	items    map[string]*model.Item
	events   []model.ShareEvent
	visits   map[string][]model.Visit
	settings map[string]string
}

func newMemStore() *memStore {
	return &memStore{items: map[string]*model.Item{}, visits: map[string][]model.Visit{}, settings: map[string]string{}}
}

type memItems struct{ *memStore }

func (m memItems) Upsert(_ context.Context, item *model.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m memItems) GetByID(_ context.Context, id string) (*model.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it, ok := m.items[id]; ok {
		cp := *it
		return &cp, nil
	}
	return nil, repository.ErrItemNotFound
}

func (m memItems) Exists(ctx context.Context, id string) (bool, error) {
	_, err := m.GetByID(ctx, id)
	return err == nil, nil
}

func (m memItems) List(context.Context, int, int) ([]model.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Item, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, *it)
	}
	return out, nil
}

type memEvents struct{ *memStore }

func (m memEvents) Create(_ context.Context, e *model.ShareEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.events) + 1)
	m.events = append(m.events, *e)
	return nil
}

func (m memEvents) ItemAggregate(_ context.Context, itemID string, _ int) (*model.ItemStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &model.ItemStats{}
	counts := map[string]int64{}
	for _, e := range m.events {
		if e.ItemID == itemID {
			stats.Total++
			counts[e.ServiceID]++
		}
	}
	for s, n := range counts {
		stats.ByService = append(stats.ByService, model.ServiceCount{Service: s, Count: n})
	}
	return stats, nil
}

func (m memEvents) UserAggregate(_ context.Context, actorID int64, _, _ int) (*model.UserStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &model.UserStats{}
	for _, e := range m.events {
		if e.ActorID != nil && *e.ActorID == actorID {
			stats.Total++
		}
	}
	return stats, nil
}

func (m memEvents) DeleteOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }

type memVisits struct{ *memStore }

func (m memVisits) Get(_ context.Context, itemID string) (*model.VisitLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &model.VisitLog{ItemID: itemID, Visits: append([]model.Visit(nil), m.visits[itemID]...)}, nil
}

func (m memVisits) Save(_ context.Context, log *model.VisitLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visits[log.ItemID] = log.Visits
	return nil
}

type memSettings struct{ *memStore }

func (m memSettings) Get(_ context.Context, scope string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.settings[scope]
	return v, ok, nil
}

func (m memSettings) Put(_ context.Context, scope, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[scope] = value
	return nil
}

func newTestServer(t *testing.T) (*Server, *memStore) {
	t.Helper()

	store := newMemStore()
	items := memItems{store}
	bus := hooks.NewRegistry(nil)
	cat := catalog.New()
	kv := cache.NewMemory()

	tracker := service.NewTracker(service.TrackerDeps{
		Events: memEvents{store},
		Visits: memVisits{store},
		Items:  items,
		Cache:  kv,
		Bus:    bus,
	})
	policy := settings.NewPolicy(content.NewStaticCategories(nil), bus)
	settingsStore := settings.NewStore(memSettings{store}, cat, policy, nil)

	controller := service.NewController(service.ControllerDeps{
		Settings:       settingsStore,
		Catalog:        cat,
		Links:          sharelink.NewBuilder(sharelink.Options{Items: items, Catalog: cat, Bus: bus, SiteName: "Example"}),
		Tracker:        tracker,
		Items:          items,
		Limiter:        service.NewShareLimiter(kv, bus, 20, nil),
		Tokens:         httpUtil.NewTokenSigner([]byte("test-secret"), time.Hour),
		Bus:            bus,
		AllowAnonymous: true,
	})

	srv := New(Dependencies{
		Controller:     controller,
		Stats:          tracker,
		Settings:       settingsStore,
		Items:          items,
		Catalog:        cat,
		Identity:       identity.Headers{},
		RateLimitStore: kv,
		APIRateLimit:   100,
		SiteName:       "Example",
	})
	return srv, store
}

func do(t *testing.T, srv *Server, method, path, body string, userID string, caps string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if userID != "" {
		req.Header.Set(identity.HeaderUserID, userID)
	}
	if caps != "" {
		req.Header.Set(identity.HeaderCaps, caps)
	}
	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	return resp
}

func readJSON(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

func TestServer_ShareFlow(t *testing.T) {
	srv, store := newTestServer(t)

	resp := do(t, srv, fiber.MethodPut, "/api/items/42",
		`{"category":"post","title":"Hello","body":"Some words here","permalink":"https://example.com/hello"}`,
		"1", identity.CapManage)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = do(t, srv, fiber.MethodGet, "/api/share/token?item_id=42", "", "7", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var tok map[string]string
	readJSON(t, resp, &tok)
	require.NotEmpty(t, tok["token"])

	for i := 1; i <= 2; i++ {
		resp = do(t, srv, fiber.MethodPost, "/api/share",
			`{"item_id":"42","service":"facebook","token":"`+tok["token"]+`"}`, "7", "")
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		var share map[string]any
		readJSON(t, resp, &share)
		assert.Equal(t, true, share["success"])
		assert.Equal(t, float64(i), share["count"])
	}

	resp = do(t, srv, fiber.MethodPost, "/api/share", `{"item_id":"42","service":"facebook","token":"bogus"}`, "7", "")
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = do(t, srv, fiber.MethodGet, "/api/items/42/stats", "", "", "")
	var stats model.ItemStats
	readJSON(t, resp, &stats)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, []model.ServiceCount{{Service: "facebook", Count: 2}}, stats.ByService)

	resp = do(t, srv, fiber.MethodGet, "/items/42", "", "7", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	page := string(raw)
	assert.Contains(t, page, "powershare-inline")
	assert.Contains(t, page, `<span class="powershare-count">2</span>`)
	assert.Contains(t, page, "bps_pid%3D42")

	resp = do(t, srv, fiber.MethodGet, "/items/42?bps_pid=42&bps_uid=7&bps_service=facebook&bps_type=post", "", "", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	store.mu.Lock()
	visits := store.visits["42"]
	store.mu.Unlock()
	require.Len(t, visits, 1)
	assert.Equal(t, int64(7), visits[0].SharedBy)
}

func TestServer_SettingsRequireManage(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, srv, fiber.MethodPut, "/api/settings", `{"display_style":"floating"}`, "7", "")
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = do(t, srv, fiber.MethodPut, "/api/settings",
		`{"display_style":"floating","enabled_categories":"post,page,nav_menu_item","default_services":["email","bogus"]}`,
		"1", identity.CapManage)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var saved settings.Settings
	readJSON(t, resp, &saved)
	assert.Equal(t, settings.StyleFloating, saved.DisplayStyle)
	assert.Equal(t, []string{"post", "page"}, saved.EnabledCategories)
	assert.Equal(t, []string{"email"}, saved.DefaultServices)

	resp = do(t, srv, fiber.MethodGet, "/api/settings", "", "1", identity.CapManage)
	var loaded settings.Settings
	readJSON(t, resp, &loaded)
	assert.Equal(t, saved, loaded)
}

func TestServer_CapabilitiesWithoutUserIDAreRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, srv, fiber.MethodPut, "/api/settings", `{"display_style":"floating"}`, "", identity.CapManage)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = do(t, srv, fiber.MethodDelete, "/api/shares?older_than_days=1", "", "0", identity.CapManage)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = do(t, srv, fiber.MethodPut, "/api/items/42",
		`{"category":"post","title":"Hello","body":"x","permalink":"https://example.com/hello"}`,
		"", "read,"+identity.CapManage)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestServer_HealthAndRequestID(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := do(t, srv, fiber.MethodGet, "/health", "", "", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
