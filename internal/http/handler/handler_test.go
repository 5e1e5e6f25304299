package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/PowerShare/internal/app/catalog"
	"github.com/sifan077/PowerShare/internal/app/identity"
	"github.com/sifan077/PowerShare/internal/app/model"
	"github.com/sifan077/PowerShare/internal/app/repository"
	"github.com/sifan077/PowerShare/internal/app/service"
	"github.com/sifan077/PowerShare/internal/app/settings"
	"github.com/sifan077/PowerShare/internal/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	result   service.ShareResult
	got      service.ShareRequest
	guards   []*service.RenderGuard
	decorate func(req service.DecorateRequest) service.Decoration
	tokenErr error
}

func (f *fakeController) Decorate(_ context.Context, guard *service.RenderGuard, req service.DecorateRequest) service.Decoration {
	f.guards = append(f.guards, guard)
	if f.decorate != nil {
		return f.decorate(req)
	}
	return service.Decoration{Content: req.Content}
}

func (f *fakeController) HandleShare(_ context.Context, req service.ShareRequest) service.ShareResult {
	f.got = req
	return f.result
}

func (f *fakeController) IssueToken(actor identity.Actor) (string, error) {
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	return "tok-" + service.TokenScope(actor), nil
}

type memoryItems struct {
	items map[string]*model.Item
	err   error
}

func (m *memoryItems) Upsert(_ context.Context, item *model.Item) error {
	if m.err != nil {
		return m.err
	}
	if m.items == nil {
		m.items = map[string]*model.Item{}
	}
	item.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.items[item.ID] = item
	return nil
}

func (m *memoryItems) GetByID(_ context.Context, id string) (*model.Item, error) {
	if m.err != nil {
		return nil, m.err
	}
	if it, ok := m.items[id]; ok {
		return it, nil
	}
	return nil, repository.ErrItemNotFound
}

func (m *memoryItems) Exists(ctx context.Context, id string) (bool, error) {
	_, err := m.GetByID(ctx, id)
	return err == nil, nil
}

func (m *memoryItems) List(_ context.Context, limit, offset int) ([]model.Item, error) {
	var out []model.Item
	for _, it := range m.items {
		out = append(out, *it)
	}
	return out, m.err
}

func sampleItems() *memoryItems {
	return &memoryItems{items: map[string]*model.Item{
		"42": {ID: "42", Category: "post", Title: "Hello <world>", Body: "Body text", Permalink: "https://example.com/hello", Status: model.ItemStatusPublished},
		"44": {ID: "44", Category: "post", Title: "Draft", Permalink: "https://example.com/draft", Status: model.ItemStatusDraft},
	}}
}

func newShareApp(ctrl *fakeController, items *memoryItems) *fiber.App {
	app := fiber.New()
	app.Use(middleware.Identity(identity.Headers{}))
	NewShareHandler(ShareDeps{Controller: ctrl, Items: items, SiteName: "Example"}).Register(app)
	return app
}

func decodeJSON(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

func TestShareHandler_Health(t *testing.T) {
	app := newShareApp(&fakeController{}, sampleItems())
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestShareHandler_ShareStatusMapping(t *testing.T) {
	cases := []struct {
		failure service.Failure
		status  int
	}{
		{service.FailureNone, fiber.StatusOK},
		{service.FailureToken, fiber.StatusForbidden},
		{service.FailureForbidden, fiber.StatusForbidden},
		{service.FailureRateLimited, fiber.StatusTooManyRequests},
		{service.FailureInvalid, fiber.StatusBadRequest},
		{service.FailureNotFound, fiber.StatusNotFound},
		{service.FailureUnavailable, fiber.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		ctrl := &fakeController{result: service.ShareResult{
			Success: tc.failure == service.FailureNone,
			Failure: tc.failure,
		}}
		app := newShareApp(ctrl, sampleItems())

		req := httptest.NewRequest(fiber.MethodPost, "/api/share", strings.NewReader(`{"item_id":"42","service":"copy","token":"t"}`))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, tc.status, resp.StatusCode, "failure %d", tc.failure)
	}
}

func TestShareHandler_ShareForm(t *testing.T) {
	ctrl := &fakeController{result: service.ShareResult{Success: true, Counted: true, Count: 12345, Message: service.MsgShared}}
	app := newShareApp(ctrl, sampleItems())

	form := url.Values{"item_id": {"42"}, "service": {"facebook"}, "token": {"abc"}}
	req := httptest.NewRequest(fiber.MethodPost, "/api/share", strings.NewReader(form.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	req.Header.Set(identity.HeaderUserID, "7")
	req.Header.Set(fiber.HeaderReferer, "https://example.com/hello")
	resp, err := app.Test(req)
	require.NoError(t, err)

	var body ShareResponse
	decodeJSON(t, resp, &body)
	assert.True(t, body.Success)
	assert.True(t, body.Counted)
	assert.Equal(t, int64(12345), body.Count)
	assert.Equal(t, "12.3K", body.CountLabel)

	assert.Equal(t, "42", ctrl.got.ItemID)
	assert.Equal(t, "facebook", ctrl.got.ServiceID)
	assert.Equal(t, "abc", ctrl.got.Token)
	assert.Equal(t, int64(7), ctrl.got.Actor.ID)
	assert.Equal(t, "https://example.com/hello", ctrl.got.Referrer)
}

func TestShareHandler_Token(t *testing.T) {
	app := newShareApp(&fakeController{}, sampleItems())

	req := httptest.NewRequest(fiber.MethodGet, "/api/share/token?item_id=42", nil)
	req.Header.Set(identity.HeaderUserID, "5")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "no-store", resp.Header.Get(fiber.HeaderCacheControl))

	var body map[string]string
	decodeJSON(t, resp, &body)
	assert.Equal(t, "tok-share:5", body["token"])

	app = newShareApp(&fakeController{tokenErr: errors.New("no secret")}, sampleItems())
	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/api/share/token", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestShareHandler_ItemPage(t *testing.T) {
	ctrl := &fakeController{decorate: func(req service.DecorateRequest) service.Decoration {
		return service.Decoration{Mode: settings.StyleInline, Content: req.Content + `<div class="powershare-inline"></div>`}
	}}
	app := newShareApp(ctrl, sampleItems())

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/items/42", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	html := string(raw)

	assert.Contains(t, html, "Hello &lt;world&gt; | Example")
	assert.Contains(t, html, "<p>Body text</p>")
	assert.Contains(t, html, `<div class="powershare-inline"></div>`)
	require.Len(t, ctrl.guards, 1)
	assert.NotNil(t, ctrl.guards[0])
}

func TestShareHandler_ItemPageMissing(t *testing.T) {
	app := newShareApp(&fakeController{}, sampleItems())

	for _, path := range []string{"/items/999", "/items/44"} {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, path, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode, path)
	}

	broken := sampleItems()
	broken.err = errors.New("db down")
	app = newShareApp(&fakeController{}, broken)
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/items/42", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestShareHandler_Decoration(t *testing.T) {
	var single []bool
	ctrl := &fakeController{decorate: func(req service.DecorateRequest) service.Decoration {
		single = append(single, req.SingleView)
		return service.Decoration{Mode: settings.StyleFloating, Content: req.Content, Widget: "<div>w</div>"}
	}}
	app := newShareApp(ctrl, sampleItems())

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/items/42/decoration?view=single", nil))
	require.NoError(t, err)
	var body DecorationResponse
	decodeJSON(t, resp, &body)
	assert.Equal(t, "42", body.ItemID)
	assert.Equal(t, settings.StyleFloating, body.Mode)
	assert.Equal(t, "<div>w</div>", body.Widget)

	_, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/api/items/42/decoration?view=list", nil))
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, single)
}

type fakeStats struct {
	filter  model.StatsFilter
	pruned  int
	pruneFn func(days int) (int64, error)
}

func (f *fakeStats) ItemStats(_ context.Context, itemID string) model.ItemStats {
	return model.ItemStats{Total: 2, ByService: []model.ServiceCount{{Service: "facebook", Count: 2}}, Recent: []model.RecentShare{}}
}

func (f *fakeStats) UserStats(_ context.Context, userID int64) model.UserStats {
	return model.UserStats{Total: userID}
}

func (f *fakeStats) OverallStats(_ context.Context, filter model.StatsFilter) model.OverallStats {
	f.filter = filter
	return model.OverallStats{TotalShares: 9}
}

func (f *fakeStats) PruneOlderThan(_ context.Context, days int) (int64, error) {
	f.pruned = days
	if f.pruneFn != nil {
		return f.pruneFn(days)
	}
	return 4, nil
}

type fakeSettings struct {
	saved map[string]any
	err   error
}

func (f *fakeSettings) Load(context.Context) settings.Settings {
	return settings.Defaults([]string{"facebook"})
}

func (f *fakeSettings) Save(_ context.Context, raw map[string]any) (settings.Settings, error) {
	f.saved = raw
	out := settings.Defaults([]string{"facebook"})
	out.DisplayStyle = settings.StyleFloating
	return out, f.err
}

func (f *fakeSettings) ShareableCategories(context.Context) []string {
	return []string{"post", "page", "product"}
}

type apiFixture struct {
	app      *fiber.App
	stats    *fakeStats
	settings *fakeSettings
	items    *memoryItems
}

func newAPIFixture() *apiFixture {
	f := &apiFixture{stats: &fakeStats{}, settings: &fakeSettings{}, items: sampleItems()}
	f.app = fiber.New()
	f.app.Use(middleware.Identity(identity.Headers{}))
	NewAPIHandler(APIDeps{
		Stats:    f.stats,
		Settings: f.settings,
		Items:    f.items,
		Catalog:  catalog.New(),
		Now:      func() time.Time { return time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC) },
	}).Register(f.app)
	return f
}

func asAdmin(req *http.Request) *http.Request {
	req.Header.Set(identity.HeaderUserID, "1")
	req.Header.Set(identity.HeaderCaps, identity.CapManage)
	return req
}

func TestAPIHandler_ListServices(t *testing.T) {
	f := newAPIFixture()
	resp, err := f.app.Test(httptest.NewRequest(fiber.MethodGet, "/api/services", nil))
	require.NoError(t, err)

	var body struct {
		Services []ServiceResponse `json:"services"`
		Count    int               `json:"count"`
	}
	decodeJSON(t, resp, &body)
	assert.Equal(t, 10, body.Count)
	assert.Equal(t, catalog.Facebook, body.Services[0].ID)
}

func TestAPIHandler_ItemStats(t *testing.T) {
	f := newAPIFixture()
	resp, err := f.app.Test(httptest.NewRequest(fiber.MethodGet, "/api/items/42/stats", nil))
	require.NoError(t, err)

	var body model.ItemStats
	decodeJSON(t, resp, &body)
	assert.Equal(t, int64(2), body.Total)
	assert.Equal(t, []model.ServiceCount{{Service: "facebook", Count: 2}}, body.ByService)
}

func TestAPIHandler_UserStatsAccess(t *testing.T) {
	f := newAPIFixture()

	req := httptest.NewRequest(fiber.MethodGet, "/api/users/7/stats", nil)
	req.Header.Set(identity.HeaderUserID, "7")
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	req = httptest.NewRequest(fiber.MethodGet, "/api/users/7/stats", nil)
	req.Header.Set(identity.HeaderUserID, "8")
	resp, err = f.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, err = f.app.Test(asAdmin(httptest.NewRequest(fiber.MethodGet, "/api/users/7/stats", nil)))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = f.app.Test(asAdmin(httptest.NewRequest(fiber.MethodGet, "/api/users/abc/stats", nil)))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandler_OverallStats(t *testing.T) {
	f := newAPIFixture()

	resp, err := f.app.Test(httptest.NewRequest(fiber.MethodGet, "/api/stats", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, err = f.app.Test(asAdmin(httptest.NewRequest(fiber.MethodGet, "/api/stats", nil)))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC), f.stats.filter.From)

	resp, err = f.app.Test(asAdmin(httptest.NewRequest(fiber.MethodGet, "/api/stats?from=2026-01-01&to=2026-01-31&category=post&service=email", nil)))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), f.stats.filter.From)
	assert.Equal(t, 31, f.stats.filter.To.Day())
	assert.Equal(t, 23, f.stats.filter.To.Hour())
	assert.Equal(t, "post", f.stats.filter.Category)
	assert.Equal(t, "email", f.stats.filter.Service)

	for _, q := range []string{"from=yesterday", "from=2026-02-01&to=2026-01-01"} {
		resp, err = f.app.Test(asAdmin(httptest.NewRequest(fiber.MethodGet, "/api/stats?"+q, nil)))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestAPIHandler_PruneShares(t *testing.T) {
	f := newAPIFixture()

	resp, err := f.app.Test(asAdmin(httptest.NewRequest(fiber.MethodDelete, "/api/shares?older_than_days=0", nil)))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = f.app.Test(asAdmin(httptest.NewRequest(fiber.MethodDelete, "/api/shares?older_than_days=90", nil)))
	require.NoError(t, err)
	var body map[string]int64
	decodeJSON(t, resp, &body)
	assert.Equal(t, int64(4), body["deleted"])
	assert.Equal(t, 90, f.stats.pruned)

	f.stats.pruneFn = func(int) (int64, error) { return 0, errors.New("db down") }
	resp, err = f.app.Test(asAdmin(httptest.NewRequest(fiber.MethodDelete, "/api/shares?older_than_days=90", nil)))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestAPIHandler_Settings(t *testing.T) {
	f := newAPIFixture()

	resp, err := f.app.Test(asAdmin(httptest.NewRequest(fiber.MethodGet, "/api/settings", nil)))
	require.NoError(t, err)
	var loaded settings.Settings
	decodeJSON(t, resp, &loaded)
	assert.Equal(t, settings.StyleInline, loaded.DisplayStyle)

	req := asAdmin(httptest.NewRequest(fiber.MethodPut, "/api/settings", strings.NewReader(`{"display_style":"floating","bogus":1}`)))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err = f.app.Test(req)
	require.NoError(t, err)
	var saved settings.Settings
	decodeJSON(t, resp, &saved)
	assert.Equal(t, settings.StyleFloating, saved.DisplayStyle)
	assert.Equal(t, "floating", f.settings.saved["display_style"])

	req = httptest.NewRequest(fiber.MethodPut, "/api/settings", strings.NewReader(`{}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err = f.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestAPIHandler_ListCategories(t *testing.T) {
	f := newAPIFixture()
	resp, err := f.app.Test(asAdmin(httptest.NewRequest(fiber.MethodGet, "/api/categories", nil)))
	require.NoError(t, err)

	var body struct {
		Categories []string `json:"categories"`
	}
	decodeJSON(t, resp, &body)
	assert.Equal(t, []string{"post", "page", "product"}, body.Categories)
}

func TestAPIHandler_PutItem(t *testing.T) {
	f := newAPIFixture()

	put := func(id, body string) *http.Response {
		req := asAdmin(httptest.NewRequest(fiber.MethodPut, "/api/items/"+id, strings.NewReader(body)))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := f.app.Test(req)
		require.NoError(t, err)
		return resp
	}

	resp := put("50", `{"category":"page","title":"New","permalink":"https://example.com/new"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, model.ItemStatusPublished, f.items.items["50"].Status)

	assert.Equal(t, fiber.StatusBadRequest, put("51", `{"category":"page"}`).StatusCode)
	assert.Equal(t, fiber.StatusBadRequest, put("51", `{"category":"page","title":"x","permalink":"/relative"}`).StatusCode)
	assert.Equal(t, fiber.StatusBadRequest, put("51", `{"category":"page","title":"x","permalink":"https://e.com","status":"trash"}`).StatusCode)
}

func TestAPIHandler_ListItems(t *testing.T) {
	f := newAPIFixture()

	resp, err := f.app.Test(asAdmin(httptest.NewRequest(fiber.MethodGet, "/api/items?limit=500", nil)))
	require.NoError(t, err)
	var body struct {
		Items []ItemResponse `json:"items"`
		Limit int            `json:"limit"`
		Count int            `json:"count"`
	}
	decodeJSON(t, resp, &body)
	assert.Equal(t, 20, body.Limit)
	assert.Equal(t, 2, body.Count)
}
