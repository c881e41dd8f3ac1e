package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finboard/finboard/internal/accounts"
	"github.com/finboard/finboard/internal/finlife"
	"github.com/finboard/finboard/internal/forum"
	"github.com/finboard/finboard/internal/observability"
	"github.com/finboard/finboard/internal/shared"
	"github.com/finboard/finboard/internal/testing/webtest"
	"github.com/finboard/finboard/internal/view"
	"github.com/finboard/finboard/jobs"
)

type emptyForum struct{}

func (emptyForum) ListPosts(ctx context.Context) ([]forum.Post, error) { return nil, nil }
func (emptyForum) Post(ctx context.Context, id int64) (forum.Post, error) {
	return forum.Post{}, forum.ErrNotFound
}
func (emptyForum) CreatePost(ctx context.Context, p forum.Post) (forum.Post, error) { return p, nil }
func (emptyForum) UpdatePost(ctx context.Context, id int64, in forum.PostInput) error {
	return nil
}
func (emptyForum) DeletePost(ctx context.Context, id int64) error { return nil }
func (emptyForum) Comments(ctx context.Context, postID int64) ([]forum.Comment, error) {
	return nil, nil
}
func (emptyForum) Comment(ctx context.Context, id int64) (forum.Comment, error) {
	return forum.Comment{}, forum.ErrNotFound
}
func (emptyForum) CreateComment(ctx context.Context, c forum.Comment) (forum.Comment, error) {
	return c, nil
}
func (emptyForum) DeleteComment(ctx context.Context, id int64) error { return nil }

type routerFixture struct {
	handler http.Handler
	logs    *bytes.Buffer
}

func newRouterFixture(t *testing.T, readiness map[string]ReadinessCheck) *routerFixture {
	t.Helper()
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))
	sessions, _ := webtest.Sessions(t)
	csrf := shared.NewCSRFManager("csrf-secret", "/finlife/")
	engine, err := view.NewEngine()
	require.NoError(t, err)
	pages := view.NewPages(engine, csrf, logger)
	accountService := accounts.NewService(nil, "auth-secret")

	handler := NewRouter(RouterParams{
		Logger:          logger,
		Config:          &Config{AppEnv: "test"},
		SessionManager:  sessions,
		CSRFManager:     csrf,
		Metrics:         observability.NewMetrics(),
		AccountsService: accountService,
		AccountsHandler: accounts.NewHandler(logger, accountService, pages, sessions, csrf),
		ForumHandler:    forum.NewHandler(logger, forum.NewService(emptyForum{}), pages, "/accounts/login"),
		FinlifeHandler:  finlife.NewHandler(logger, nil, nil),
		JobHandler:      jobs.NewHandler(nil, logger),
		Readiness:       readiness,
	})
	return &routerFixture{handler: handler, logs: logs}
}

func TestHealthzAcceptsTrailingSlash(t *testing.T) {
	f := newRouterFixture(t, nil)
	browser := webtest.NewBrowser(t, f.handler)

	res := browser.Get("/healthz/")
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"status":"ok"}`, res.Body.String())
	assert.Equal(t, "nosniff", res.Header().Get("X-Content-Type-Options"))
}

func TestReadyzReportsEachCheck(t *testing.T) {
	f := newRouterFixture(t, map[string]ReadinessCheck{
		"postgres": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return errors.New("connection refused") },
	})

	res := webtest.NewBrowser(t, f.handler).Get("/readyz")
	require.Equal(t, http.StatusServiceUnavailable, res.Code)
	assert.JSONEq(t, `{"ready":false,"checks":{"postgres":"up","redis":"down"}}`, res.Body.String())
}

func TestReadyzAllUp(t *testing.T) {
	f := newRouterFixture(t, map[string]ReadinessCheck{
		"postgres": func(ctx context.Context) error { return nil },
	})

	res := webtest.NewBrowser(t, f.handler).Get("/readyz")
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"ready":true,"checks":{"postgres":"up"}}`, res.Body.String())
}

func TestUnknownPathRendersNotFoundPage(t *testing.T) {
	f := newRouterFixture(t, nil)

	res := webtest.NewBrowser(t, f.handler).Get("/no/such/page")
	require.Equal(t, http.StatusNotFound, res.Code)
	assert.Contains(t, res.Body.String(), "does not exist")
}

func TestIndexAndMetrics(t *testing.T) {
	f := newRouterFixture(t, nil)
	browser := webtest.NewBrowser(t, f.handler)

	res := browser.Get("/")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "No posts yet.")

	res = browser.Get("/metrics")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `finboard_http_requests_total{code="200",route="/"} 1`)
}

func TestFormPostsRequireCSRFToken(t *testing.T) {
	f := newRouterFixture(t, nil)
	browser := webtest.NewBrowser(t, f.handler)

	res := browser.PostForm("/create", url.Values{"title": {"t"}, "content": {"c"}})
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Contains(t, f.logs.String(), "csrf validation failed")

	browser.Get("/accounts/login")
	require.NotEmpty(t, browser.CSRF)
	res = browser.PostForm("/create", url.Values{"title": {"t"}, "content": {"c"}})
	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.True(t, strings.HasPrefix(res.Header().Get("Location"), "/accounts/login?next="))
}

func TestFinlifeAPIIsCSRFExempt(t *testing.T) {
	f := newRouterFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/finlife/deposit-products", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	res := webtest.NewBrowser(t, f.handler).Do(req)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestJobsHealthMounted(t *testing.T) {
	f := newRouterFixture(t, nil)

	res := webtest.NewBrowser(t, f.handler).Get("/jobs/health")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `"queue":"default"`)
}

func TestStaticAssetsAreCached(t *testing.T) {
	f := newRouterFixture(t, nil)

	res := webtest.NewBrowser(t, f.handler).Get("/static/css/app.css")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "public, max-age=3600", res.Header().Get("Cache-Control"))
	assert.Contains(t, res.Header().Get("Content-Type"), "text/css")
}

func TestAccessLogCarriesRequestID(t *testing.T) {
	f := newRouterFixture(t, nil)

	webtest.NewBrowser(t, f.handler).Get("/healthz")
	out := f.logs.String()
	assert.Contains(t, out, `msg="http request"`)
	assert.Contains(t, out, "path=/healthz")
	assert.Contains(t, out, "status=200")
	assert.Contains(t, out, "request_id=")
}
