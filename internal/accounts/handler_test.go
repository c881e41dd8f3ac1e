package accounts_test

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finboard/finboard/internal/accounts"
	"github.com/finboard/finboard/internal/shared"
	"github.com/finboard/finboard/internal/testing/webtest"
	"github.com/finboard/finboard/internal/view"
	_ "github.com/finboard/finboard/testing"
)

type fixture struct {
	repo    *memRepo
	service *accounts.Service
	router  http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sessions, _ := webtest.Sessions(t)
	csrf := shared.NewCSRFManager("csrf-secret")
	engine, err := view.NewEngine()
	require.NoError(t, err)

	repo := newMemRepo()
	service := newService(repo)
	handler := accounts.NewHandler(nil, service, view.NewPages(engine, csrf, nil), sessions, csrf)

	r := chi.NewRouter()
	r.Use(shared.SessionMiddleware(sessions, nil))
	r.Use(accounts.Authenticator(service, nil))
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		id, ok := shared.IdentityFromContext(r.Context())
		if !ok {
			_, _ = w.Write([]byte("anonymous"))
			return
		}
		_, _ = w.Write([]byte("user:" + id.Username))
	})
	r.With(shared.RequireIdentity(accounts.LoginPath)).Get("/private", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("private"))
	})
	r.Route("/accounts", handler.MountRoutes)
	return &fixture{repo: repo, service: service, router: r}
}

func (f *fixture) signedIn(t *testing.T, username, password string) *webtest.Browser {
	t.Helper()
	signup(t, f.service, username, password)
	b := webtest.NewBrowser(t, f.router)
	res := b.PostForm("/accounts/login", url.Values{"username": {username}, "password": {password}})
	require.Equal(t, http.StatusSeeOther, res.Code)
	require.Equal(t, "user:"+username, b.Get("/").Body.String())
	return b
}

func TestLoginPage(t *testing.T) {
	f := newFixture(t)
	b := webtest.NewBrowser(t, f.router)

	res := b.Get("/accounts/login?next=/private")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "text/html; charset=utf-8", res.Header().Get("Content-Type"))
	body := res.Body.String()
	assert.Contains(t, body, "<form")
	assert.Contains(t, body, `name="next" value="/private"`)
	assert.NotEmpty(t, b.CSRF)
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	signup(t, f.service, "alice", "s3cret-pass")
	b := webtest.NewBrowser(t, f.router)

	res := b.PostForm("/accounts/login", url.Values{"username": {"alice"}, "password": {"wrong-pass"}})
	require.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Please enter a correct username and password.")
	assert.Equal(t, "anonymous", b.Get("/").Body.String())
}

func TestLoginRenewsSessionAndFollowsNext(t *testing.T) {
	f := newFixture(t)
	signup(t, f.service, "alice", "s3cret-pass")
	b := webtest.NewBrowser(t, f.router)

	res := b.Get("/private")
	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/accounts/login?next=%2Fprivate", res.Header().Get("Location"))

	b.Get("/accounts/login")
	before := b.SessionID()
	require.NotEmpty(t, before)

	res = b.PostForm("/accounts/login", url.Values{
		"username": {"alice"}, "password": {"s3cret-pass"}, "next": {"/private"},
	})
	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/private", res.Header().Get("Location"))
	assert.NotEqual(t, before, b.SessionID())
	assert.Equal(t, "private", b.Get("/private").Body.String())
}

func TestLoginIgnoresOffsiteNext(t *testing.T) {
	f := newFixture(t)
	signup(t, f.service, "alice", "s3cret-pass")
	b := webtest.NewBrowser(t, f.router)

	res := b.PostForm("/accounts/login", url.Values{
		"username": {"alice"}, "password": {"s3cret-pass"}, "next": {"https://evil.example/"},
	})
	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/", res.Header().Get("Location"))
}

func TestAuthenticatedUserIsRedirectedFromLoginAndSignup(t *testing.T) {
	f := newFixture(t)
	b := f.signedIn(t, "alice", "s3cret-pass")

	for _, path := range []string{"/accounts/login", "/accounts/signup"} {
		res := b.Get(path)
		assert.Equal(t, http.StatusSeeOther, res.Code, path)
		assert.Equal(t, "/", res.Header().Get("Location"), path)
	}
}

func TestSignupLogsIn(t *testing.T) {
	f := newFixture(t)
	b := webtest.NewBrowser(t, f.router)

	res := b.PostForm("/accounts/signup", url.Values{
		"username": {"carol"}, "email": {"carol@example.com"},
		"password1": {"s3cret-pass"}, "password2": {"s3cret-pass"},
	})
	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "user:carol", b.Get("/").Body.String())
}

func TestSignupRerendersErrors(t *testing.T) {
	f := newFixture(t)
	b := webtest.NewBrowser(t, f.router)

	res := b.PostForm("/accounts/signup", url.Values{
		"username": {"carol"}, "password1": {"s3cret-pass"}, "password2": {"different"},
	})
	require.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "didn&#39;t match")
	assert.Contains(t, res.Body.String(), `value="carol"`)
	assert.Empty(t, f.repo.users)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	b := f.signedIn(t, "alice", "s3cret-pass")

	res := b.PostForm("/accounts/logout", nil)
	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "anonymous", b.Get("/").Body.String())
}

func TestLogoutRequiresLogin(t *testing.T) {
	f := newFixture(t)
	b := webtest.NewBrowser(t, f.router)

	res := b.PostForm("/accounts/logout", nil)
	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.True(t, strings.HasPrefix(res.Header().Get("Location"), accounts.LoginPath+"?next="))
}

func TestPasswordChangeKeepsCurrentSessionOnly(t *testing.T) {
	f := newFixture(t)
	current := f.signedIn(t, "alice", "s3cret-pass")

	second := webtest.NewBrowser(t, f.router)
	res := second.PostForm("/accounts/login", url.Values{"username": {"alice"}, "password": {"s3cret-pass"}})
	require.Equal(t, http.StatusSeeOther, res.Code)
	require.Equal(t, "user:alice", second.Get("/").Body.String())

	res = current.PostForm("/accounts/password", url.Values{
		"old_password": {"s3cret-pass"}, "new_password1": {"fresh-pass-1"}, "new_password2": {"fresh-pass-1"},
	})
	require.Equal(t, http.StatusSeeOther, res.Code)

	assert.Equal(t, "user:alice", current.Get("/").Body.String())
	assert.Equal(t, "anonymous", second.Get("/").Body.String())
}

func TestPasswordChangeRejectsWrongOldPassword(t *testing.T) {
	f := newFixture(t)
	b := f.signedIn(t, "alice", "s3cret-pass")

	res := b.PostForm("/accounts/password", url.Values{
		"old_password": {"nope"}, "new_password1": {"fresh-pass-1"}, "new_password2": {"fresh-pass-1"},
	})
	require.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "old password was entered incorrectly")
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	b := f.signedIn(t, "alice", "s3cret-pass")

	res := b.Get("/accounts/update")
	require.Equal(t, http.StatusOK, res.Code)

	res = b.PostForm("/accounts/update", url.Values{"first_name": {"Alice"}, "email": {"a@example.com"}})
	require.Equal(t, http.StatusSeeOther, res.Code)

	user, err := f.repo.ByUsername(t.Context(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.FirstName)
	assert.Equal(t, "a@example.com", user.Email)
}

func TestDeleteAccount(t *testing.T) {
	f := newFixture(t)
	b := f.signedIn(t, "alice", "s3cret-pass")

	res := b.Get("/accounts/delete")
	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Len(t, f.repo.users, 1)

	res = b.PostForm("/accounts/delete", nil)
	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Empty(t, f.repo.users)
	assert.Equal(t, "anonymous", b.Get("/").Body.String())
}
