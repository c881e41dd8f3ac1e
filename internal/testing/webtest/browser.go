// Package webtest drives session-backed handlers the way a browser would:
// cookies persist between requests and forms are url-encoded.
package webtest

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/finboard/finboard/internal/shared"
)

const cookieName = "finboard_test"

var csrfInput = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

// Sessions starts a miniredis-backed session manager.
func Sessions(t *testing.T) (*shared.SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return shared.NewSessionManager(client, cookieName, "test-secret", time.Hour, false), mr
}

// Browser keeps a cookie jar in front of a handler.
type Browser struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
	// CSRF is the last token seen in a rendered form.
	CSRF string
}

// NewBrowser wraps handler.
func NewBrowser(t *testing.T, handler http.Handler) *Browser {
	return &Browser{t: t, handler: handler, cookies: make(map[string]*http.Cookie)}
}

// Get issues a GET request.
func (b *Browser) Get(path string) *httptest.ResponseRecorder {
	b.t.Helper()
	return b.Do(httptest.NewRequest(http.MethodGet, path, nil))
}

// PostForm submits form values. The last seen CSRF token is added unless the
// form already carries one.
func (b *Browser) PostForm(path string, form url.Values) *httptest.ResponseRecorder {
	b.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	if form.Get(shared.CSRFFormField) == "" && b.CSRF != "" {
		form.Set(shared.CSRFFormField, b.CSRF)
	}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.Do(req)
}

// Do sends req with the jar's cookies and stores any cookies set in reply.
func (b *Browser) Do(req *http.Request) *httptest.ResponseRecorder {
	b.t.Helper()
	for _, c := range b.cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	if m := csrfInput.FindStringSubmatch(rec.Body.String()); m != nil {
		b.CSRF = m[1]
	}
	return rec
}

// SessionID returns the session cookie value, or "" when there is none.
func (b *Browser) SessionID() string {
	if c, ok := b.cookies[cookieName]; ok {
		return c.Value
	}
	return ""
}
