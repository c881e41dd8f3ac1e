package shared

import (
	"net/http"
	"net/url"
	"strings"
)

// Identity is the authenticated user attached to a request.
type Identity struct {
	UserID   int64
	Username string
}

// Owns reports whether the identity is the given author.
func (i Identity) Owns(authorID int64) bool {
	return i.UserID > 0 && i.UserID == authorID
}

// RequireIdentity redirects anonymous requests to loginPath with a next
// parameter pointing back at the original page.
func RequireIdentity(loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := IdentityFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}
			target := loginPath + "?next=" + url.QueryEscape(r.URL.RequestURI())
			http.Redirect(w, r, target, http.StatusSeeOther)
		})
	}
}

// SafeRedirect returns next when it is a local path, otherwise fallback.
func SafeRedirect(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	parsed, err := url.Parse(next)
	if err != nil || parsed.IsAbs() || parsed.Host != "" {
		return fallback
	}
	return next
}
