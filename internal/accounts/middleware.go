package accounts

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/finboard/finboard/internal/shared"
)

// Session keys written at login.
const (
	sessionAuthHashKey = "auth_hash"
)

// Authenticator resolves the session user and stores a shared.Identity in the
// request context. Sessions whose auth hash no longer matches the user's
// password are logged out.
func Authenticator(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			if sess == nil || sess.User() == "" {
				next.ServeHTTP(w, r)
				return
			}
			userID, err := strconv.ParseInt(sess.User(), 10, 64)
			if err != nil {
				forget(sess)
				next.ServeHTTP(w, r)
				return
			}
			user, err := service.User(r.Context(), userID)
			switch {
			case errors.Is(err, ErrNotFound):
				forget(sess)
			case err != nil:
				logger.Error("resolve session user", slog.Int64("user_id", userID), slog.Any("error", err))
			case !service.VerifyAuthHash(user, sess.Get(sessionAuthHashKey)):
				forget(sess)
			default:
				ctx := shared.ContextWithIdentity(r.Context(), shared.Identity{UserID: user.ID, Username: user.Username})
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func forget(sess *shared.Session) {
	sess.ClearUser()
	sess.Delete(sessionAuthHashKey)
}
