package accounts

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/finboard/finboard/internal/shared"
	"github.com/finboard/finboard/internal/view"
)

// LoginPath is where anonymous users are sent by shared.RequireIdentity.
const LoginPath = "/accounts/login"

// Handler wires HTTP endpoints for account flows.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	pages    *view.Pages
	sessions *shared.SessionManager
	csrf     *shared.CSRFManager
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, pages *view.Pages, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, pages: pages, sessions: sessions, csrf: csrf}
}

// MountRoutes registers account routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(anonymousOnly)
		r.Get("/signup", h.showSignup)
		r.Post("/signup", h.handleSignup)
		r.Get("/login", h.showLogin)
		r.Post("/login", h.handleLogin)
	})
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireIdentity(LoginPath))
		r.Post("/logout", h.handleLogout)
		r.Get("/update", h.showUpdate)
		r.Post("/update", h.handleUpdate)
		r.Get("/password", h.showPassword)
		r.Post("/password", h.handlePassword)
		r.Get("/delete", redirectHome)
		r.Post("/delete", h.handleDelete)
	})
}

func anonymousOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := shared.IdentityFromContext(r.Context()); ok {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type signupPageData struct {
	Form   SignupInput
	Errors map[string]string
}

type loginPageData struct {
	Username string
	Next     string
	Errors   map[string]string
}

type profilePageData struct {
	Form   ProfileInput
	Errors map[string]string
}

type passwordPageData struct {
	Errors map[string]string
}

// login attaches user to the session under a fresh id.
func (h *Handler) login(r *http.Request, user User) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		return
	}
	h.sessions.Renew(sess)
	sess.SetUser(strconv.FormatInt(user.ID, 10))
	sess.Set(sessionAuthHashKey, h.service.AuthHash(user))
	h.csrf.Rotate(sess)
}

func (h *Handler) showSignup(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, http.StatusOK, "pages/signup.html", "Sign up", signupPageData{})
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := SignupInput{
		Username:  r.PostFormValue("username"),
		Email:     r.PostFormValue("email"),
		Password1: r.PostFormValue("password1"),
		Password2: r.PostFormValue("password2"),
	}
	user, err := h.service.Signup(r.Context(), form)
	if err != nil {
		var verr *ValidationError
		if !errors.As(err, &verr) {
			h.logger.Error("signup", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		form.Password1, form.Password2 = "", ""
		h.pages.Render(w, r, http.StatusBadRequest, "pages/signup.html", "Sign up", signupPageData{Form: form, Errors: verr.Fields})
		return
	}
	h.login(r, user)
	h.logger.Info("user signed up", slog.Int64("user_id", user.ID))
	view.Redirect(w, r, "/", "success", "Welcome, "+user.Username+".")
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	data := loginPageData{Next: shared.SafeRedirect(r.URL.Query().Get("next"), "")}
	h.pages.Render(w, r, http.StatusOK, "pages/login.html", "Log in", data)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	data := loginPageData{
		Username: r.PostFormValue("username"),
		Next:     shared.SafeRedirect(r.PostFormValue("next"), ""),
		Errors:   make(map[string]string),
	}
	password := r.PostFormValue("password")
	if data.Username == "" {
		data.Errors["username"] = "This field is required."
	}
	if password == "" {
		data.Errors["password"] = "This field is required."
	}
	if len(data.Errors) == 0 {
		user, err := h.service.Authenticate(r.Context(), data.Username, password)
		switch {
		case err == nil:
			h.login(r, user)
			view.Redirect(w, r, shared.SafeRedirect(data.Next, "/"), "success", "Welcome back, "+user.Username+".")
			return
		case errors.Is(err, shared.ErrInvalidCredentials):
			data.Errors["general"] = "Please enter a correct username and password."
		default:
			h.logger.Error("authenticate", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
	}
	h.pages.Render(w, r, http.StatusBadRequest, "pages/login.html", "Log in", data)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.sessions.Renew(sess)
		forget(sess)
		h.csrf.Rotate(sess)
	}
	view.Redirect(w, r, "/", "info", "You have been logged out.")
}

func (h *Handler) showUpdate(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	user, err := h.service.User(r.Context(), id.UserID)
	if err != nil {
		h.logger.Error("load profile", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	form := ProfileInput{FirstName: user.FirstName, LastName: user.LastName, Email: user.Email}
	h.pages.Render(w, r, http.StatusOK, "pages/account_update.html", "Profile", profilePageData{Form: form})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	id, _ := shared.IdentityFromContext(r.Context())
	form := ProfileInput{
		FirstName: r.PostFormValue("first_name"),
		LastName:  r.PostFormValue("last_name"),
		Email:     r.PostFormValue("email"),
	}
	if _, err := h.service.UpdateProfile(r.Context(), id.UserID, form); err != nil {
		var verr *ValidationError
		if !errors.As(err, &verr) {
			h.logger.Error("update profile", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		h.pages.Render(w, r, http.StatusBadRequest, "pages/account_update.html", "Profile", profilePageData{Form: form, Errors: verr.Fields})
		return
	}
	view.Redirect(w, r, "/", "success", "Your profile has been updated.")
}

func (h *Handler) showPassword(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, http.StatusOK, "pages/password_change.html", "Change password", passwordPageData{})
}

func (h *Handler) handlePassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	id, _ := shared.IdentityFromContext(r.Context())
	form := PasswordInput{
		OldPassword:  r.PostFormValue("old_password"),
		NewPassword1: r.PostFormValue("new_password1"),
		NewPassword2: r.PostFormValue("new_password2"),
	}
	user, err := h.service.ChangePassword(r.Context(), id.UserID, form)
	if err != nil {
		var verr *ValidationError
		if !errors.As(err, &verr) {
			h.logger.Error("change password", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		h.pages.Render(w, r, http.StatusBadRequest, "pages/password_change.html", "Change password", passwordPageData{Errors: verr.Fields})
		return
	}
	// Keep this session valid; every other session fails the hash check.
	h.login(r, user)
	view.Redirect(w, r, "/", "success", "Your password has been changed.")
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	if err := h.service.Delete(r.Context(), id.UserID); err != nil && !errors.Is(err, ErrNotFound) {
		h.logger.Error("delete account", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.sessions.Renew(sess)
		forget(sess)
		h.csrf.Rotate(sess)
	}
	h.logger.Info("account deleted", slog.Int64("user_id", id.UserID))
	view.Redirect(w, r, "/", "info", "Your account has been deleted.")
}
