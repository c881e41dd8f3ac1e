package view

import (
	"log/slog"
	"net/http"

	"github.com/finboard/finboard/internal/shared"
)

// Pages renders full pages for session-backed handlers. It pulls the CSRF
// token, pending flash and identity from the request.
type Pages struct {
	engine *Engine
	csrf   *shared.CSRFManager
	logger *slog.Logger
}

// NewPages constructs a Pages renderer.
func NewPages(engine *Engine, csrf *shared.CSRFManager, logger *slog.Logger) *Pages {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pages{engine: engine, csrf: csrf, logger: logger}
}

// Render writes the named page with status.
func (p *Pages) Render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	ctx := r.Context()
	sess := shared.SessionFromContext(ctx)
	td := TemplateData{
		Title:       title,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if sess != nil {
		td.CSRFToken, _ = p.csrf.EnsureToken(ctx, sess)
		td.Flash = sess.PopFlash()
	}
	if id, ok := shared.IdentityFromContext(ctx); ok {
		td.Identity = id
	}
	if err := p.engine.RenderStatus(w, status, name, td); err != nil {
		p.logger.Error("render page", slog.String("template", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// Redirect queues an optional flash and answers with 303 See Other.
func Redirect(w http.ResponseWriter, r *http.Request, target, kind, message string) {
	if message != "" {
		if sess := shared.SessionFromContext(r.Context()); sess != nil {
			sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
		}
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
