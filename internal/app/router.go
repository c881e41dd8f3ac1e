package app

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/finboard/finboard/internal/accounts"
	"github.com/finboard/finboard/internal/finlife"
	"github.com/finboard/finboard/internal/forum"
	"github.com/finboard/finboard/internal/observability"
	"github.com/finboard/finboard/internal/platform/httpx"
	"github.com/finboard/finboard/internal/shared"
	"github.com/finboard/finboard/jobs"
	"github.com/finboard/finboard/web"
)

// ReadinessCheck reports whether one backing service is reachable.
type ReadinessCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	SessionManager  *shared.SessionManager
	CSRFManager     *shared.CSRFManager
	Metrics         *observability.Metrics
	AccountsService *accounts.Service
	AccountsHandler *accounts.Handler
	ForumHandler    *forum.Handler
	FinlifeHandler  *finlife.Handler
	JobHandler      *jobs.Handler
	Readiness       map[string]ReadinessCheck
}

// NewRouter constructs the chi.Router with finboard defaults.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
		Accounts:       params.AccountsService,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(params.Readiness, params.Logger))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.FinlifeHandler != nil {
		r.Route("/finlife", params.FinlifeHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.AccountsHandler != nil {
		r.Route("/accounts", params.AccountsHandler.MountRoutes)
	}
	if params.ForumHandler != nil {
		params.ForumHandler.MountRoutes(r)
		r.NotFound(params.ForumHandler.NotFound)
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

func readiness(checks map[string]ReadinessCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		names := make([]string, 0, len(checks))
		for name := range checks {
			names = append(names, name)
		}
		failures := make([]error, len(names))

		g, gctx := errgroup.WithContext(ctx)
		for i, name := range names {
			check := checks[name]
			g.Go(func() error {
				failures[i] = check(gctx)
				return nil
			})
		}
		_ = g.Wait()

		status := http.StatusOK
		results := make(map[string]string, len(names))
		for i, name := range names {
			if failures[i] != nil {
				status = http.StatusServiceUnavailable
				results[name] = "down"
				logger.Warn("readiness check failed", slog.String("check", name), slog.Any("error", failures[i]))
				continue
			}
			results[name] = "up"
		}
		httpx.JSON(w, status, map[string]any{"ready": status == http.StatusOK, "checks": results})
	}
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
