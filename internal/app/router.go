package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/depot-pkg/depot/internal/artifacts"
	"github.com/depot-pkg/depot/internal/auth"
	"github.com/depot-pkg/depot/internal/observability"
	"github.com/depot-pkg/depot/internal/platform/httpx"
	"github.com/depot-pkg/depot/internal/rbac"
)

// Upstream reports mirror state for the health endpoint.
type Upstream interface {
	Enabled() bool
	Alive() bool
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Authenticator      auth.Authenticator
	Graph              *rbac.Service
	Upstream           Upstream
	IdentityHandler    *auth.Handler
	PermissionsHandler *rbac.PermissionsHandler
	ArtifactHandler    *artifacts.Handler
	Metrics            *observability.Metrics
}

type healthView struct {
	Status   string `json:"status"`
	Ready    bool   `json:"ready"`
	Mirror   bool   `json:"mirror"`
	Upstream string `json:"upstream,omitempty"`
}

// NewRouter constructs the chi.Router with depot defaults. Administrative
// routes live under /-/ so they never collide with artifact coordinates.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:        params.Logger,
		Config:        params.Config,
		Authenticator: params.Authenticator,
		Metrics:       params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		view := healthView{Status: "ok"}
		if params.Graph != nil {
			view.Ready = params.Graph.Ready()
		}
		if params.Upstream != nil && params.Upstream.Enabled() {
			view.Mirror = true
			view.Upstream = "down"
			if params.Upstream.Alive() {
				view.Upstream = "up"
			}
		}
		status := http.StatusOK
		if !view.Ready {
			view.Status = "starting"
			status = http.StatusServiceUnavailable
		}
		httpx.JSON(w, status, view)
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/-", func(r chi.Router) {
		if params.PermissionsHandler != nil {
			params.PermissionsHandler.MountRoutes(r)
		}
		if params.IdentityHandler != nil {
			params.IdentityHandler.MountRoutes(r)
		}
	})

	if params.ArtifactHandler != nil {
		params.ArtifactHandler.MountRoutes(r)
	}

	return r
}
