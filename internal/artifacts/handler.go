package artifacts

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/depot-pkg/depot/internal/catalog"
	"github.com/depot-pkg/depot/internal/platform/httpx"
	"github.com/depot-pkg/depot/internal/shared"
)

// PackageURLHeader carries the package URL of the served or stored file.
const PackageURLHeader = "X-Package-URL"

// Handler exposes artifact retrieval and upload.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	anonymous string
}

// NewHandler constructs Handler. Requests without an identity act as anonymous.
func NewHandler(logger *slog.Logger, service *Service, anonymous string) *Handler {
	return &Handler{logger: logger, service: service, anonymous: anonymous}
}

// MountRoutes registers the catch-all artifact routes. More specific routes
// registered on the same router take precedence.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/*", h.get)
	r.Head("/*", h.get)
	r.Put("/*", h.put)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	coord, ok := h.coordinate(w, r)
	if !ok {
		return
	}
	identity := h.identity(r)
	f, err := h.service.Get(r.Context(), identity, coord)
	if err != nil {
		h.fail(w, r, identity, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		h.fail(w, r, identity, err)
		return
	}
	w.Header().Set(PackageURLHeader, coord.PURL())
	http.ServeContent(w, r, coord.Filename(), info.ModTime(), f)
}

func (h *Handler) put(w http.ResponseWriter, r *http.Request) {
	coord, ok := h.coordinate(w, r)
	if !ok {
		return
	}
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "request body is required")
		return
	}
	identity := h.identity(r)
	if err := h.service.Put(r.Context(), identity, coord, r.Body); err != nil {
		h.fail(w, r, identity, err)
		return
	}
	w.Header().Set("Location", "/"+coord.Path())
	w.Header().Set(PackageURLHeader, coord.PURL())
	httpx.JSON(w, http.StatusCreated, map[string]string{
		"coordinate": coord.Path(),
		"purl":       coord.PURL(),
	})
}

func (h *Handler) coordinate(w http.ResponseWriter, r *http.Request) (catalog.Coordinate, bool) {
	coord, err := catalog.ParsePath(r.URL.Path)
	if err != nil {
		httpx.RespondError(w, err)
		return catalog.Coordinate{}, false
	}
	return coord, true
}

func (h *Handler) identity(r *http.Request) string {
	if identity := shared.IdentityFromContext(r.Context()); identity != "" {
		return identity
	}
	return h.anonymous
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, identity string, err error) {
	switch {
	case errors.Is(err, shared.ErrForbidden) && identity == h.anonymous:
		httpx.Challenge(w)
	case errors.Is(err, shared.ErrForbidden), errors.Is(err, shared.ErrNotFound),
		errors.Is(err, shared.ErrConflict), errors.Is(err, shared.ErrNotReady):
		httpx.RespondError(w, err)
	default:
		h.logger.Error("artifact request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
