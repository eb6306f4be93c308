package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/depot-pkg/depot/internal/platform/httpx"
	"github.com/depot-pkg/depot/internal/rbac"
)

// Handler wires HTTP endpoints for identity administration.
type Handler struct {
	logger    *slog.Logger
	store     *Store
	graph     *rbac.Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, store *Store, graph *rbac.Service, authz rbac.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		store:     store,
		graph:     graph,
		rbac:      authz,
		validator: validator.New(),
	}
}

// MountRoutes registers identity routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireSuperUser()).Post("/identities", h.createIdentity)
}

type identityForm struct {
	Name     string `json:"name" validate:"required,max=128,excludesall=:/"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

func (h *Handler) createIdentity(w http.ResponseWriter, r *http.Request) {
	var form identityForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	form.Name = strings.TrimSpace(form.Name)
	errors := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		for _, fieldErr := range err.(validator.ValidationErrors) {
			errors[fieldErr.Field()] = fieldErr.Tag()
		}
		httpx.JSON(w, http.StatusBadRequest, map[string]any{"errors": errors})
		return
	}

	password := []byte(form.Password)
	defer Wipe(password)
	verifier, err := h.store.Hash(password)
	if err != nil {
		h.logger.Error("hash identity password", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	created, err := h.store.AddIdentity(form.Name, verifier)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.graph.AddUser(form.Name)

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.logger.Info("identity created", slog.String("identity", form.Name))
	}
	httpx.JSON(w, status, map[string]any{"identity": form.Name, "created": created})
}
