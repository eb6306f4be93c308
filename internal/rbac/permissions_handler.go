package rbac

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/depot-pkg/depot/internal/platform/httpx"
)

// PermissionsHandler exposes the administrative surface of the graph.
type PermissionsHandler struct {
	logger    *slog.Logger
	service   *Service
	rbac      Middleware
	validator *validator.Validate
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireLevel(Administrate, QueryTarget))
		r.Get("/permissions/{kind}/{name}", h.showPermission)
		r.Put("/permissions/{kind}/{name}", h.updateOverride)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireSuperUser())
		r.Post("/organizations", h.createOrganization)
		r.Post("/teams", h.createTeam)
		r.Post("/teams/{team}/members", h.addMember)
	})
}

type overrideForm struct {
	Kind     string `validate:"required,oneof=user team org"`
	Name     string `validate:"required"`
	Group    string `validate:"required"`
	Artifact string `validate:"omitempty,excludesall=/"`
	Level    string `validate:"required"`
}

func (h *PermissionsHandler) updateOverride(w http.ResponseWriter, r *http.Request) {
	group, artifact, _ := QueryTarget(r)
	form := overrideForm{
		Kind:     chi.URLParam(r, "kind"),
		Name:     chi.URLParam(r, "name"),
		Group:    group,
		Artifact: artifact,
		Level:    r.URL.Query().Get("level"),
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	level, err := ParseLevel(form.Level)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	kind := Kind(form.Kind)
	target := form.Group
	if form.Artifact != "" {
		err = h.service.SetArtifactOverride(kind, form.Name, form.Group, form.Artifact, level)
		target = form.Group + "/" + form.Artifact
	} else {
		err = h.service.SetGroupOverride(kind, form.Name, form.Group, level)
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("permission override updated",
		slog.String("kind", form.Kind),
		slog.String("name", form.Name),
		slog.String("target", target),
		slog.String("level", level.String()))
	httpx.Text(w, http.StatusOK, fmt.Sprintf("Permission for %s on %s updated to %s", form.Name, target, level))
}

type permissionView struct {
	Kind     Kind   `json:"kind"`
	Name     string `json:"name"`
	Group    string `json:"group"`
	Artifact string `json:"artifact,omitempty"`
	Level    Level  `json:"level"`
}

func (h *PermissionsHandler) showPermission(w http.ResponseWriter, r *http.Request) {
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	name := chi.URLParam(r, "name")
	group, artifact, _ := QueryTarget(r)
	level, err := h.service.Resolve(kind, name, group, artifact)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, permissionView{Kind: kind, Name: name, Group: group, Artifact: artifact, Level: level})
}

type organizationForm struct {
	Name string `json:"name" validate:"required,max=128"`
}

func (h *PermissionsHandler) createOrganization(w http.ResponseWriter, r *http.Request) {
	var form organizationForm
	if !h.decode(w, r, &form) {
		return
	}
	status := http.StatusOK
	if h.service.AddOrganization(strings.TrimSpace(form.Name)) {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, map[string]string{"organization": form.Name})
}

type teamForm struct {
	Name         string `json:"name" validate:"required,max=128"`
	Organization string `json:"organization" validate:"required"`
}

func (h *PermissionsHandler) createTeam(w http.ResponseWriter, r *http.Request) {
	var form teamForm
	if !h.decode(w, r, &form) {
		return
	}
	created, err := h.service.AddTeam(strings.TrimSpace(form.Name), form.Organization)
	if err != nil {
		if errors.Is(err, ErrOrganizationMismatch) {
			httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
			return
		}
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, map[string]string{"team": form.Name, "organization": form.Organization})
}

type memberForm struct {
	User string `json:"user" validate:"required"`
}

func (h *PermissionsHandler) addMember(w http.ResponseWriter, r *http.Request) {
	var form memberForm
	if !h.decode(w, r, &form) {
		return
	}
	team := chi.URLParam(r, "team")
	if err := h.service.AddMember(team, form.User); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"team": team, "user": form.User})
}

func (h *PermissionsHandler) decode(w http.ResponseWriter, r *http.Request, form any) bool {
	if err := httpx.DecodeJSON(r, form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return false
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}
