package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/depot-pkg/depot/internal/platform/httpx"
	"github.com/depot-pkg/depot/internal/shared"
)

// TargetFunc extracts the group and artifact a request acts on.
type TargetFunc func(r *http.Request) (group, artifact string, ok bool)

// QueryTarget reads the target from the group and artifact query parameters.
func QueryTarget(r *http.Request) (string, string, bool) {
	q := r.URL.Query()
	group := strings.Trim(strings.TrimSpace(q.Get("group")), "/")
	if group == "" {
		return "", "", false
	}
	return group, strings.TrimSpace(q.Get("artifact")), true
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireLevel ensures the current identity resolves to at least min on the request target.
func (m Middleware) RequireLevel(min Level, target TargetFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			group, artifact, ok := target(r)
			if !ok {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "group is required")
				return
			}
			identity := m.currentIdentity(r)
			level, err := m.Service.PermissionFor(identity, group, artifact)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("rbac require level", slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			if level.AtLeast(min) {
				next.ServeHTTP(w, r)
				return
			}
			m.deny(w, identity)
		})
	}
}

// RequireSuperUser admits only the built-in administrators.
func (m Middleware) RequireSuperUser() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := m.currentIdentity(r)
			if m.Service.IsSuperUser(identity) {
				next.ServeHTTP(w, r)
				return
			}
			m.deny(w, identity)
		})
	}
}

func (m Middleware) deny(w http.ResponseWriter, identity string) {
	if identity == m.Service.Anonymous() {
		httpx.Challenge(w)
		return
	}
	httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
}

func (m Middleware) currentIdentity(r *http.Request) string {
	identity := shared.IdentityFromContext(r.Context())
	if identity == "" {
		return m.Service.Anonymous()
	}
	return identity
}
