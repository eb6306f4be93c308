package auth_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/depot-pkg/depot/internal/auth"
	"github.com/depot-pkg/depot/internal/rbac"
)

func newIdentityRouter(t *testing.T) (*auth.Store, *rbac.Service, http.Handler) {
	t.Helper()
	store := newStore(t)
	graph := rbac.NewService("anonymous")
	require.NoError(t, graph.Initialize(rbac.Snapshot{}, "admin"))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := chi.NewRouter()
	r.Use(auth.BasicAuth(store, logger))
	auth.NewHandler(logger, store, graph, rbac.Middleware{Service: graph, Logger: logger}).MountRoutes(r)
	return store, graph, r
}

func postIdentity(h http.Handler, user, password, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/identities", strings.NewReader(body))
	if user != "" {
		req.SetBasicAuth(user, password)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateIdentity(t *testing.T) {
	store, graph, h := newIdentityRouter(t)

	rec := postIdentity(h, "admin", "admin-secret", `{"name":"bob","password":"bob-password"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.True(t, store.Has("bob"))
	require.True(t, graph.Exists(rbac.KindUser, "bob"))

	ok, err := store.Authenticate("bob", "bob-password")
	require.NoError(t, err)
	require.True(t, ok)

	rec = postIdentity(h, "admin", "admin-secret", `{"name":"bob","password":"another-password"}`)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateIdentityRequiresSuperUser(t *testing.T) {
	_, _, h := newIdentityRouter(t)

	rec := postIdentity(h, "", "", `{"name":"bob","password":"bob-password"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postIdentity(h, "admin", "admin-secret", `{"name":"bob","password":"bob-password"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postIdentity(h, "bob", "bob-password", `{"name":"eve","password":"eve-password"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateIdentityValidation(t *testing.T) {
	_, _, h := newIdentityRouter(t)

	rec := postIdentity(h, "admin", "admin-secret", `{"name":"bob","password":"short"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "Password")

	rec = postIdentity(h, "admin", "admin-secret", `{"name":"a:b","password":"long-enough"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postIdentity(h, "admin", "admin-secret", `not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
