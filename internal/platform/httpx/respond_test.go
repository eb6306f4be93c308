package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/depot-pkg/depot/internal/shared"
)

func TestRespondErrorStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("artifact: %w", shared.ErrNotFound), http.StatusNotFound},
		{shared.ErrConflict, http.StatusConflict},
		{fmt.Errorf("%w: bad path", ErrValidation), http.StatusBadRequest},
		{shared.ErrForbidden, http.StatusForbidden},
		{shared.ErrInvalidCredentials, http.StatusUnauthorized},
		{shared.ErrNotReady, http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
		require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

		var problem ProblemDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
		require.Equal(t, tc.status, problem.Status)
		if tc.status == http.StatusInternalServerError {
			require.Empty(t, problem.Detail)
		}
	}
}

func TestChallenge(t *testing.T) {
	rec := httptest.NewRecorder()
	Challenge(rec)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, `Basic realm="depot", charset="UTF-8"`, rec.Header().Get("WWW-Authenticate"))
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"acme"}`))
	require.NoError(t, DecodeJSON(req, &target))
	require.Equal(t, "acme", target.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"acme","owner":"x"}`))
	require.Error(t, DecodeJSON(req, &target))
}
