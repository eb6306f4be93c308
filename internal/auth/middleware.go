package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/depot-pkg/depot/internal/platform/httpx"
	"github.com/depot-pkg/depot/internal/shared"
)

// Authenticator checks basic credentials. Store satisfies it.
type Authenticator interface {
	Authenticate(identity, password string) (bool, error)
}

// BasicAuth attaches the identity of valid basic credentials to the request
// context. Requests without credentials continue unauthenticated and resolve
// as the anonymous identity downstream; bad credentials are challenged.
func BasicAuth(authenticator Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, password, ok := r.BasicAuth()
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			valid, err := authenticator.Authenticate(identity, password)
			if err != nil {
				switch {
				case errors.Is(err, ErrUnknownIdentity):
					httpx.Challenge(w)
				case errors.Is(err, shared.ErrNotReady):
					httpx.RespondError(w, err)
				default:
					if logger != nil {
						logger.Error("basic auth", slog.String("identity", identity), slog.Any("error", err))
					}
					httpx.RespondError(w, err)
				}
				return
			}
			if !valid {
				if logger != nil {
					logger.Warn("basic auth rejected", slog.String("identity", identity))
				}
				httpx.Challenge(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), identity)))
		})
	}
}
