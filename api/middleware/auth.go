package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/angelmondragon/ohya-backend/api/responses"
	pkgAuth "github.com/angelmondragon/ohya-backend/pkg/auth"
	"github.com/angelmondragon/ohya-backend/pkg/auth/session"
	"github.com/angelmondragon/ohya-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/ohya-backend/pkg/errors"
	"github.com/angelmondragon/ohya-backend/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the actor.
// Requests without credentials are rejected.
func Auth(cfg config.JWTConfig, verifier session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return authenticate(cfg, verifier, logg, true)
}

// OptionalAuth behaves like Auth but lets requests without an Authorization
// header through as anonymous. A header that is present must still be valid.
func OptionalAuth(cfg config.JWTConfig, verifier session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return authenticate(cfg, verifier, logg, false)
}

func authenticate(cfg config.JWTConfig, verifier session.AccessSessionChecker, logg *logger.Logger, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				if required {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
					return
				}
				next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), pkgAuth.Anonymous())))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			if claims.ID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id"))
				return
			}

			if verifier != nil {
				ok, err := verifier.HasSession(r.Context(), claims.ID)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session"))
					return
				}
				if !ok {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "session unavailable"))
					return
				}
			}

			actor := claims.Actor()
			if !actor.IsAuthenticated() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid token"))
				return
			}

			ctx := WithActor(r.Context(), actor)
			ctx = withAccessID(ctx, claims.ID)
			if logg != nil {
				ctx = logg.WithUserID(ctx, strconv.FormatInt(actor.UserID, 10))
				ctx = logg.WithActorRole(ctx, string(actor.Role))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
