package cart

import (
	"context"
	"net/http"

	"github.com/angelmondragon/ohya-backend/api/middleware"
	"github.com/angelmondragon/ohya-backend/api/responses"
	"github.com/angelmondragon/ohya-backend/api/validators"
	cartsvc "github.com/angelmondragon/ohya-backend/internal/cart"
	"github.com/angelmondragon/ohya-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/ohya-backend/pkg/errors"
	"github.com/angelmondragon/ohya-backend/pkg/logger"
)

// Service is the cart surface the handlers need.
type Service interface {
	Get(ctx context.Context, actor auth.Actor) (*cartsvc.Cart, error)
	Replace(ctx context.Context, actor auth.Actor, lines []cartsvc.Line) (*cartsvc.Cart, error)
	Clear(ctx context.Context, userID int64) error
}

// CartFetch returns the caller's priced cart.
func CartFetch(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		cart, err := svc.Get(r.Context(), middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cart)
	}
}

// CartReplace overwrites the caller's cart with the submitted lines.
func CartReplace(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		var payload replaceCartRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cart, err := svc.Replace(r.Context(), middleware.ActorFromContext(r.Context()), payload.lines())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cart)
	}
}

// CartClear empties the caller's cart.
func CartClear(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		actor := middleware.ActorFromContext(r.Context())
		if !actor.IsAuthenticated() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}
		if err := svc.Clear(r.Context(), actor.UserID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "cleared"})
	}
}
