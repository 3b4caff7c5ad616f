package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/ohya-backend/api/controllers"
	authcontrollers "github.com/angelmondragon/ohya-backend/api/controllers/auth"
	cartcontrollers "github.com/angelmondragon/ohya-backend/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/ohya-backend/api/controllers/orders"
	"github.com/angelmondragon/ohya-backend/api/middleware"
	"github.com/angelmondragon/ohya-backend/internal/auth"
	"github.com/angelmondragon/ohya-backend/internal/orders"
	product "github.com/angelmondragon/ohya-backend/internal/products"
	"github.com/angelmondragon/ohya-backend/pkg/auth/session"
	"github.com/angelmondragon/ohya-backend/pkg/config"
	"github.com/angelmondragon/ohya-backend/pkg/enums"
	"github.com/angelmondragon/ohya-backend/pkg/logger"
	"github.com/angelmondragon/ohya-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/ohya-backend/pkg/redis"
)

const megabyte = 1 << 20

// Store backs idempotency replay and auth throttling.
type Store interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// Services groups the domain services exposed over HTTP.
type Services struct {
	Auth     auth.Service
	Products product.Service
	Cart     cartcontrollers.Service
	Orders   orders.Service
	Proofs   ordercontrollers.ProofOpener
}

// Infra carries the shared dependencies of the middleware stack.
type Infra struct {
	Sessions  session.AccessSessionChecker
	Store     Store
	Readiness map[string]controllers.Pinger
	Gatherer  prometheus.Gatherer
	Metrics   *metrics.HTTPMetrics
}

func NewRouter(cfg *config.Config, logg *logger.Logger, infra Infra, svc Services) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, infra.Metrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	// keep an untyped nil so the middlewares skip redis-backed work
	var idemStore pkgredis.IdempotencyStore
	if infra.Store != nil {
		idemStore = infra.Store
	}
	maxProofBytes := int64(cfg.Uploads.MaxProofMB) * megabyte
	idem := middleware.Idempotency(idemStore, logg,
		middleware.WithBodyLimit(http.MethodPost, "/api/v1/orders", ordercontrollers.MaxRequestBytes(maxProofBytes)),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)
	limit := func(policy middleware.AuthRateLimitPolicy) func(http.Handler) http.Handler {
		if infra.Store == nil {
			return middleware.AuthRateLimit(policy, nil, logg)
		}
		return middleware.AuthRateLimit(policy, infra.Store, logg)
	}

	requireAuth := middleware.Auth(cfg.JWT, infra.Sessions, logg)
	optionalAuth := middleware.OptionalAuth(cfg.JWT, infra.Sessions, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, infra.Readiness))
	})
	if infra.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(infra.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(limit(registerPolicy), idem).Post("/register", authcontrollers.Register(svc.Auth, logg))
			r.With(limit(loginPolicy)).Post("/login", authcontrollers.Login(svc.Auth, logg))
			r.Post("/refresh", authcontrollers.Refresh(svc.Auth, logg))
			r.Post("/logout", authcontrollers.Logout(svc.Auth, cfg.JWT, logg))
			r.With(requireAuth).Get("/me", authcontrollers.Me(svc.Auth, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(optionalAuth)
			r.Get("/products", controllers.ProductList(svc.Products, false, logg))
			r.Get("/products/{productId}", controllers.ProductDetail(svc.Products, logg))
			r.Get("/categories", controllers.ProductCategories(svc.Products, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth, idem)
			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartcontrollers.CartFetch(svc.Cart, logg))
				r.Put("/", cartcontrollers.CartReplace(svc.Cart, logg))
				r.Delete("/", cartcontrollers.CartClear(svc.Cart, logg))
			})
			r.Route("/orders", func(r chi.Router) {
				r.Post("/", ordercontrollers.Create(svc.Orders, maxProofBytes, logg))
				r.Get("/", ordercontrollers.List(svc.Orders, logg))
				r.Get("/{orderId}", ordercontrollers.Detail(svc.Orders, logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(requireAuth, middleware.RequireRole(enums.RoleAdmin, logg), idem)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ProductList(svc.Products, true, logg))
			r.Post("/", controllers.AdminCreateProduct(svc.Products, logg))
			r.Get("/{productId}", controllers.ProductDetail(svc.Products, logg))
			r.Patch("/{productId}", controllers.AdminUpdateProduct(svc.Products, logg))
			r.Delete("/{productId}", controllers.AdminDeactivateProduct(svc.Products, logg))
			r.Post("/{productId}/image", controllers.AdminProductImage(svc.Products, int64(cfg.Uploads.MaxImageMB)*megabyte, logg))
			r.Post("/{productId}/variants", controllers.AdminCreateVariant(svc.Products, logg))
			r.Delete("/{productId}/variants/{variantId}", controllers.AdminDeactivateVariant(svc.Products, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(svc.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(svc.Orders, logg))
			r.Put("/{orderId}/status", ordercontrollers.UpdateStatus(svc.Orders, logg))
			r.Delete("/{orderId}", ordercontrollers.Delete(svc.Orders, logg))
			r.Get("/{orderId}/proof", ordercontrollers.Proof(svc.Orders, svc.Proofs, logg))
		})
	})

	return r
}
