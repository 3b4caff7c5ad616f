package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/ohya-backend/api/controllers"
	"github.com/angelmondragon/ohya-backend/api/routes"
	"github.com/angelmondragon/ohya-backend/internal/auth"
	"github.com/angelmondragon/ohya-backend/internal/cart"
	"github.com/angelmondragon/ohya-backend/internal/orders"
	product "github.com/angelmondragon/ohya-backend/internal/products"
	"github.com/angelmondragon/ohya-backend/internal/seed"
	"github.com/angelmondragon/ohya-backend/internal/uploads"
	"github.com/angelmondragon/ohya-backend/internal/users"
	"github.com/angelmondragon/ohya-backend/pkg/auth/session"
	"github.com/angelmondragon/ohya-backend/pkg/config"
	"github.com/angelmondragon/ohya-backend/pkg/db"
	"github.com/angelmondragon/ohya-backend/pkg/logger"
	"github.com/angelmondragon/ohya-backend/pkg/metrics"
	"github.com/angelmondragon/ohya-backend/pkg/migrate"
	"github.com/angelmondragon/ohya-backend/pkg/redis"
	"github.com/angelmondragon/ohya-backend/pkg/storage/gcs"
	"github.com/angelmondragon/ohya-backend/pkg/storage/local"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i].Close())
		}
	}()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	closers = append(closers, dbClient)

	if err := migrate.MaybeRunAuto(ctx, cfg, logg, dbClient); err != nil {
		return err
	}
	if cfg.FeatureFlags.AutoSeed {
		result, err := seed.Run(ctx, dbClient, *cfg, logg)
		if err != nil {
			return err
		}
		logg.Info(logg.WithFields(ctx, map[string]any{
			"admin_created":     result.AdminCreated,
			"products_inserted": result.ProductsInserted,
		}), "seed complete")
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	closers = append(closers, redisClient)

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return err
	}

	readiness := map[string]controllers.Pinger{
		"db":    dbClient,
		"redis": redisClient,
	}

	var backend uploads.Backend
	switch strings.ToLower(strings.TrimSpace(cfg.Uploads.Backend)) {
	case config.UploadsBackendGCS:
		gcsClient, err := gcs.NewClient(ctx, cfg.Uploads, logg)
		if err != nil {
			return err
		}
		closers = append(closers, gcsClient)
		readiness["gcs"] = gcsClient
		backend = gcsClient
	default:
		store, err := local.New(cfg.Uploads.BaseDir)
		if err != nil {
			return err
		}
		backend = store
	}

	files, err := uploads.NewService(backend, cfg.Uploads, logg)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       users.NewRepository(dbClient.DB()),
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		Logger:         logg,
	})
	if err != nil {
		return err
	}

	productRepo := product.NewRepository(dbClient.DB())
	productService, err := product.NewService(productRepo, files, logg)
	if err != nil {
		return err
	}

	cartService, err := cart.NewService(redisClient, productRepo, cfg.Redis.CartTTL, logg)
	if err != nil {
		return err
	}

	tolerance, err := cfg.Orders.Tolerance()
	if err != nil {
		return err
	}
	ordersService, err := orders.NewService(orders.NewRepository(dbClient.DB()), dbClient, files, cartService, orders.Options{
		NumberPrefix:      cfg.Orders.NumberPrefix,
		MaxNumberAttempts: cfg.Orders.MaxNumberAttempts,
		TotalTolerance:    tolerance,
		Metrics:           metrics.NewOrderMetrics(registry),
		Logger:            logg,
	})
	if err != nil {
		return err
	}

	handler := routes.NewRouter(cfg, logg, routes.Infra{
		Sessions:  sessionManager,
		Store:     redisClient,
		Readiness: readiness,
		Gatherer:  registry,
		Metrics:   metrics.NewHTTPMetrics(registry),
	}, routes.Services{
		Auth:     authService,
		Products: productService,
		Cart:     cartService,
		Orders:   ordersService,
		Proofs:   files,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	logCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(logCtx, "starting api server")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		logg.Info(logCtx, "shutting down api server")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
