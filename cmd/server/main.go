package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/libraryops/patron-blocks/internal/blocks"
	"github.com/libraryops/patron-blocks/internal/config"
	"github.com/libraryops/patron-blocks/internal/db"
	"github.com/libraryops/patron-blocks/internal/db/repository"
	"github.com/libraryops/patron-blocks/internal/handler"
	"github.com/libraryops/patron-blocks/internal/i18n"
	"github.com/libraryops/patron-blocks/internal/middleware"
	"github.com/libraryops/patron-blocks/internal/okapi"
	"github.com/libraryops/patron-blocks/internal/panel"
	"github.com/libraryops/patron-blocks/internal/service"
	"github.com/libraryops/patron-blocks/internal/validation"
	"github.com/libraryops/patron-blocks/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Options{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Service: "patron-blocks-api",
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, &db.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Name,
		SSLMode:         "disable",
		MaxConns:        int32(cfg.Database.MaxConnections),
		MinConns:        int32(cfg.Database.MinConnections),
		MaxConnLifetime: cfg.Database.MaxLifetime,
		MaxConnIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close(pool)

	okapiClient, err := okapi.NewClient(okapi.Config{
		BaseURL:   cfg.Okapi.BaseURL,
		Tenant:    cfg.Okapi.Tenant,
		Token:     cfg.Okapi.Token,
		Timeout:   cfg.Okapi.Timeout,
		Resources: okapi.Resources{Automated: cfg.Okapi.AutomatedPath},
	})
	if err != nil {
		logger.Log.Fatal("Invalid Okapi configuration", zap.Error(err))
	}

	var (
		automated service.AutomatedSource = okapiClient
		active    service.ActiveRecords
	)
	redisClient, err := service.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Log.Warn("Redis unavailable, automated blocks will not be cached", zap.Error(err))
	} else {
		defer redisClient.Close()
		automated = service.NewAutomatedBlockCache(redisClient, okapiClient, cfg.Redis.AutomatedTTL)
		active = service.NewActiveRecordStore(redisClient, cfg.Redis.ActiveRecordTTL)
	}

	var notifier blocks.Notifier
	publisher, err := service.NewMessagePublisher(&cfg.RabbitMQ)
	if err != nil {
		logger.Log.Warn("RabbitMQ unavailable, expired blocks will not be announced", zap.Error(err))
	} else {
		defer publisher.Close()
		notifier = service.NewExpiryNotifier(publisher)
	}

	records := service.NewRecordStore(
		repository.NewManualBlockRepository(pool),
		automated,
		active,
		validation.New(nil),
	)

	var panelStore panel.Store = records
	if cfg.Okapi.RemoteRecords {
		panelStore = okapiClient
		logger.Log.Info("Panels read manual blocks from Okapi", zap.String("baseUrl", cfg.Okapi.BaseURL))
	}

	catalog := i18n.NewCatalog(language.Make(cfg.I18n.DefaultLanguage))
	if cfg.I18n.Dir != "" {
		if err := catalog.LoadDir(cfg.I18n.Dir); err != nil {
			logger.Log.Fatal("Failed to load translations", zap.Error(err), zap.String("dir", cfg.I18n.Dir))
		}
	}

	registry := panel.NewRegistry(cfg.Panel.IdleTTL)
	go registry.Run(ctx, cfg.Panel.SweepInterval)

	if cfg.Auth.JWTSecret == "" {
		logger.Log.Warn("No JWT secret configured - panel endpoints will reject all requests")
	}
	if len(cfg.Auth.APIKeys) == 0 {
		logger.Log.Warn("No API keys configured - record store endpoints will reject all requests")
	}

	router := newRouter(routerDeps{
		records:  records,
		panels:   handler.NewPanelHandler(registry, panelStore, cfg.Panel.Panel(), notifier, catalog, cfg.I18n.DefaultLanguage),
		health:   handler.NewHealthHandler(healthChecks(pool, redisClient, publisher)...),
		catalog:  catalog,
		apiKeys:  cfg.Auth.APIKeys,
		verifier: middleware.NewTokenVerifier(cfg.Auth.JWTSecret),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Panel.ExpiryTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Log.Info("Server starting", zap.Int("port", cfg.Server.Port))
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Server error", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Log.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("Graceful shutdown failed", zap.Error(err))
			_ = server.Close()
		}

		logger.Log.Info("Server stopped gracefully")
	}
}

//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type routerDeps struct {
	records  handler.RecordService
	panels   *handler.PanelHandler
	health   *handler.HealthHandler
	catalog  *i18n.Catalog
	apiKeys  []string
	verifier *middleware.TokenVerifier
}

func newRouter(deps routerDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(), middleware.Metrics())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health/live", deps.health.LivenessProbe)
	router.GET("/health/ready", deps.health.ReadinessProbe)

	records := router.Group("")
	records.Use(middleware.NewAPIKeyAuth(deps.apiKeys).Middleware())
	handler.NewRecordHandler(deps.records).Register(records)

	api := router.Group("/api/v1")
	api.Use(middleware.Locale(deps.catalog), middleware.CapabilityAuth(deps.verifier))
	deps.panels.Register(api)

	return router
}

func healthChecks(pool *pgxpool.Pool, redisClient *redis.Client, publisher *service.MessagePublisher) []handler.HealthCheck {
	checks := []handler.HealthCheck{{Name: "database", Check: pool.Ping}}
	if redisClient != nil {
		checks = append(checks, handler.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	if publisher != nil {
		checks = append(checks, handler.HealthCheck{
			Name: "rabbitmq",
			Check: func(context.Context) error {
				if !publisher.IsHealthy() {
					return service.ErrPublisherClosed
				}
				return nil
			},
		})
	}
	return checks
}
