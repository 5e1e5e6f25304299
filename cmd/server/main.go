package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sifan077/PowerShare/config"
	"github.com/sifan077/PowerShare/internal/app/cache"
	"github.com/sifan077/PowerShare/internal/app/catalog"
	"github.com/sifan077/PowerShare/internal/app/content"
	"github.com/sifan077/PowerShare/internal/app/hooks"
	"github.com/sifan077/PowerShare/internal/app/identity"
	appmodel "github.com/sifan077/PowerShare/internal/app/model"
	apprepository "github.com/sifan077/PowerShare/internal/app/repository"
	appserver "github.com/sifan077/PowerShare/internal/app/server"
	"github.com/sifan077/PowerShare/internal/app/service"
	"github.com/sifan077/PowerShare/internal/app/settings"
	"github.com/sifan077/PowerShare/internal/app/sharelink"
	httpUtil "github.com/sifan077/PowerShare/internal/http/util"
	"github.com/sifan077/PowerShare/internal/infra/logger"
	infraNATS "github.com/sifan077/PowerShare/internal/infra/nats"
	infraPostgres "github.com/sifan077/PowerShare/internal/infra/postgres"
	infraPrometheus "github.com/sifan077/PowerShare/internal/infra/prometheus"
	infraRedis "github.com/sifan077/PowerShare/internal/infra/redis"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.MustInit(logger.ConfigFromEnv("powershare"))
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}
	if cfg.App.Secret == "" {
		log.Fatal("app.secret (APP_SECRET) must be set to sign share tokens")
	}

	log.Info("Configuration loaded successfully",
		zap.String("addr", cfg.App.Addr),
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.Int("postgres_port", cfg.Postgres.Port),
		zap.String("postgres_db", cfg.Postgres.Database),
		zap.String("redis_host", cfg.Redis.Host),
		zap.Bool("redis_disabled", cfg.Redis.Disabled),
		zap.String("nats_host", cfg.NATS.Host),
		zap.Bool("nats_disabled", cfg.NATS.Disabled),
		zap.Int("share_rate_limit", cfg.Share.RateLimitPerHour),
		zap.Int("retention_days", cfg.Tracking.RetentionDays),
	)

	gormDB, err := infraPostgres.NewGorm(cfg.Postgres, log)
	if err != nil {
		log.Fatal("Failed to open GORM connection", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()

	if err := infraPostgres.AutoMigrate(ctx, gormDB,
		&appmodel.Item{},
		&appmodel.ShareEvent{},
		&appmodel.VisitLog{},
		&appmodel.SettingsRecord{},
	); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}

	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()
	log.Info("Connected to Postgres successfully")

	var store cache.Store
	if cfg.Redis.Disabled {
		log.Warn("Redis disabled, using in-process cache")
		store = cache.NewMemory()
	} else {
		redisClient, err := infraRedis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		store = infraRedis.NewCache(redisClient, "powershare")
		log.Info("Connected to Redis successfully")
	}

	bus := hooks.NewRegistry(logger.Named("hooks"))

	if !cfg.NATS.Disabled {
		natsConn, js, err := infraNATS.Connect(cfg.NATS, logger.Named("nats"))
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer natsConn.Drain()

		if err := infraNATS.EnsureHookStream(js); err != nil {
			log.Fatal("Failed to prepare hook stream", zap.Error(err))
		}
		forwarder := infraNATS.NewHookForwarder(js, logger.Named("hooks.nats"))
		forwarder.Attach(bus)
		defer forwarder.Close()
		log.Info("Connected to NATS successfully", zap.String("stream", infraNATS.HookStreamName))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := infraPrometheus.NewMetrics(registry)

	promServer := infraPrometheus.NewServer(cfg.Prometheus, registry)
	go func() {
		log.Info("Starting Prometheus metrics server", zap.Int("port", cfg.Prometheus.Port))
		if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
		}
	}()
	defer func() {
		if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("Failed to close Prometheus server", zap.Error(err))
		}
	}()

	itemRepo := apprepository.NewItemRepository(gormDB, cfg.Tracking.ItemFilterSize, cfg.Tracking.ItemFilterFPRate).
		WithMissCache(store, cfg.Tracking.ItemMissTTL)
	if err := itemRepo.WarmFilter(ctx); err != nil {
		// Without a warm filter every lookup goes to the database.
		log.Warn("Failed to warm item filter", zap.Error(err))
	}

	cat := catalog.New()
	policy := settings.NewPolicy(content.NewStaticCategories(cfg.Content.Categories), bus)
	settingsStore := settings.NewStore(apprepository.NewSettingsRepository(gormDB), cat, policy, logger.Named("settings"))

	tracker := service.NewTracker(service.TrackerDeps{
		Logger:      logger.Named("tracker"),
		Events:      apprepository.NewShareEventRepository(gormDB),
		Reports:     apprepository.NewShareReportRepository(pool),
		Visits:      apprepository.NewVisitLogRepository(gormDB),
		Items:       itemRepo,
		Cache:       store,
		Bus:         bus,
		Metrics:     metrics,
		StatsTTL:    cfg.Tracking.StatsTTL,
		AnonymizeIP: cfg.Tracking.AnonymizeIP,
	})

	controller := service.NewController(service.ControllerDeps{
		Logger:   logger.Named("controller"),
		Settings: settingsStore,
		Catalog:  cat,
		Links: sharelink.NewBuilder(sharelink.Options{
			Items:    itemRepo,
			Catalog:  cat,
			Bus:      bus,
			SiteName: cfg.App.SiteName,
			Logger:   logger.Named("sharelink"),
		}),
		Tracker:        tracker,
		Items:          itemRepo,
		Limiter:        service.NewShareLimiter(store, bus, cfg.Share.RateLimitPerHour, logger.Named("limiter")),
		Tokens:         httpUtil.NewTokenSigner([]byte(cfg.App.Secret), cfg.Share.TokenTTL),
		Bus:            bus,
		Metrics:        metrics,
		AllowAnonymous: cfg.Share.AllowAnonymous,
	})

	if cfg.Tracking.RetentionDays > 0 {
		pruner := service.NewRetentionPruner(logger.Named("retention"), tracker, cfg.Tracking.RetentionDays, cfg.Tracking.PruneInterval)
		pruner.Start()
		defer pruner.Stop()
	}

	var provider identity.Provider = identity.AnonymousOnly{}
	if cfg.App.TrustIdentityHeaders {
		provider = identity.Headers{}
	}

	server := appserver.New(appserver.Dependencies{
		Logger:         log,
		Controller:     controller,
		Stats:          tracker,
		Settings:       settingsStore,
		Items:          itemRepo,
		Catalog:        cat,
		Identity:       provider,
		RateLimitStore: store,
		APIRateLimit:   cfg.App.APIRateLimit,
		AllowOrigin:    cfg.App.AllowOrigin,
		SiteName:       cfg.App.SiteName,
	})

	go func() {
		<-ctx.Done()
		log.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("Graceful shutdown failed", zap.Error(err))
		}
	}()

	log.Info("Starting HTTP server", zap.String("addr", cfg.App.Addr))
	if err := server.Listen(cfg.App.Addr); err != nil {
		log.Error("Fiber server exited", zap.Error(err))
	}
}
