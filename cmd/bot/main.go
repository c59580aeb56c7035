package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatwarden/internal/core/ports"
	"chatwarden/internal/core/services"
	chathandlers "chatwarden/internal/handlers/chat"
	httphandlers "chatwarden/internal/handlers/http"
	"chatwarden/internal/infrastructure/middleware"
	"chatwarden/internal/infrastructure/modtools"
	"chatwarden/internal/infrastructure/monitoring"
	memoryrepo "chatwarden/internal/infrastructure/repositories/memory"
	redisrepo "chatwarden/internal/infrastructure/repositories/redis"
	"chatwarden/internal/infrastructure/twitch"
	"chatwarden/pkg/backup"
	"chatwarden/pkg/config"
	"chatwarden/pkg/distributed"
	"chatwarden/pkg/logger"
	"chatwarden/pkg/tracing"
	"chatwarden/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
)

const version = "1.0.0"

// stateStore is the full persistence surface the bot needs from one backend.
type stateStore interface {
	ports.PolicyRepository
	ports.CooldownRepository
	ports.HistoryRepository
	ports.BanCacheRepository
}

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/chatwarden/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		os.Stderr.WriteString("failed to build logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	log.Infow("starting chatwarden",
		"version", version,
		"channels", cfg.Chat.Channels,
		"token", utils.MaskSensitive(cfg.Chat.OAuthToken, 6),
	)

	// Tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Monitoring.TracingEnabled,
		ServiceName: "chatwarden",
		JaegerURL:   cfg.Monitoring.JaegerEndpoint,
		Environment: "production",
		SampleRate:  1.0,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Persistence backend
	var store stateStore
	var memStore *memoryrepo.Store
	var redisClient *goredis.Client
	var backupService *backup.BackupService

	if cfg.Redis.Enabled {
		redisClient, err = redisrepo.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, log)
		if err != nil {
			log.Fatalw("failed to connect to redis", "error", err)
		}
		store = redisrepo.NewStore(redisClient, "chatwarden", log)
	} else {
		memStore = memoryrepo.NewStore()
		store = memStore

		fileStorage, err := backup.NewFileStorage("backups")
		if err != nil {
			log.Fatalw("failed to create backup storage", "error", err)
		}
		backupService = backup.NewBackupService(fileStorage, version)

		restored, err := backupService.RestoreLatest(context.Background())
		if err != nil {
			log.Fatalw("failed to restore state backup", "error", err)
		}
		if restored != nil {
			if err := memStore.Import(restored.Collections); err != nil {
				log.Fatalw("failed to import state backup", "error", err)
			}
			log.Infow("restored state from backup", "timestamp", restored.Timestamp)
		}
	}

	// Chat transport
	chatClient := twitch.NewClient(twitch.Config{
		URL:        cfg.Chat.URL,
		Username:   cfg.Chat.Username,
		OAuthToken: cfg.Chat.OAuthToken,
		Channels:   cfg.Chat.Channels,
	}, log)

	// Core services
	policyService := services.NewPolicyService(store, log)
	cooldownService := services.NewCooldownService(store, log)
	gateService := services.NewGateService(cfg.Chat.Owners, policyService, cooldownService, log)
	pyramidService := services.NewPyramidService(cfg.Pyramid.MessagePool, chatClient, store, log)
	accountAgeService := services.NewAccountAgeService(store, chatClient, log)
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)

	// Metrics sinks
	sinks := monitoring.MultiSink{monitoring.NewLogSink(log)}
	if cfg.Monitoring.PrometheusEnabled {
		sinks = append(sinks, monitoring.NewPrometheusCollector())
	}

	// Dispatcher with built-in commands
	dispatcher := chathandlers.NewDispatcher(
		cfg.Chat.Prefix,
		gateService,
		policyService,
		cooldownService,
		pyramidService,
		accountAgeService,
		chatClient,
		sinks,
		log,
	)
	chathandlers.RegisterBuiltins(dispatcher)

	// Load persisted state
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := policyService.Load(ctx, dispatcher.DefaultRoles()); err != nil {
		log.Fatalw("failed to load command policies", "error", err)
	}
	if err := cooldownService.Load(ctx); err != nil {
		log.Fatalw("failed to load cooldown durations", "error", err)
	}
	if err := pyramidService.Load(ctx); err != nil {
		log.Fatalw("failed to load pyramid history", "error", err)
	}
	if err := accountAgeService.Load(ctx); err != nil {
		log.Fatalw("failed to load account age thresholds", "error", err)
	}

	// Ban waves
	var banWave *modtools.BanWave
	if cfg.BanWave.Enabled {
		source := modtools.NewHTTPBanListSource(cfg.BanWave.SourceURL, cfg.BanWave.SourceCacheTTL)
		defer source.Close()

		banWave = modtools.NewBanWave(source, chatClient, store, cfg.BanWave.ActionsPerSecond, log)
		if err := banWave.Load(ctx); err != nil {
			log.Fatalw("failed to load ban wave state", "error", err)
		}
		if redisClient != nil {
			banWave.SetGuard(distributed.NewLock(redisClient, "chatwarden:ban_wave", cfg.BanWave.Period/2))
		}
		dispatcher.SetProtection(banWave)

		go banWave.Run(ctx, cfg.BanWave.Period)
	}

	// Connect chat and start the read loop
	chatClient.OnMessage(dispatcher.HandleMessage)
	chatClient.OnJoin(dispatcher.HandleJoin)

	if err := chatClient.Connect(ctx); err != nil {
		log.Fatalw("failed to connect to chat", "error", err)
	}
	defer chatClient.Close()

	chatErr := make(chan error, 1)
	go func() {
		chatErr <- chatClient.Run(ctx)
	}()

	// Admin API
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	if cfg.Monitoring.TracingEnabled {
		router.Use(middleware.TracingMiddleware())
	}

	authHandler := httphandlers.NewAuthHandler(authService, cfg.Admin.Username, cfg.Admin.Password, cfg.Auth.AccessTokenTTL)
	authHandler.SetupRoutes(router)

	adminHandler := httphandlers.NewAdminHandler(policyService, cooldownService, pyramidService, accountAgeService)
	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(authService))
	adminHandler.SetupRoutes(api)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
			"channels":  chatClient.Channels(),
		})
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Admin.Address,
		Handler:      router,
		ReadTimeout:  cfg.Admin.ReadTimeout,
		WriteTimeout: cfg.Admin.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting admin API on %s", cfg.Admin.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Periodic state snapshots
	saveAll := func(ctx context.Context) {
		if err := policyService.Save(ctx); err != nil {
			log.Errorw("failed to save command policies", "error", err)
		}
		if err := cooldownService.Save(ctx); err != nil {
			log.Errorw("failed to save cooldown durations", "error", err)
		}
		if err := pyramidService.Save(ctx); err != nil {
			log.Errorw("failed to save pyramid history", "error", err)
		}
		if err := accountAgeService.Save(ctx); err != nil {
			log.Errorw("failed to save account age thresholds", "error", err)
		}
		if banWave != nil {
			if err := banWave.Save(ctx); err != nil {
				log.Errorw("failed to save ban wave state", "error", err)
			}
		}
		if backupService != nil && memStore != nil {
			collections, err := memStore.Export()
			if err != nil {
				log.Errorw("failed to export state", "error", err)
				return
			}
			if _, err := backupService.CreateBackup(ctx, &backup.BackupData{Collections: collections}); err != nil {
				log.Errorw("failed to write state backup", "error", err)
				return
			}
			if err := backupService.Prune(ctx, 10); err != nil {
				log.Errorw("failed to prune state backups", "error", err)
			}
		}
	}

	go func() {
		ticker := time.NewTicker(cfg.Persistence.SnapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				saveAll(ctx)
			}
		}
	}()

	// Wait for shutdown signal or a fatal component error
	select {
	case err := <-serverErr:
		log.Fatalw("admin API failed", "error", err)
	case err := <-chatErr:
		if ctx.Err() == nil {
			log.Fatalw("chat connection failed", "error", err)
		}
	case <-ctx.Done():
		log.Info("received shutdown signal")
	}

	log.Info("shutting down chatwarden...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Admin.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during admin API shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing admin API", "error", closeErr)
		}
	}

	// Final snapshot before the process exits.
	saveAll(shutdownCtx)

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error shutting down tracer", "error", err)
	}
	if redisClient != nil {
		if err := redisrepo.CloseRedisClient(redisClient); err != nil {
			log.Errorw("error closing redis client", "error", err)
		}
	}

	log.Info("chatwarden stopped")
}
