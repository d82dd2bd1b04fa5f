package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"fotobox/eventhub/internal/cleanup"
	"fotobox/eventhub/internal/clock"
	"fotobox/eventhub/internal/config"
	"fotobox/eventhub/internal/handler"
	"fotobox/eventhub/internal/mirror"
	"fotobox/eventhub/internal/model"
	"fotobox/eventhub/internal/repository"
	"fotobox/eventhub/internal/service"
	"fotobox/eventhub/internal/storage"
	jwtpkg "fotobox/eventhub/pkg/jwt"
	"fotobox/eventhub/pkg/qrcode"
)

func main() {
	configPath := "config.yaml"
	if p := os.Getenv("EVENTHUB_CONFIG"); p != "" {
		configPath = p
	}

	// 1. Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Initialize logger
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// 3. Connect to PostgreSQL
	db, err := config.NewPostgresDB(cfg.Database.Postgres, cfg.Log.Level)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}

	// 4. Migrate if enabled
	if cfg.Database.Postgres.AutoMigrate {
		if err := model.Migrate(context.Background(), db, cfg.Database.Postgres.Migrator); err != nil {
			logger.Fatal("failed to migrate", zap.Error(err))
		}
		logger.Info("database migration completed", zap.String("migrator", cfg.Database.Postgres.Migrator))
	}

	// 5. Initialize lock store (Redis or in-memory)
	var lockStore repository.LockStore
	switch cfg.Lock.Backend {
	case "redis":
		redisClient, err := config.NewRedisClient(cfg.Database.Redis)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
		lockStore = repository.NewRedisLockStore(redisClient)
		logger.Info("using Redis lock store")
	case "memory":
		lockStore = repository.NewMemoryLockStore()
		logger.Info("using in-memory lock store")
	default:
		logger.Fatal("unknown lock backend", zap.String("backend", cfg.Lock.Backend))
	}

	// 6. Initialize repositories
	hostRepo := repository.NewPGHostRepository(db)
	eventRepo := repository.NewPGEventRepository(db)
	uploadRepo := repository.NewPGUploadRepository(db)

	// 7. Initialize asset store and remote mirror
	assets, err := storage.NewAssetStore(cfg.Storage.Root, logger)
	if err != nil {
		logger.Fatal("failed to init asset store", zap.Error(err))
	}
	mirrorSvc := mirror.FromConfig(mirror.Config{
		Enabled:  cfg.Mirror.Enabled,
		Backend:  cfg.Mirror.Backend,
		BasePath: cfg.Mirror.BasePath,
		Timeout:  cfg.Mirror.Timeout,
		SMB:      mirror.SMBConfig(cfg.Mirror.SMB),
		S3:       mirror.S3Config(cfg.Mirror.S3),
		Local:    cfg.Mirror.Local.MountPoint,
	}, logger)
	logger.Info("mirror configured", zap.Stringer("state", mirrorSvc.State()))

	// 8. Initialize JWT manager
	jwtManager := jwtpkg.NewManager(
		cfg.JWT.SigningKey,
		cfg.JWT.Issuer,
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.RefreshTokenTTL,
	)

	// 9. Initialize services
	clk := clock.Real()
	purger := cleanup.NewPurger(eventRepo, uploadRepo, assets, logger)
	hostService := service.NewHostService(hostRepo, eventRepo, purger, jwtManager, cfg.Events.DefaultExpiryDays, logger)
	eventService := service.NewEventService(
		hostRepo, eventRepo, lockStore, purger,
		qrcode.NewRenderer(qrcode.DefaultSize), assets, clk,
		service.EventConfig{
			DefaultExpiryDays: cfg.Events.DefaultExpiryDays,
			CodeLength:        cfg.Events.CodeLength,
			PublicBaseURL:     cfg.Events.PublicBaseURL,
		},
		logger,
	)
	uploadService := service.NewUploadService(eventRepo, uploadRepo, assets, mirrorSvc, clk, logger)

	// 10. Seed the admin account on first start
	generated, err := hostService.EnsureAdmin(context.Background(), cfg.Admin.BootstrapPassword)
	if err != nil {
		logger.Fatal("failed to seed admin account", zap.Error(err))
	}
	if generated != "" {
		logger.Warn("admin account created with a generated password, change it after first login",
			zap.String("username", "admin"),
			zap.String("password", generated),
		)
	}

	// 11. Start the expiry sweep
	scheduler := cleanup.NewScheduler(eventRepo, purger, lockStore, clk, cleanup.Options{
		Interval:   cfg.Cleanup.Interval,
		RunOnStart: cfg.Cleanup.RunOnStart,
	}, logger)
	scheduler.Start(context.Background())

	// 12. Setup router
	router := handler.SetupRouter(cfg, logger, jwtManager,
		handler.NewAuthHandler(hostService),
		handler.NewEventHandler(eventService, uploadService),
		handler.NewUploadHandler(uploadService, cfg.Server.MaxUploadBytes),
		handler.NewAdminHandler(hostService, eventService, scheduler),
	)

	// 13. Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 14. Start server with graceful shutdown
	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// 15. Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	scheduler.Stop()
	if err := mirrorSvc.Close(); err != nil {
		logger.Warn("mirror close failed", zap.Error(err))
	}
	logger.Info("server exited gracefully")
}
