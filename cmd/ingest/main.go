package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"soctel/internal/core/ports"
	"soctel/internal/core/services"
	httphandlers "soctel/internal/handlers/http"
	backupsched "soctel/internal/infrastructure/backup"
	"soctel/internal/infrastructure/broadcast"
	"soctel/internal/infrastructure/distributed"
	ingestws "soctel/internal/infrastructure/ingest"
	"soctel/internal/infrastructure/loadbalancer"
	"soctel/internal/infrastructure/middleware"
	"soctel/internal/infrastructure/monitoring"
	"soctel/internal/infrastructure/reliability"
	repositories "soctel/internal/infrastructure/repositories"
	pkgbackup "soctel/pkg/backup"
	"soctel/pkg/circuitbreaker"
	"soctel/pkg/config"
	"soctel/pkg/logger"
	"soctel/pkg/utils"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/soctel/config.yaml",
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
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	instanceID := utils.GenerateID("instance")

	// Initialize repository factory
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	// Initialize monitoring
	prometheusCollector := monitoring.NewPrometheusCollector()

	// Initialize repositories
	sessionRepo := repoFactory.CreateSessionRepository()
	sampleStore := reliability.NewSampleStoreWrapper(
		repoFactory.CreateSampleRepository(),
		circuitbreaker.DefaultConfig(),
		log,
	)
	sampleStore.SetFlushObserver(prometheusCollector)
	var sampleRepo ports.SampleRepository = sampleStore

	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddRepositoryCheck(sessionRepo, 30*time.Second, 5*time.Second)
	if redisClient := repoFactory.RedisClient(); redisClient != nil {
		healthChecker.AddRedisCheck(redisClient, 30*time.Second, 5*time.Second)
	}

	// Initialize services
	snapshotBus := broadcast.NewSnapshotBus(log)
	aggregator := services.NewAggregator(services.AggregatorConfig{
		Window:        cfg.Aggregator.Window,
		PeakWindow:    cfg.Aggregator.PeakWindow,
		JankThreshold: cfg.Aggregator.JankThreshold,
	})
	var sessionService ports.SessionService = services.NewSessionService(
		sessionRepo,
		sampleRepo,
		aggregator,
		monitoring.NewInstrumentedPublisher(snapshotBus, prometheusCollector),
		prometheusCollector,
		services.SessionBufferConfig{
			FlushSize:     cfg.Buffer.FlushSize,
			FlushInterval: cfg.Buffer.FlushInterval,
			Capacity:      cfg.Buffer.Capacity,
		},
		log,
	)
	sessionService = monitoring.NewSessionMetricsWrapper(sessionService, prometheusCollector)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	healthChecker.StartBackgroundChecks(rootCtx)

	// Cross-instance coordination when Redis is available
	var eventBus *distributed.EventBus
	var sharedRegistry *distributed.SharedDeviceRegistry
	if redisClient := repoFactory.RedisClient(); redisClient != nil {
		eventBus = distributed.NewEventBus(redisClient, instanceID, log)
		sharedRegistry = distributed.NewSharedDeviceRegistry(redisClient, instanceID, log)
		sessionService = distributed.NewSessionEventsWrapper(sessionService, eventBus, log)

		go func() {
			if err := eventBus.Subscribe(rootCtx, func(event *distributed.Event) error {
				log.Debugw("remote event",
					"type", event.Type,
					"instance_id", event.InstanceID,
					"session_id", event.SessionID,
					"device_id", event.DeviceID,
				)
				return nil
			}); err != nil {
				log.Warnw("event bus subscription ended", "error", err)
			}
		}()
	}

	authService := services.NewDeviceAuthService(
		cfg.Auth.DeviceTokenSecret,
		cfg.Auth.DeviceTokenTTL,
	)
	registryService := services.NewRegistryService(
		sessionService,
		authService,
		services.RegistryConfig{
			LivenessWindow: cfg.Registry.LivenessWindow,
			SweepInterval:  cfg.Registry.SweepInterval,
		},
		log,
	)
	registryService.StartSweeper(rootCtx)

	exportService := services.NewExportService(sessionRepo, sampleRepo)

	// Scheduled backups
	var scheduler *backupsched.Scheduler
	if cfg.Backup.Enabled {
		storage, err := pkgbackup.NewFileStorage(cfg.Backup.Dir)
		if err != nil {
			log.Fatalw("failed to initialize backup storage", "error", err)
		}
		backupService := pkgbackup.NewBackupService(storage, "1.0")
		scheduler = backupsched.NewScheduler(
			backupService,
			sessionRepo,
			sampleRepo,
			backupsched.Config{
				Interval:      cfg.Backup.Interval,
				RetentionDays: cfg.Backup.RetentionDays,
			},
			log,
		)
		go scheduler.Start(rootCtx)
		log.Infow("backup scheduler started", "dir", cfg.Backup.Dir, "interval", cfg.Backup.Interval)
	}

	// Initialize ingress websocket server
	ingressServer := ingestws.NewWebSocketServer(registryService, prometheusCollector, log)
	ingressServer.SetPingInterval(cfg.Ingest.PingInterval)
	ingressServer.SetPongTimeout(cfg.Ingest.PongTimeout)
	if cfg.RateLimiting.Enabled {
		ingressServer.SetRateLimit(
			cfg.RateLimiting.Ingest.MessagesPerSecond,
			cfg.RateLimiting.Ingest.Burst,
		)
		if cfg.RateLimiting.Ingest.MaxMessageSizeBytes > 0 {
			ingressServer.SetMaxMessageSize(cfg.RateLimiting.Ingest.MaxMessageSizeBytes)
		}
	}
	if sharedRegistry != nil {
		ingressServer.SetSharedRegistry(sharedRegistry)
	}
	if eventBus != nil {
		ingressServer.SetEventBus(eventBus)
	}

	ingressMux := http.NewServeMux()
	ingressMux.HandleFunc("/ingest", ingressServer.HandleWebSocket)
	ingressMux.HandleFunc("/health", ingressServer.HealthCheck)

	ingressSrv := &http.Server{
		Addr:         cfg.Ingest.Address,
		Handler:      ingressMux,
		ReadTimeout:  cfg.Ingest.ReadTimeout,
		WriteTimeout: cfg.Ingest.WriteTimeout,
	}

	// Initialize HTTP handlers
	sessionHandler := httphandlers.NewSessionHandler(
		sessionService,
		exportService,
		registryService,
		sampleRepo,
		snapshotBus,
		log,
	)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.RequestLoggerMiddleware(zapLogger))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	router.Use(middleware.ErrorHandlerMiddleware(log))

	// Snapshot subscriptions are served from in-process state, so a client
	// must land on the same instance across requests.
	affinity := loadbalancer.NewAffinityManager(cfg.Auth.DeviceTokenSecret, "soctel_affinity", 3600)
	router.Use(affinity.Middleware())

	sessionHandler.SetupRoutes(router)

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":      "healthy",
			"timestamp":   time.Now(),
			"uptime":      time.Since(startTime).String(),
			"instance_id": instanceID,
		})
	})

	// Readiness endpoint
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		status := healthChecker.GetReadinessStatus(ctx)
		code := 200
		if status.Status != "healthy" {
			code = 503
		}
		c.JSON(code, status)
	})

	// Prometheus metrics endpoint
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	apiSrv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 2)
	go func() {
		log.Infof("Starting soctel API server on %s", cfg.Server.Address)
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()
	go func() {
		log.Infof("Starting soctel ingress server on %s", cfg.Ingest.Address)
		if err := ingressSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	log.Info("shutting down soctel...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	rootCancel()
	if scheduler != nil {
		scheduler.Stop()
	}

	if err := ingressSrv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("ingress shutdown error", "error", err)
	}
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("api shutdown error", "error", err)
	}

	// End active sessions so rollups are persisted before exit
	sessions, err := sessionService.List(shutdownCtx)
	if err == nil {
		for _, s := range sessions {
			if s.IsActive() {
				if _, err := sessionService.End(shutdownCtx, s.ID); err != nil {
					log.Errorw("failed to end session on shutdown", "session_id", s.ID, "error", err)
				}
			}
		}
	}

	if eventBus != nil {
		if err := eventBus.Close(); err != nil {
			log.Warnw("event bus close error", "error", err)
		}
	}

	log.Info("shutdown complete")
}
