package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	config "github.com/skybeam/engage/configs"
	"github.com/skybeam/engage/internal/application/services"
	"github.com/skybeam/engage/internal/core/ports"
	"github.com/skybeam/engage/internal/infrastructure/db"
	"github.com/skybeam/engage/internal/infrastructure/health"
	"github.com/skybeam/engage/internal/infrastructure/httpclient"
	"github.com/skybeam/engage/internal/infrastructure/httpserver"
	"github.com/skybeam/engage/internal/infrastructure/redis"
	"github.com/skybeam/engage/internal/infrastructure/repositories"
	"github.com/skybeam/engage/internal/infrastructure/scheduler"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Setup logger
	logger := logrus.New()
	if cfg.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(level)
	}

	logger.Info("Starting Engage core service...")

	// Initialize database (apply pool settings from config)
	database, err := db.NewDatabaseWithConfig(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database:", err)
	}
	defer database.Close()

	logger.Info("Connected to database successfully")

	// Initialize Redis client
	redisClient, err := redis.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis:", err)
	}
	defer redisClient.Close()

	logger.Info("Connected to Redis successfully")

	// Run migrations
	if err := database.Migrate("./migrations"); err != nil {
		logger.Warn("Failed to run migrations:", err)
	}

	clock := ports.SystemClock{}

	// Repositories and stores
	limitStore := repositories.NewFrequencyLimitRepository(database, logger)
	eventRepo := repositories.NewEventRepository(database, logger)
	prefs := redis.NewPreferenceDataStore(redisClient, "engage")

	// Auth layer
	httpClient := &http.Client{Timeout: cfg.Auth.RequestTimeout}
	authClient := httpclient.NewAuthAPIClient(cfg.Auth.AppKey, cfg.Auth.AppSecret, cfg.Auth.DeviceAPIURL, httpClient, clock, logger)
	authManager := services.NewAuthManager(authClient, prefs, clock, logger)

	// Scheduling & admission control core
	rateLimiter := services.NewRateLimiter(clock)
	jobScheduler := scheduler.NewTimerScheduler(cfg.Job.InitialBackoff, cfg.Job.MaxBackoff, logger)
	defer jobScheduler.Stop()

	analyticsClient := httpclient.NewAnalyticsAPIClient(cfg.Auth.AnalyticsAPIURL, httpClient, logger)
	uploadRunner := services.NewEventUploadRunner(eventRepo, analyticsClient, authManager, cfg.Analytics.BatchSize, logger)

	dispatcher := services.NewJobDispatcher(jobScheduler, uploadRunner, rateLimiter, &services.JobDispatcherConfig{
		MaxRetries:  cfg.Job.MaxRetries,
		GiveUpDelay: cfg.Job.GiveUpDelay,
	}, logger)
	jobScheduler.SetTarget(dispatcher)
	dispatcher.SetRateLimit(services.EventUploadRateLimitTag, cfg.Analytics.UploadsPerPeriod, cfg.Analytics.UploadPeriod)

	limitManager := services.NewFrequencyLimitManager(limitStore, clock, logger)
	defer limitManager.Close()

	eventService := services.NewEventService(eventRepo, dispatcher, &services.EventServiceConfig{
		BatchSize:   cfg.Analytics.BatchSize,
		UploadDelay: cfg.Analytics.UploadDelay,
	}, logger)

	// HTTP admin surface
	serverConfig := &httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		TLSCertFile:  cfg.Server.TLSCertFile,
		TLSKeyFile:   cfg.Server.TLSKeyFile,
	}

	server := httpserver.NewServer(serverConfig, &cfg.Admin, logger, httpserver.ServerDeps{
		Limits:      limitManager,
		LimitStore:  limitStore,
		RateLimiter: rateLimiter,
		Auth:        authManager,
		Events:      eventService,
		HealthCheckers: []ports.HealthChecker{
			health.NewDBHealthChecker(database),
			health.NewRedisHealthChecker(redisClient),
		},
	})

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}
