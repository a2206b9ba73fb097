package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	intDatabase "akistel-relay/internal/database"
	deviceHandler "akistel-relay/internal/handler/http/device"
	keysHandler "akistel-relay/internal/handler/http/keys"
	messageHandler "akistel-relay/internal/handler/http/message"
	pushtokenHandler "akistel-relay/internal/handler/http/pushtoken"
	wsHandler "akistel-relay/internal/handler/ws"
	"akistel-relay/internal/middleware"
	"akistel-relay/internal/repository/memory"
	"akistel-relay/internal/repository/postgres"
	redisRepo "akistel-relay/internal/repository/redis"
	deviceService "akistel-relay/internal/service/device"
	envelopeService "akistel-relay/internal/service/envelope"
	keysService "akistel-relay/internal/service/keys"
	pkgDatabase "akistel-relay/pkg/database"
	"akistel-relay/pkg/env"
	"akistel-relay/pkg/jwt"
	"akistel-relay/pkg/logger"
	"akistel-relay/pkg/metrics"
	"akistel-relay/pkg/push"
)

func main() {
	// 1. Initialize logger
	logger.InitDefault()
	defer logger.Sync()

	// 2. Setup device token manager
	tokenSecret := env.GetStringFromFile("DEVICE_TOKEN_SECRET", "")
	if tokenSecret == "" {
		log.Fatal("DEVICE_TOKEN_SECRET environment variable is required")
	}
	if len(tokenSecret) < 32 {
		log.Fatal("DEVICE_TOKEN_SECRET must be at least 32 characters")
	}

	tokenDuration := env.GetDuration("DEVICE_TOKEN_DURATION", 30*24*time.Hour)
	tokenManager := jwt.NewDeviceTokenManager(tokenSecret, tokenDuration)

	// Initialize Redis metrics before connecting to Redis
	intDatabase.InitRedisMetrics()

	// 3. Connect to Redis with degraded mode support
	redisConfig := &intDatabase.RedisConfig{
		Host:     env.GetString("REDIS_HOST", "localhost"),
		Port:     env.GetInt("REDIS_PORT", 6379),
		Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
		DB:       0,
		PoolSize: 10,
		Timeout:  5 * time.Second,
	}

	redisDB, err := intDatabase.NewRedisDB(redisConfig)
	if err != nil {
		log.Fatalf("Failed to create Redis client: %v", err)
	}
	defer redisDB.Close()

	redisDB.StartHealthCheck(context.Background(), 10*time.Second)
	log.Println("✅ Redis client ready (health check every 10s)")

	// 4. Initialize storage repositories
	var (
		deviceRepo   deviceService.Repository
		keyRepo      keysService.Repository
		envelopeRepo envelopeService.Repository
		bundleCheck  deviceService.BundleChecker
		deviceGetter keysService.DeviceGetter
	)

	storageBackend := env.GetString("STORAGE_BACKEND", "postgres")
	switch storageBackend {
	case "memory":
		devices := memory.NewDeviceRepository()
		deviceRepo = devices
		deviceGetter = devices
		bundles := memory.NewKeyBundleRepository(devices)
		keyRepo = bundles
		bundleCheck = bundles
		envelopeRepo = memory.NewEnvelopeRepository(devices)
		log.Println("✅ Using in-memory storage backend")

	case "postgres":
		postgresConfig := &pkgDatabase.PostgresConfig{
			Host:     env.GetString("POSTGRES_HOST", "localhost"),
			Port:     env.GetInt("POSTGRES_PORT", 5432),
			User:     env.GetString("POSTGRES_USER", "akistel"),
			Password: env.GetStringFromFile("POSTGRES_PASSWORD", ""),
			Database: env.GetString("POSTGRES_DATABASE", "akistel_relay"),
			SSLMode:  env.GetString("POSTGRES_SSLMODE", "disable"),
		}

		postgresDB, err := pkgDatabase.NewPostgresDB(context.Background(), postgresConfig)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		defer postgresDB.Close()
		log.Println("✅ Connected to Postgres")

		devices := postgres.NewDeviceRepository(postgresDB.Pool)
		deviceRepo = devices
		deviceGetter = devices
		bundles := postgres.NewKeyBundleRepository(postgresDB.Pool)
		keyRepo = bundles
		bundleCheck = bundles
		envelopeRepo = postgres.NewEnvelopeRepository(postgresDB.Pool)

	default:
		log.Fatalf("Unknown STORAGE_BACKEND: %s (expected postgres or memory)", storageBackend)
	}

	// 5. Initialize Redis-backed repositories
	directoryRepo := redisRepo.NewDirectoryRepository(redisDB)
	pushTokenRepo := redisRepo.NewPushTokenRepository(redisDB)

	// 6. Initialize metrics
	appMetrics := metrics.NewMetrics("relay-service")
	prometheusMiddleware := middleware.NewPrometheusMiddleware(appMetrics)

	// 7. Initialize push notification service
	pushProvider, err := push.NewProvider()
	if err != nil {
		log.Fatalf("Failed to initialize push provider: %v", err)
	}
	pushSvc := push.NewService(pushProvider, pushTokenRepo)

	// 8. Initialize presence hub
	presenceHub := wsHandler.NewPresenceHub(directoryRepo, appMetrics)

	// 9. Initialize services
	deviceSvc := deviceService.NewService(deviceRepo, bundleCheck)
	keysSvc := keysService.NewService(keyRepo, deviceGetter, appMetrics)
	envelopeSvc := envelopeService.NewService(envelopeRepo, deviceGetter, presenceHub, pushSvc, appMetrics)

	// 10. Start retention sweep
	retentionMaxAge := env.GetDuration("RETENTION_MAX_AGE", 7*24*time.Hour)
	sweepInterval := env.GetDuration("RETENTION_SWEEP_INTERVAL", time.Hour)
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	envelopeSvc.StartSweep(sweepCtx, sweepInterval, retentionMaxAge)
	log.Printf("✅ Retention sweep scheduled (every %s, max age %s)", sweepInterval, retentionMaxAge)

	// 11. Initialize handlers
	deviceHdlr := deviceHandler.NewHandler(deviceSvc, tokenManager)
	keysHdlr := keysHandler.NewHandler(keysSvc)
	messageHdlr := messageHandler.NewHandler(envelopeSvc, retentionMaxAge)
	pushtokenHdlr := pushtokenHandler.NewHandler(pushSvc)

	// 12. Setup Gin router
	if os.Getenv("ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.SetTrustedProxies(nil)

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware())
	router.Use(prometheusMiddleware.Handler())
	router.Use(middleware.NewTimeoutMiddleware(nil).Middleware())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "relay-service",
			"storage": storageBackend,
			"time":    time.Now().UTC(),
		})
	})

	// Metrics endpoint (for Prometheus scraping)
	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	// Rate limiter on the send path
	sendLimiter := middleware.NewRateLimiter(
		redisDB.Client,
		env.GetInt("SEND_RATE_LIMIT", 60),
		env.GetDuration("SEND_RATE_WINDOW", time.Minute),
		appMetrics,
	)

	v1 := router.Group("/v1")
	{
		// Device registration and discovery carry no token yet
		v1.POST("/devices/register", deviceHdlr.Register)
		v1.GET("/devices", deviceHdlr.List)
		v1.GET("/devices/:device_id", deviceHdlr.Get)

		authed := v1.Group("")
		authed.Use(middleware.DeviceAuthMiddleware(tokenManager))
		{
			authed.POST("/keys/publish", keysHdlr.Publish)
			authed.GET("/keys/count", keysHdlr.Count)
			authed.GET("/keys/user/:user_id", keysHdlr.FetchAllForUser)
			authed.GET("/keys/:device_id", keysHdlr.Fetch)

			authed.POST("/messages/send", sendLimiter.Middleware(), messageHdlr.Send)
			authed.GET("/messages/inbox/:device_id", messageHdlr.Inbox)
			authed.POST("/messages/ack", messageHdlr.Ack)
			authed.DELETE("/messages/cleanup", messageHdlr.Cleanup)

			authed.POST("/push/token", pushtokenHdlr.Register)
			authed.DELETE("/push/token", pushtokenHdlr.Unregister)

			authed.GET("/ws/:device_id", presenceHub.ServeWS)
		}
	}

	// 13. Start server
	port := env.GetString("PORT", "8080")
	addr := fmt.Sprintf(":%s", port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Printf("🚀 Relay Service starting on port %s\n", port)
		log.Println("📡 WebSocket endpoint: /v1/ws/:device_id")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 14. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	cancelSweep()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
