package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/corrigeo/api/internal/auth"
	"github.com/corrigeo/api/internal/client"
	"github.com/corrigeo/api/internal/config"
	"github.com/corrigeo/api/internal/docgen"
	"github.com/corrigeo/api/internal/handler"
	"github.com/corrigeo/api/internal/middleware"
	"github.com/corrigeo/api/internal/ocr"
	"github.com/corrigeo/api/internal/publish"
	"github.com/corrigeo/api/internal/queue"
	"github.com/corrigeo/api/internal/service"
	"github.com/corrigeo/api/internal/store"
	"github.com/corrigeo/api/internal/worker"
	ws "github.com/corrigeo/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	// Initialize store (Postgres when configured, in-memory otherwise)
	var correctionStore store.Store
	if cfg.Database.URL != "" {
		if err := store.Migrate(cfg.Database.URL); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pool.Close()
		correctionStore = store.NewPostgresStore(pool)
	} else {
		log.Println("Info: DATABASE_URL not set, using in-memory store")
		correctionStore = store.NewMemoryStore()
	}

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize storage client (optional - continues with mock URLs if not configured)
	var storageClient client.StorageClient
	if cfg.Storage.AccessKeyID != "" && cfg.Storage.SecretAccessKey != "" {
		s3Client, err := client.NewS3Client(&cfg.Storage)
		if err != nil {
			log.Printf("Warning: storage client not initialized: %v", err)
		} else {
			storageClient = s3Client
		}
	} else {
		log.Println("Info: object storage not configured, using mock result URLs")
	}

	// Initialize JWKS verifier (optional - falls back to legacy JWT)
	var jwksVerifier *auth.JWKSVerifier
	if cfg.Auth.Issuer != "" {
		var err error
		jwksVerifier, err = auth.NewJWKSVerifier(&cfg.Auth)
		if err != nil {
			log.Printf("Warning: JWKS verifier not initialized: %v", err)
		} else {
			defer jwksVerifier.Close()
		}
	}

	// Initialize services and handlers
	correctionQueue := queue.NewAsynqQueue(asynqClient, cfg.Worker.Queue, cfg.Worker.MaxRetry)
	correctionService := service.NewCorrectionService(correctionStore, correctionQueue, cfg.Upload)
	correctionHandler := handler.NewCorrectionHandler(correctionService, validate)

	// Initialize auth handler for ForwardAuth verification
	var tokenVerifier auth.TokenVerifier
	if jwksVerifier != nil {
		tokenVerifier = jwksVerifier
	}
	authHandler := handler.NewAuthHandler(tokenVerifier, cfg.JWT.Secret)

	// Initialize auth middleware (with fallback support)
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind a reverse proxy: auth is handled by ForwardAuth, read X-User-* headers
		log.Println("Info: Gateway mode enabled — using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		var authMiddleware *middleware.AuthMiddleware
		if jwksVerifier != nil && cfg.JWT.Secret != "" {
			authMiddleware = middleware.NewAuthMiddlewareWithFallback(jwksVerifier, cfg.JWT.Secret)
		} else if jwksVerifier != nil {
			authMiddleware = middleware.NewAuthMiddleware(jwksVerifier)
		} else {
			authMiddleware = middleware.NewLegacyAuthMiddleware(cfg.JWT.Secret)
		}
		apiAuthMiddleware = authMiddleware.Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    int(cfg.Upload.MaxFileSize) * (cfg.Upload.MaxFiles + 1),
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		dbOK := correctionStore.Ping(c.Context()) == nil
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"database": dbOK,
				"redis":    redisClient.Ping(c.Context()).Err() == nil,
				"mistral":  cfg.Mistral.APIKey != "",
				"storage":  storageClient != nil,
				"auth":     jwksVerifier != nil || cfg.JWT.Secret != "",
			},
		})
	})

	// ForwardAuth verification endpoint (internal, called by the gateway)
	app.Get("/auth/verify", authHandler.Verify)

	// API routes
	api := app.Group("/api", apiAuthMiddleware)

	corrections := api.Group("/corrections")
	corrections.Post("/", rateLimiter.SubmitLimit(cfg.RateLimit.SubmitPerHour), correctionHandler.Create)
	corrections.Post("/:id/process", rateLimiter.SubmitLimit(cfg.RateLimit.SubmitPerHour), correctionHandler.Process)
	corrections.Get("/:id/status", rateLimiter.StatusLimit(cfg.RateLimit.StatusPerMin), correctionHandler.Status)
	corrections.Get("/:id/documents", rateLimiter.StatusLimit(cfg.RateLimit.StatusPerMin), correctionHandler.Documents)
	corrections.Post("/:id/cancel", correctionHandler.Cancel)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/corrections/:id", websocket.New(func(c *websocket.Conn) {
		correctionID := c.Params("id")
		hub.HandleConnection(c, correctionID)
	}))

	// Start the embedded Asynq worker unless running API-only
	if cfg.Worker.Enabled {
		correctionWorker := buildWorker(cfg, correctionStore, storageClient, hub)
		go func() {
			if err := worker.RunServer(redisOpt, cfg.Worker.Queue, cfg.Worker.Concurrency, correctionWorker); err != nil {
				log.Printf("Asynq worker error: %v", err)
			}
		}()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// buildWorker assembles the correction pipeline shared with cmd/worker.
func buildWorker(cfg *config.Config, st store.Store, storageClient client.StorageClient, hub *ws.Hub) *worker.CorrectionWorker {
	extractor := ocr.NewExtractor(cfg.OCR)
	grader := client.NewMistralClient(&cfg.Mistral)
	renderer := docgen.NewDocxRenderer()
	publisher := publish.NewPublisher(storageClient, st)

	var notifier worker.Notifier
	if hub != nil {
		notifier = hub
	}
	return worker.NewCorrectionWorker(st, extractor, grader, renderer, publisher, notifier, cfg.Worker.JobTimeout)
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
