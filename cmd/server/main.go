package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"tableloom/internal/auth"
	"tableloom/internal/config"
	"tableloom/internal/domain/models"
	"tableloom/internal/handler"
	"tableloom/internal/llm"
	"tableloom/internal/middleware"
	"tableloom/internal/modeltier"
	"tableloom/internal/repository/postgres"
	redisrepo "tableloom/internal/repository/redis"
)

const (
	logDir      = "logs"
	maxLogFiles = 10
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()

	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}

	logOutput := io.Writer(os.Stdout)
	if logFile, err := config.SetupLogFile(logDir, maxLogFiles); err != nil {
		log.Printf("could not open rotating log file, logging to stdout only: %v", err)
	} else {
		defer logFile.Close()
		logOutput = io.MultiWriter(os.Stdout, logFile)
	}

	logger := slog.New(slog.NewJSONHandler(logOutput, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	ctx := context.Background()

	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected", "max_conns", 25, "min_conns", 5)

	tables := postgres.NewTableNames(cfg.TablePrefix)
	txManager := postgres.NewTransactionManager(pool)
	quotaStore := postgres.NewQuotaStore(pool, tables, txManager, cfg.DefaultTokenLimit)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	sessionStore := redisrepo.NewSessionStore(redisClient)
	sessionLock := redisrepo.NewSessionLock(redisClient)
	rateLimiter := redisrepo.NewRateLimiter(redisClient)

	tiers, err := modeltier.NewRegistry()
	if err != nil {
		log.Fatalf("Failed to load model tiers: %v", err)
	}

	jwtVerifier, err := auth.NewJWTVerifier(cfg.JWKSURL, logger)
	if err != nil {
		log.Fatalf("Failed to initialize JWT verifier: %v", err)
	}

	llmClient, err := llm.NewClient(cfg.AnthropicAPIKey)
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}

	h := &handler.Handler{
		Sessions: sessionStore,
		Quota:    quotaStore,
		Locks:    sessionLock,
		LLM:      llmClient,
		Tiers:    tiers,
		Logger:   logger,
	}

	logger.Info("components initialized")

	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler,
	})

	app.Use(recover.New())

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     strings.Join([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}, ","),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")
	api.Use(middleware.AuthMiddleware(jwtVerifier))

	api.Get("/analyze", middleware.RateLimitMiddleware(rateLimiter, models.EndpointAnalyze, logger), h.Start)
	api.Get("/analyze/resume", middleware.RateLimitMiddleware(rateLimiter, models.EndpointResume, logger), h.Resume)
	api.Post("/analyze/tool-result", middleware.RateLimitMiddleware(rateLimiter, models.EndpointToolResult, logger), h.ToolResult)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
