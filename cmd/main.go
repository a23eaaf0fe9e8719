package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"research-board-platform/internal/ai"
	"research-board-platform/internal/config"
	"research-board-platform/internal/logger"
	"research-board-platform/internal/telemetry"
	"research-board-platform/internal/transcript"
	"research-board-platform/internal/vector"
	"research-board-platform/middleware"
	"research-board-platform/routes"
	"research-board-platform/services"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg, "research-board-api")

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	// Redis backs both rate limiting and the task queue
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	redisOpt, err := config.AsynqRedisOpt(cfg)
	if err != nil {
		log.Fatal("Failed to configure task queue:", err)
	}
	queueClient := asynq.NewClient(redisOpt)
	defer queueClient.Close()

	// Telemetry
	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	router.Use(middleware.RequestIDMiddleware())

	if cfg.TracingEnabled {
		shutdownTracer, err := telemetry.InitTracer("research-board-platform", cfg.OTLPEndpoint)
		if err != nil {
			log.Fatal("Failed to initialize tracer:", err)
		}
		defer shutdownTracer()

		router.Use(middleware.TracingMiddleware())
		router.Use(middleware.EnrichTrace())
	}

	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))
	// Multipart encoding adds overhead on top of the file itself
	router.Use(middleware.RequestSizeLimit(cfg.MaxFileSize + 1<<20))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	// Build the service graph
	chunker, err := services.NewChunkingService(cfg.MaxChunkChars, cfg.ChunkOverlap)
	if err != nil {
		log.Fatal("Failed to create chunker:", err)
	}

	embedder, err := ai.NewEmbedder(cfg)
	if err != nil {
		log.Fatal("Failed to create embedder:", err)
	}
	defer embedder.Close()

	index, err := vector.New(cfg, db)
	if err != nil {
		log.Fatal("Failed to create vector index:", err)
	}

	llm, err := ai.NewLLMClient(cfg)
	if err != nil {
		log.Fatal("Failed to create LLM client:", err)
	}
	defer llm.Close()

	stt := ai.NewTranscriberClient(cfg)
	videos, err := transcript.NewVideoCascade(cfg.CrawlerUserAgent, transcript.YtDlpOptions{
		YtDlpPath:  cfg.YtDlpPath,
		FFmpegPath: cfg.FFmpegPath,
		TempDir:    cfg.IngestTempDir,
	}, stt, cfg.STTPrimaryModel, cfg.STTFallbackModel)
	if err != nil {
		log.Fatal("Failed to create video cascade:", err)
	}

	storage := services.NewStorageService(cfg)
	documents := services.NewDocumentService(cfg)
	ingestion := services.NewIngestionService(cfg, db, chunker, embedder, index, videos, stt, documents, metrics)

	answers := services.NewAnswerService(llm)
	retrieval := services.NewRetrievalService(embedder, index, cfg.MMRLambda, cfg.PrefetchFloor)
	contexts := services.NewContextService(db, retrieval, answers)
	exporter := services.NewExportService(db)

	// Setup routes
	routes.SetupBoardRoutes(router, db, ingestion, storage, queueClient)
	routes.SetupItemRoutes(router, cfg, db, storage, ingestion, queueClient)
	routes.SetupGroupRoutes(router, db)
	routes.SetupChatRoutes(router, cfg, db, contexts, answers, metrics)
	routes.SetupExportRoutes(router, exporter)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}
