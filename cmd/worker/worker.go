package main

import (
	"context"
	"log"
	"time"

	"research-board-platform/internal/ai"
	"research-board-platform/internal/config"
	"research-board-platform/internal/logger"
	"research-board-platform/internal/queue"
	"research-board-platform/internal/telemetry"
	"research-board-platform/internal/transcript"
	"research-board-platform/internal/vector"
	"research-board-platform/services"

	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg, "research-board-worker")

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

	// Telemetry
	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	if cfg.TracingEnabled {
		shutdownTracer, err := telemetry.InitTracer("research-board-worker", cfg.OTLPEndpoint)
		if err != nil {
			log.Fatal("Failed to initialize tracer:", err)
		}
		defer shutdownTracer()
	}

	// Build the ingestion pipeline
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

	// Redis options for Asynq
	redisOpt, err := config.AsynqRedisOpt(cfg)
	if err != nil {
		log.Fatal("Failed to configure task queue:", err)
	}

	// Reingest fan-out enqueues per-item tasks back onto the queue
	queueClient := asynq.NewClient(redisOpt)
	defer queueClient.Close()

	// Create Asynq server. Weighted (not strict) priorities keep the low
	// queue draining during heavy ingest bursts, so board reingests are
	// never starved.
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.QueueConcurrency,
			Queues: map[string]int{
				"critical": 6, // 60% of workers
				"default":  3, // 30% of workers
				"low":      1, // 10% of workers
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	// Create task processor
	processor := queue.NewTaskProcessor(ingestion, db, queueClient)

	// Create mux and register handlers
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskIngestItem, processor.HandleIngestItem)
	mux.HandleFunc(queue.TaskReingestBoard, processor.HandleReingestBoard)

	// Periodic housekeeping runs alongside the queue consumers
	maintenance := services.NewMaintenanceService(cfg, db, index, storage)
	if err := maintenance.Start(); err != nil {
		log.Fatal("Failed to start maintenance scheduler:", err)
	}
	defer maintenance.Stop()

	logger.Info("Starting worker",
		"concurrency", cfg.QueueConcurrency,
		"queues", "critical(6) default(3) low(1)",
		"redis", redisOpt.Addr)

	// Run blocks until SIGTERM/SIGINT
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
