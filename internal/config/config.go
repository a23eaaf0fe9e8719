package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI    string
	DBName      string
	Port        string
	GinMode     string
	CORSOrigins []string

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Uploads
	FileStorageDir string
	MaxFileSize    int64
	AllowedTypes   []string

	// Chunking
	MaxChunkChars int // window size for stored chunks
	ChunkOverlap  int // must stay below MaxChunkChars

	// Transcript segment merging
	MergeMaxChars   int
	MergeMaxGapSec  float64
	MergeMaxSpanSec float64

	// Retrieval
	ChatTopK      int     // default top_k for chat requests
	MMRLambda     float64 // relevance/diversity trade-off
	PrefetchFloor int     // minimum candidate pool before MMR

	// AI providers
	AIProvider            string // "google" (default), "openai"
	AITier                string // provider rate tier: free, tier1, tier2
	GeminiAPIKey          string
	GeminiModel           string
	EmbeddingsProvider    string // "google" (default), "openai"
	GoogleEmbeddingsModel string // e.g., "text-embedding-004"
	OpenAIAPIKey          string
	OpenAIBaseURL         string
	OpenAIChatModel       string
	OpenAIEmbeddingsModel string

	// Speech-to-text service
	STTBaseURL       string
	STTAPIKey        string
	STTPrimaryModel  string
	STTFallbackModel string
	STTTimeout       int // seconds

	// External tools for the video cascade
	YtDlpPath     string
	FFmpegPath    string
	IngestTempDir string

	// Vector index
	VectorBackend       string // "mongo" (default), "chromem"
	VectorSearchEnabled bool   // Atlas $vectorSearch; in-process scan otherwise
	VectorIndexName     string
	VectorDimensions    int
	ChromemPath         string

	// Crawler
	CrawlerUserAgent string
	RenderJSPages    bool

	// Maintenance
	TempSweepMinutes int

	// Background worker
	QueueConcurrency int

	// Observability
	TracingEnabled bool
	OTLPEndpoint   string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017/research_boards"),
		DBName:      getEnv("DB_NAME", "research_boards"),
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173"), ","),

		// Redis Configuration
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		FileStorageDir: getEnv("FILE_STORAGE_DIR", "./storage"),
		MaxFileSize:    getEnvInt64("MAX_FILE_SIZE", 314572800), // 300MB, media uploads included
		AllowedTypes:   strings.Split(getEnv("ALLOWED_FILE_TYPES", "application/pdf,text/plain,text/markdown,application/vnd.openxmlformats-officedocument.wordprocessingml.document,audio/mpeg,audio/mp4,audio/wav,video/mp4,video/webm"), ","),

		MaxChunkChars: getEnvInt("CHUNK_MAX_CHARS", 1200),
		ChunkOverlap:  getEnvInt("CHUNK_OVERLAP", 150),

		MergeMaxChars:   getEnvInt("MERGE_MAX_CHARS", 600),
		MergeMaxGapSec:  getEnvFloat64("MERGE_MAX_GAP_SECONDS", 2.5),
		MergeMaxSpanSec: getEnvFloat64("MERGE_MAX_SPAN_SECONDS", 60),

		ChatTopK:      getEnvInt("CHAT_TOP_K", 8),
		MMRLambda:     getEnvFloat64("MMR_LAMBDA", 0.7),
		PrefetchFloor: getEnvInt("RETRIEVAL_PREFETCH_FLOOR", 30),

		// AI providers
		AIProvider:            getEnv("AI_PROVIDER", "google"),
		AITier:                getEnv("AI_RATE_TIER", "free"),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		EmbeddingsProvider:    getEnv("EMBEDDINGS_PROVIDER", "google"),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:         getEnv("OPENAI_BASE_URL", ""),
		OpenAIChatModel:       getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		OpenAIEmbeddingsModel: getEnv("OPENAI_EMBEDDINGS_MODEL", "text-embedding-3-small"),

		// Speech-to-text
		STTBaseURL:       getEnv("STT_BASE_URL", "https://api.openai.com"),
		STTAPIKey:        getEnv("STT_API_KEY", ""),
		STTPrimaryModel:  getEnv("STT_PRIMARY_MODEL", "whisper-1"),
		STTFallbackModel: getEnv("STT_FALLBACK_MODEL", "gpt-4o-mini-transcribe"),
		STTTimeout:       getEnvInt("STT_TIMEOUT", 300), // 5 minutes

		// External tools
		YtDlpPath:     getEnv("YTDLP_PATH", "yt-dlp"),
		FFmpegPath:    getEnv("FFMPEG_PATH", "ffmpeg"),
		IngestTempDir: getEnv("INGEST_TEMP_DIR", os.TempDir()),

		// Vector index
		VectorBackend:       getEnv("VECTOR_BACKEND", "mongo"),
		VectorSearchEnabled: getEnvBool("MONGODB_VECTOR_ENABLED", false),
		VectorIndexName:     getEnv("MONGODB_VECTOR_INDEX", "chunks_vector"),
		VectorDimensions:    getEnvInt("VECTOR_DIM", 768),
		ChromemPath:         getEnv("CHROMEM_PATH", "./chromem"),

		// Crawler
		CrawlerUserAgent: getEnv("CRAWLER_USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
		RenderJSPages:    getEnvBool("CRAWLER_RENDER_JS", false),

		TempSweepMinutes: getEnvInt("TEMP_SWEEP_MINUTES", 30),

		QueueConcurrency: getEnvInt("QUEUE_CONCURRENCY", 20),

		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", "localhost:4317"),
	}

	// Validate required fields
	if cfg.MaxChunkChars <= cfg.ChunkOverlap {
		return nil, fmt.Errorf("CHUNK_MAX_CHARS (%d) must be greater than CHUNK_OVERLAP (%d)", cfg.MaxChunkChars, cfg.ChunkOverlap)
	}

	if cfg.AIProvider == "google" && cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	if cfg.AIProvider == "openai" && cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required - set it in .env file")
	}

	if cfg.EmbeddingsProvider == "openai" && cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required for openai embeddings - set it in .env file")
	}

	if cfg.VectorBackend != "mongo" && cfg.VectorBackend != "chromem" {
		return nil, fmt.Errorf("VECTOR_BACKEND must be \"mongo\" or \"chromem\", got %q", cfg.VectorBackend)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
