package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Blob and queue drivers.
const (
	BlobDriverLocal = "local"
	BlobDriverS3    = "s3"

	QueueDriverPostgres = "postgres"
	QueueDriverMemory   = "memory"

	EmbedProviderGemini = "gemini"
	EmbedProviderOpenAI = "openai"
)

// MaxIndexedDim is the largest vector pgvector can put in an HNSW index.
const MaxIndexedDim = 2000

// embedDefaults holds the model used when EMBED_MODEL is unset, per provider.
var embedDefaults = map[string]struct {
	model string
	dim   int
}{
	EmbedProviderOpenAI: {"text-embedding-3-small", 1536},
	EmbedProviderGemini: {"text-embedding-004", 768},
}

// nativeDims lists the vector size known models return when no output
// dimensionality is requested.
var nativeDims = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"text-embedding-004":     768,
	"gemini-embedding-001":   3072,
}

type Config struct {
	DatabaseURL string
	DBMaxConns  int
	Port        string
	JWTSecret   string

	BlobDriver   string
	BlobDir      string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	S3Endpoint   string

	EmbedProvider  string
	AIAPIKey       string
	OpenAIKey      string
	OpenAIBaseURL  string
	EmbedModel     string
	EmbedDim       int
	EmbedBatchSize int
	EmbedParallel  int
	EmbedTimeout   time.Duration

	QueueDriver        string
	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	JobTimeout         time.Duration
	JobMaxAttempts     int
	JobRetryBackoff    time.Duration
	JobStaleAfter      time.Duration
	EmbeddedWorker     bool

	CrawlTimeout    time.Duration
	CrawlUserAgent  string
	CrawlRatePerSec float64
	CrawlMaxBytes   int64

	ChunkMaxTokens int
	ChunkMinTokens int

	LogFile  string
	LogLevel slog.Level
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	provider := strings.ToLower(getEnv("EMBED_PROVIDER", EmbedProviderOpenAI))
	def, ok := embedDefaults[provider]
	if !ok {
		def = embedDefaults[EmbedProviderOpenAI]
	}
	model := getEnv("EMBED_MODEL", def.model)
	dim := def.dim
	if n, ok := nativeDims[model]; ok {
		dim = n
	}

	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBMaxConns:  getEnvInt("DB_MAX_CONNS", 10),
		Port:        getEnv("PORT", "8080"),
		JWTSecret:   getEnv("JWT_SECRET", ""),

		BlobDriver:   strings.ToLower(getEnv("BLOB_DRIVER", BlobDriverLocal)),
		BlobDir:      getEnv("BLOB_DIR", "./data/blobs"),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "knowledge-sources"),
		S3Endpoint:   getEnv("S3_ENDPOINT", ""),

		EmbedProvider:  provider,
		AIAPIKey:       getEnv("GEMINI_API_KEY", ""),
		OpenAIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", ""),
		EmbedModel:     model,
		EmbedDim:       getEnvInt("EMBED_DIM", dim),
		EmbedBatchSize: getEnvInt("EMBED_BATCH_SIZE", 64),
		EmbedParallel:  getEnvInt("EMBED_PARALLEL", 2),
		EmbedTimeout:   getEnvDuration("EMBED_TIMEOUT", 60*time.Second),

		QueueDriver:        strings.ToLower(getEnv("QUEUE_DRIVER", QueueDriverPostgres)),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 2),
		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", 2*time.Second),
		JobTimeout:         getEnvDuration("JOB_TIMEOUT", 10*time.Minute),
		JobMaxAttempts:     getEnvInt("JOB_MAX_ATTEMPTS", 1),
		JobRetryBackoff:    getEnvDuration("JOB_RETRY_BACKOFF", 30*time.Second),
		JobStaleAfter:      getEnvDuration("JOB_STALE_AFTER", 15*time.Minute),
		EmbeddedWorker:     getEnvBool("EMBEDDED_WORKER", false),

		CrawlTimeout:    getEnvDuration("CRAWL_TIMEOUT", 15*time.Second),
		CrawlUserAgent:  getEnv("CRAWL_USER_AGENT", "KnowledgeBot/1.0"),
		CrawlRatePerSec: getEnvFloat("CRAWL_RATE_PER_SEC", 2),
		CrawlMaxBytes:   int64(getEnvInt("CRAWL_MAX_BYTES", 5*1024*1024)),

		ChunkMaxTokens: getEnvInt("CHUNK_MAX_TOKENS", 700),
		ChunkMinTokens: getEnvInt("CHUNK_MIN_TOKENS", 300),

		LogFile:  getEnv("LOG_FILE", ""),
		LogLevel: parseLogLevel(getEnv("LOG_LEVEL", "INFO")),
	}
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL not set"))
	}
	switch n, known := nativeDims[c.EmbedModel]; {
	case c.EmbedDim <= 0:
		errs = append(errs, errors.New("EMBED_DIM must be positive"))
	case known && c.EmbedDim != n:
		errs = append(errs, fmt.Errorf("EMBED_DIM is %d but %s returns %d dimensions", c.EmbedDim, c.EmbedModel, n))
	case c.EmbedDim > MaxIndexedDim:
		errs = append(errs, fmt.Errorf("EMBED_DIM %d exceeds the %d dimensions the vector index supports", c.EmbedDim, MaxIndexedDim))
	}
	switch c.EmbedProvider {
	case EmbedProviderGemini:
		if c.AIAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY not set"))
		}
	case EmbedProviderOpenAI:
		if c.OpenAIKey == "" && c.OpenAIBaseURL == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY not set"))
		}
	default:
		errs = append(errs, errors.New("EMBED_PROVIDER must be gemini or openai"))
	}
	switch c.BlobDriver {
	case BlobDriverLocal:
		if c.BlobDir == "" {
			errs = append(errs, errors.New("BLOB_DIR not set"))
		}
	case BlobDriverS3:
		if c.BucketName == "" {
			errs = append(errs, errors.New("BUCKET_NAME not set"))
		}
	default:
		errs = append(errs, errors.New("BLOB_DRIVER must be local or s3"))
	}
	if c.QueueDriver != QueueDriverPostgres && c.QueueDriver != QueueDriverMemory {
		errs = append(errs, errors.New("QUEUE_DRIVER must be postgres or memory"))
	}
	if c.ChunkMinTokens > c.ChunkMaxTokens {
		errs = append(errs, errors.New("CHUNK_MIN_TOKENS exceeds CHUNK_MAX_TOKENS"))
	}
	// a live job is never refreshed, so the stale sweep must outlast the job timeout
	if c.JobStaleAfter > 0 && c.JobStaleAfter <= c.JobTimeout {
		errs = append(errs, fmt.Errorf("JOB_STALE_AFTER (%s) must be greater than JOB_TIMEOUT (%s)", c.JobStaleAfter, c.JobTimeout))
	}
	return errors.Join(errs...)
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config value is not an int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("config value is not a number, using default", "key", key, "value", v, "default", def)
		return def
	}
	return f
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config value is not a duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
