package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	Environment string

	// Database
	DatabaseURL string
	MongoDBURL  string
	MongoDBName string
	RedisURL    string

	// Neo4j (tone profiles)
	Neo4jURL      string
	Neo4jUsername string
	Neo4jPassword string

	// JWT
	JWTSecret string

	// Token encryption
	EncryptionKey string

	// OpenAI
	OpenAIAPIKey   string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float64
	LLMTimeout     time.Duration

	// OAuth - Google
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Pipeline
	PipelineBatchSize     int           // messages per batch
	PipelinePageSize      int           // provider page size
	PipelineFetchCeiling  int           // hard cap on total fetched per run
	PipelineChunkSize     int           // messages classified concurrently
	PipelineChunkDelay    time.Duration // pause between classification waves
	PipelineMaxBatches    int           // batch-count ceiling per run
	PipelineBatchDelay    time.Duration // pause between batches
	PipelineLabelRate     int           // label applications per second
	PipelineReplyWindow   time.Duration // only assess reply need within this window
	PipelinePersistChunks int           // records persisted per parallel chunk
	RunLockTTL            time.Duration // per-user run guard lock TTL

	// API rate limiting
	APIRequestsPerSecond int
	APIBurstSize         int

	// CORS
	AllowedOrigins []string
}

func Load() (*Config, error) {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "inboxie"),
		RedisURL:    getEnv("REDIS_URL", ""),

		// Neo4j
		Neo4jURL:      getEnv("NEO4J_URL", ""),
		Neo4jUsername: getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPassword: getEnv("NEO4J_PASSWORD", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", ""),

		// Token encryption
		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),

		// OpenAI
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 1024),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.3),
		LLMTimeout:     time.Duration(getEnvInt("LLM_TIMEOUT_SEC", 30)) * time.Second,

		// OAuth - Google
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),

		// Pipeline
		PipelineBatchSize:     getEnvInt("PIPELINE_BATCH_SIZE", 25),
		PipelinePageSize:      getEnvInt("PIPELINE_PAGE_SIZE", 25),
		PipelineFetchCeiling:  getEnvInt("PIPELINE_FETCH_CEILING", 500),
		PipelineChunkSize:     getEnvInt("PIPELINE_CHUNK_SIZE", 10),
		PipelineChunkDelay:    time.Duration(getEnvInt("PIPELINE_CHUNK_DELAY_MS", 500)) * time.Millisecond,
		PipelineMaxBatches:    getEnvInt("PIPELINE_MAX_BATCHES", 10),
		PipelineBatchDelay:    time.Duration(getEnvInt("PIPELINE_BATCH_DELAY_MS", 1000)) * time.Millisecond,
		PipelineLabelRate:     getEnvInt("PIPELINE_LABEL_RATE", 5),
		PipelineReplyWindow:   time.Duration(getEnvInt("PIPELINE_REPLY_WINDOW_DAYS", 14)) * 24 * time.Hour,
		PipelinePersistChunks: getEnvInt("PIPELINE_PERSIST_CHUNK", 20),
		RunLockTTL:            time.Duration(getEnvInt("RUN_LOCK_TTL_SEC", 600)) * time.Second,

		// API rate limiting
		APIRequestsPerSecond: getEnvInt("API_REQUESTS_PER_SECOND", 10),
		APIBurstSize:         getEnvInt("API_BURST_SIZE", 20),

		// CORS
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "chrome-extension://*"}),
	}, nil
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
