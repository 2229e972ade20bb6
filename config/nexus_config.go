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

	// JWT
	JWTSecret string

	// Supabase
	SupabaseURL     string
	SupabaseAnonKey string

	// Legacy device clients authenticate with this shared password
	// in the x-api-key header.
	AppPassword string

	// Generic inbound webhook (telco callbacks) has no auth; its
	// traffic is attributed to this fixed user.
	WebhookUserID string

	// OpenAI
	OpenAIAPIKey   string
	LLMModel       string
	LLMMiniModel   string
	EmbeddingModel string
	LLMMaxTokens   int
	LLMTemperature float64
	LLMTimeoutSec  int
	LLMMaxRetries  int

	// OAuth - Google
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// FCM push
	FCMProjectID       string
	FCMCredentialsFile string

	// Email triage
	TriageBatchSize   int
	TriagePacing      time.Duration
	TriageDedupeTTL   time.Duration
	HistoricBatchSize int

	// WhatsApp brain
	BrainWindowSize   int
	BrainDebounce     time.Duration
	IngestMaxBatch    int
	IngestMaxBodySize int

	// Vector memory
	MemoryThreshold float64
	MemoryTopK      int

	// Briefing
	BriefingMorningHour int
	BriefingEveningHour int

	// CORS
	AllowedOrigins []string

	// Scheduler
	SchedulerEnabled bool
}

func Load() (*Config, error) {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "nexus"),
		RedisURL:    getEnv("REDIS_URL", ""),

		// JWT
		JWTSecret: getEnv("SUPABASE_JWT_SECRET", ""),

		// Supabase
		SupabaseURL:     getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey: getEnv("SUPABASE_ANON_KEY", ""),

		AppPassword:   getEnv("APP_PASSWORD", ""),
		WebhookUserID: getEnv("WEBHOOK_USER_ID", "00000000-0000-0000-0000-000000000001"),

		// OpenAI
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o"),
		LLMMiniModel:   getEnv("LLM_MINI_MODEL", "gpt-4o-mini"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 2048),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.3),
		LLMTimeoutSec:  getEnvInt("LLM_TIMEOUT_SEC", 60),
		LLMMaxRetries:  getEnvInt("LLM_MAX_RETRIES", 3),

		// OAuth - Google
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),

		// FCM
		FCMProjectID:       getEnv("FCM_PROJECT_ID", ""),
		FCMCredentialsFile: getEnv("FCM_CREDENTIALS_FILE", ""),

		// Email triage
		TriageBatchSize:   getEnvInt("TRIAGE_BATCH_SIZE", 10),
		TriagePacing:      time.Duration(getEnvInt("TRIAGE_PACING_MS", 1500)) * time.Millisecond,
		TriageDedupeTTL:   time.Duration(getEnvInt("TRIAGE_DEDUPE_TTL_HOUR", 48)) * time.Hour,
		HistoricBatchSize: getEnvInt("HISTORIC_BATCH_SIZE", 30),

		// WhatsApp brain
		BrainWindowSize:   getEnvInt("BRAIN_WINDOW_SIZE", 30),
		BrainDebounce:     time.Duration(getEnvInt("BRAIN_DEBOUNCE_SEC", 120)) * time.Second,
		IngestMaxBatch:    getEnvInt("INGEST_MAX_BATCH", 500),
		IngestMaxBodySize: getEnvInt("INGEST_MAX_BODY_BYTES", 5242880),

		// Vector memory
		MemoryThreshold: getEnvFloat("MEMORY_THRESHOLD", 0.6),
		MemoryTopK:      getEnvInt("MEMORY_TOP_K", 3),

		// Briefing
		BriefingMorningHour: getEnvInt("BRIEFING_MORNING_HOUR", 6),
		BriefingEveningHour: getEnvInt("BRIEFING_EVENING_HOUR", 18),

		// CORS
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),

		// Scheduler
		SchedulerEnabled: getEnvBool("SCHEDULER_ENABLED", true),
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
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
