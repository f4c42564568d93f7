package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"server/internal/domain"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string // optional; enables the job-created wake channel

	// Worker tuning.
	WorkerPollInterval time.Duration
	WorkerStuckTimeout time.Duration
	JobRetentionDays   int
	RetryBackoffBase   time.Duration

	// Generation provider (optional; synthetic results without a key).
	GenAIAPIKey  string
	GenAIBaseURL string
	GenAIModel   string

	// Per-type generation cost in credits.
	CostImage int
	CostVideo int
	CostAudio int
	CostText  int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		WorkerPollInterval: time.Second * time.Duration(getEnvInt("WORKER_POLL_INTERVAL_SECONDS", 2)),
		WorkerStuckTimeout: time.Minute * time.Duration(getEnvInt("WORKER_STUCK_TIMEOUT_MINUTES", 10)),
		JobRetentionDays:   getEnvInt("JOB_RETENTION_DAYS", 30),
		RetryBackoffBase:   time.Second * time.Duration(getEnvInt("RETRY_BACKOFF_BASE_SECONDS", 30)),
		GenAIAPIKey:        os.Getenv("GENAI_API_KEY"),
		GenAIBaseURL:       getEnv("GENAI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GenAIModel:         getEnv("GENAI_MODEL", "gemini-2.5-flash"),
		CostImage:          getEnvInt("COST_IMAGE_CREDITS", 5),
		CostVideo:          getEnvInt("COST_VIDEO_CREDITS", 25),
		CostAudio:          getEnvInt("COST_AUDIO_CREDITS", 10),
		CostText:           getEnvInt("COST_TEXT_CREDITS", 1),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

// GenerationCosts maps each job type to its credit price. Types without a
// configured price are free and never touch the ledger.
func (c *Config) GenerationCosts() map[domain.JobType]int {
	return map[domain.JobType]int{
		domain.JobTypeImageGeneration: c.CostImage,
		domain.JobTypeVideoGeneration: c.CostVideo,
		domain.JobTypeAudioGeneration: c.CostAudio,
		domain.JobTypeTextExpansion:   c.CostText,
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
