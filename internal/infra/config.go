package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv       string
	Port         string
	DatabaseURL  string
	StoragePath  string
	TemplatesDir string

	EngineBaseURL        string
	EngineCollectTimeout time.Duration

	LLMProvider           string
	OpenAIAPIKey          string
	OpenAIModel           string
	OpenAIBaseURL         string
	OpenAIOrg             string
	AzureOpenAIAPIKey     string
	AzureOpenAIEndpoint   string
	AzureOpenAIAPIVersion string
	AzureOpenAIModel      string
	PromptMaxAttempts     int

	PosterBatchsizeUseOnePrompt int
	PosterOutputWidth           int
	PosterOutputHeight          int
	PosterScaleMin              float64
	PosterScaleMax              float64

	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	StaleTaskAfter     time.Duration

	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
// Values from .env and .env.local are applied first when those files exist; variables already
// present in the environment win.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	cfg := &Config{
		AppEnv:       getEnv("APP_ENV", "development"),
		Port:         getEnv("PORT", "8080"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		StoragePath:  getEnv("STORAGE_PATH", "./storage"),
		TemplatesDir: getEnv("TEMPLATES_DIR", "./templates"),

		EngineBaseURL:        getEnv("ENGINE_BASE_URL", "http://127.0.0.1:8188"),
		EngineCollectTimeout: time.Second * time.Duration(getEnvInt("ENGINE_COLLECT_TIMEOUT_SECONDS", 0)),

		LLMProvider:           strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
		OpenAIAPIKey:          os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:           getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:         getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:             os.Getenv("OPENAI_ORG"),
		AzureOpenAIAPIKey:     os.Getenv("AZURE_OPENAI_API_KEY"),
		AzureOpenAIEndpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
		AzureOpenAIAPIVersion: getEnv("AZURE_OPENAI_API_VERSION", "2024-06-01"),
		AzureOpenAIModel:      os.Getenv("AZURE_OPENAI_MODEL"),
		PromptMaxAttempts:     getEnvInt("PROMPT_MAX_ATTEMPTS", 5),

		PosterBatchsizeUseOnePrompt: getEnvInt("POSTER_BATCHSIZE_USE_ONE_PROMPT", 5),
		PosterOutputWidth:           getEnvInt("POSTER_OUTPUT_WIDTH", 1024),
		PosterOutputHeight:          getEnvInt("POSTER_OUTPUT_HEIGHT", 1024),
		PosterScaleMin:              getEnvFloat("POSTER_SCALE_MIN", 0.3),
		PosterScaleMax:              getEnvFloat("POSTER_SCALE_MAX", 0.7),

		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 1),
		WorkerPollInterval: time.Second * time.Duration(getEnvInt("WORKER_POLL_INTERVAL_SECONDS", 2)),
		StaleTaskAfter:     time.Second * time.Duration(getEnvInt("STALE_TASK_AFTER_SECONDS", 1800)),

		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.EngineBaseURL == "" {
		return fmt.Errorf("ENGINE_BASE_URL is required")
	}
	switch c.LLMProvider {
	case "openai", "azure":
	default:
		return fmt.Errorf("LLM_PROVIDER %q is not supported", c.LLMProvider)
	}
	if c.PosterScaleMin <= 0 || c.PosterScaleMax > 1 || c.PosterScaleMin > c.PosterScaleMax {
		return fmt.Errorf("poster scale range [%v, %v] is invalid", c.PosterScaleMin, c.PosterScaleMax)
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	if c.PromptMaxAttempts < 1 {
		return fmt.Errorf("PROMPT_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

// RequireDatabase reports an error when DATABASE_URL is empty. Only the API, worker and
// migrate binaries need it; the CLI runs without a database.
func (c *Config) RequireDatabase() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
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

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
