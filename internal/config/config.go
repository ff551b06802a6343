package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	NATS         NATSConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	LLM          LLMConfig
	Pipeline     PipelineConfig
	Classifier   ClassifierConfig
	Budget       BudgetConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NATSConfig configures event forwarding. An empty URL disables it.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
	// Output is a zap sink such as "stdout" or "stderr".
	Output string
}

// AuthConfig defines API authentication parameters.
type AuthConfig struct {
	Enabled               bool
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
	ClientID              string
	ClientSecretHash      string
}

// NotificationConfig holds outbound notification endpoints.
type NotificationConfig struct {
	WebhookURL            string
	WebhookTimeoutSeconds int
}

// LLMConfig selects and tunes the hosted model used for classification.
type LLMConfig struct {
	Provider          string
	Model             string
	APIKey            string
	BaseURL           string
	MaxTokens         int
	Temperature       float64
	RetryMaxAttempts  int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
}

// PipelineConfig bounds a single triage run.
type PipelineConfig struct {
	StageTimeout     time.Duration
	RequestLimit     int
	TotalTokensLimit int
	BatchConcurrency int
}

// ClassifierConfig selects the classification strategy.
type ClassifierConfig struct {
	// Mode is one of "rules", "llm" or "llm+rules".
	Mode      string
	RulesFile string
}

// BudgetConfig bounds model usage per UTC day across all instances.
type BudgetConfig struct {
	DailyRequestLimit int64
	DailyTokenLimit   int64
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	temperature, err := strconv.ParseFloat(getEnv("LLM_TEMPERATURE", "0.1"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_TEMPERATURE: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	provider := strings.ToLower(getEnv("LLM_PROVIDER", "none"))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-triage"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 60),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		NATS: NATSConfig{
			URL:           os.Getenv("NATS_URL"),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "triage"),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
		Auth: AuthConfig{
			Enabled:               getEnvAsBool("AUTH_ENABLED", false),
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			ClientID:              os.Getenv("AUTH_CLIENT_ID"),
			ClientSecretHash:      os.Getenv("AUTH_CLIENT_SECRET_HASH"),
		},
		Notification: NotificationConfig{
			WebhookURL:            getEnv("NOTIFY_WEBHOOK_URL", ""),
			WebhookTimeoutSeconds: getEnvAsInt("NOTIFY_WEBHOOK_TIMEOUT_SECONDS", 5),
		},
		LLM: LLMConfig{
			Provider:          provider,
			Model:             getEnv("LLM_MODEL", DefaultModel(provider)),
			APIKey:            os.Getenv("LLM_API_KEY"),
			BaseURL:           getEnv("LLM_BASE_URL", ""),
			MaxTokens:         getEnvAsInt("LLM_MAX_TOKENS", 512),
			Temperature:       temperature,
			RetryMaxAttempts:  getEnvAsInt("LLM_RETRY_MAX_ATTEMPTS", 3),
			RetryInitialDelay: time.Duration(getEnvAsInt("LLM_RETRY_INITIAL_DELAY_MS", 200)) * time.Millisecond,
			RetryMaxDelay:     time.Duration(getEnvAsInt("LLM_RETRY_MAX_DELAY_MS", 5000)) * time.Millisecond,
		},
		Pipeline: PipelineConfig{
			StageTimeout:     time.Duration(getEnvAsInt("PIPELINE_STAGE_TIMEOUT_SECONDS", 30)) * time.Second,
			RequestLimit:     getEnvAsInt("PIPELINE_REQUEST_LIMIT", 15),
			TotalTokensLimit: getEnvAsInt("PIPELINE_TOTAL_TOKENS_LIMIT", 10000),
			BatchConcurrency: getEnvAsInt("PIPELINE_BATCH_CONCURRENCY", 4),
		},
		Classifier: ClassifierConfig{
			Mode:      strings.ToLower(getEnv("CLASSIFIER_MODE", defaultClassifierMode(provider))),
			RulesFile: os.Getenv("CLASSIFIER_RULES_FILE"),
		},
		Budget: BudgetConfig{
			DailyRequestLimit: int64(getEnvAsInt("BUDGET_DAILY_REQUEST_LIMIT", 0)),
			DailyTokenLimit:   int64(getEnvAsInt("BUDGET_DAILY_TOKEN_LIMIT", 0)),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations that cannot produce a working pipeline.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "none", "anthropic", "openai", "gemini", "ollama":
	default:
		return fmt.Errorf("invalid LLM_PROVIDER %q", c.LLM.Provider)
	}
	switch c.Classifier.Mode {
	case "rules":
	case "llm", "llm+rules":
		if c.LLM.Provider == "none" {
			return fmt.Errorf("CLASSIFIER_MODE %q requires LLM_PROVIDER", c.Classifier.Mode)
		}
	default:
		return fmt.Errorf("invalid CLASSIFIER_MODE %q", c.Classifier.Mode)
	}
	if c.Pipeline.BatchConcurrency <= 0 {
		return fmt.Errorf("PIPELINE_BATCH_CONCURRENCY must be positive")
	}
	if c.Auth.Enabled && (c.Auth.ClientID == "" || c.Auth.ClientSecretHash == "") {
		return fmt.Errorf("AUTH_ENABLED requires AUTH_CLIENT_ID and AUTH_CLIENT_SECRET_HASH")
	}
	return nil
}

// DefaultModel returns the model used when LLM_MODEL is unset.
func DefaultModel(provider string) string {
	switch provider {
	case "anthropic":
		return "claude-sonnet-4-5"
	case "openai":
		return "gpt-4o-mini"
	case "gemini":
		return "gemini-2.0-flash"
	case "ollama":
		return "llama3.1"
	default:
		return ""
	}
}

func defaultClassifierMode(provider string) string {
	if provider == "none" {
		return "rules"
	}
	return "llm+rules"
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// WebhookTimeout returns the outbound webhook timeout.
func (n NotificationConfig) WebhookTimeout() time.Duration {
	if n.WebhookTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(n.WebhookTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
