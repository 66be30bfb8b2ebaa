package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string

	HTTP     HTTPConfig
	OpenAI   OpenAIConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Log      LogConfig
	Retry    RetryConfig
}

type HTTPConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type OpenAIConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	MaxRetries     int
	RetryDelay     time.Duration
	Timeout        time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	DataDir string
}

type LogConfig struct {
	Level  string
	Format string
	Output string
}

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Exponential bool
}

// Load reads configuration from the environment. A .env file is loaded
// first when present; a missing file is not an error so deployments can
// rely on real environment variables alone.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := getEnvInt("PORT", 8080)
	if err != nil {
		return nil, err
	}

	maxRetries, err := getEnvInt("OPENAI_MAX_RETRIES", 3)
	if err != nil {
		return nil, err
	}

	poolSize, err := getEnvInt("REDIS_POOL_SIZE", 10)
	if err != nil {
		return nil, err
	}

	retryAttempts, err := getEnvInt("RETRY_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}

	// duration parse errors are collected so Load reports the first bad
	// value instead of silently running on a fallback
	var durationErr error
	duration := func(key string, fallback time.Duration) time.Duration {
		parsed, err := getEnvDuration(key, fallback)
		if err != nil && durationErr == nil {
			durationErr = err
		}
		return parsed
	}

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		HTTP: HTTPConfig{
			Port:         port,
			ReadTimeout:  duration("HTTP_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: duration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  duration("HTTP_IDLE_TIMEOUT", 120*time.Second),
		},
		OpenAI: OpenAIConfig{
			APIKey:         os.Getenv("OPENAI_API_KEY"),
			Model:          getEnv("OPENAI_MODEL", "gpt-4"),
			EmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-ada-002"),
			MaxRetries:     maxRetries,
			RetryDelay:     duration("OPENAI_RETRY_DELAY", 1*time.Second),
			Timeout:        duration("OPENAI_TIMEOUT", 60*time.Second),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", "redis://localhost:6379/0"),
			PoolSize:     poolSize,
			DialTimeout:  duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Database: DatabaseConfig{
			DataDir: getEnv("DATA_DIR", "./data"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
		Retry: RetryConfig{
			MaxAttempts: retryAttempts,
			BaseDelay:   duration("RETRY_BASE_DELAY", 1*time.Second),
			MaxDelay:    duration("RETRY_MAX_DELAY", 10*time.Second),
			Exponential: getEnvBool("RETRY_EXPONENTIAL", true),
		},
	}
	if durationErr != nil {
		return nil, durationErr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}

	if c.OpenAI.APIKey == "" && c.Environment != "test" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.Retry.MaxAttempts)
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q", key, value)
	}
	return parsed, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}

	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed, nil
	}

	// Bare numbers are treated as seconds for compatibility with older envs.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid value for %s: %q", key, value)
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
