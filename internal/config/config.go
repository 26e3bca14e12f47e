package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the TriageFlow server.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Queue      QueueConfig
	Classifier ClassifierConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// QueueConfig tunes the consumer pool and the retry/cleanup policies.
type QueueConfig struct {
	MaxRetries         int
	BatchSize          int
	ConsumerThreads    int
	PollTimeout        time.Duration
	ProcessingInterval time.Duration
	ProcessingTimeout  time.Duration
	CleanupInterval    time.Duration
}

type ClassifierConfig struct {
	Provider string
	Timeout  time.Duration
	Gemini   GeminiConfig
}

type GeminiConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
}

var validProviders = map[string]bool{
	"gemini": true,
	"mock":   true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("TRIAGEFLOW_PORT", 8080),
			Env:  envString("TRIAGEFLOW_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Queue: QueueConfig{
			MaxRetries:         envInt("QUEUE_MAX_RETRIES", 3),
			BatchSize:          envInt("QUEUE_BATCH_SIZE", 10),
			ConsumerThreads:    envInt("QUEUE_CONSUMER_THREADS", 3),
			PollTimeout:        envDurationSecs("QUEUE_POLL_TIMEOUT_SECS", 5*time.Second),
			ProcessingInterval: envDuration("QUEUE_PROCESSING_INTERVAL", time.Second),
			ProcessingTimeout:  envDuration("QUEUE_PROCESSING_TIMEOUT", 10*time.Minute),
			CleanupInterval:    envDuration("QUEUE_CLEANUP_INTERVAL", 30*time.Minute),
		},
		Classifier: ClassifierConfig{
			Provider: os.Getenv("CLASSIFIER_PROVIDER"),
			Timeout:  envDurationSecs("CLASSIFIER_TIMEOUT_SECS", 30*time.Second),
			Gemini: GeminiConfig{
				APIKey:      os.Getenv("GEMINI_API_KEY"),
				BaseURL:     envString("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
				Model:       envString("GEMINI_MODEL", "gemini-1.5-flash"),
				Temperature: envFloat("GEMINI_TEMPERATURE", 0.3),
				MaxTokens:   envInt("GEMINI_MAX_TOKENS", 1000),
			},
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("QUEUE_MAX_RETRIES cannot be negative")
	}
	if c.Queue.BatchSize < 1 {
		return fmt.Errorf("QUEUE_BATCH_SIZE must be at least 1")
	}
	if c.Queue.ConsumerThreads < 1 {
		return fmt.Errorf("QUEUE_CONSUMER_THREADS must be at least 1")
	}

	if c.Classifier.Provider == "" {
		return fmt.Errorf("CLASSIFIER_PROVIDER is required")
	}
	if !validProviders[c.Classifier.Provider] {
		return fmt.Errorf("CLASSIFIER_PROVIDER must be one of gemini, mock; got %q", c.Classifier.Provider)
	}

	if c.Classifier.Provider == "gemini" {
		if c.Classifier.Gemini.APIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when CLASSIFIER_PROVIDER is gemini")
		}
		if !strings.HasPrefix(c.Classifier.Gemini.BaseURL, "http://") && !strings.HasPrefix(c.Classifier.Gemini.BaseURL, "https://") {
			return fmt.Errorf("GEMINI_BASE_URL must start with http:// or https://, got %q", c.Classifier.Gemini.BaseURL)
		}
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
